package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"example.com/blogapi/internal/logger"
	"example.com/blogapi/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

var logg = logger.New()

type contextKey string

const (
	IdentityCtxKey = contextKey("identity")
	TokenCtxKey    = contextKey("session_token")
)

var ErrInvalidToken = errors.New("invalid session token")

// TokenCodec wraps a server-side session id into a signed HS256 token so
// that tampered cookies are rejected before touching the session store.
type TokenCodec struct {
	secret []byte
}

func NewTokenCodec(secret string) *TokenCodec {
	return &TokenCodec{secret: []byte(secret)}
}

func (c *TokenCodec) Sign(sid string) (string, error) {
	claims := jwt.MapClaims{
		"sid": sid,
		"iat": time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Parse verifies the signature and returns the session id.
func (c *TokenCodec) Parse(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sid, ok := claims["sid"].(string)
	if !ok || sid == "" {
		return "", ErrInvalidToken
	}
	return sid, nil
}

// IdentityResolver maps a session id to the user acting on the request.
// A nil identity without error means the session is unknown or expired.
type IdentityResolver interface {
	CurrentIdentity(ctx context.Context, sid string) (*models.Identity, error)
}

// SessionAuth attaches the caller's identity to the request context when a
// valid session credential is present, read from the named cookie or from an
// "Authorization: Bearer" header. The cookie is tried first; when it is forged
// or its session is gone the header is used. Requests without a usable
// credential pass through anonymously; handlers decide whether that is
// acceptable.
func SessionAuth(codec *TokenCodec, resolver IdentityResolver, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, raw := range credentials(r, cookieName) {
				sid, err := codec.Parse(raw)
				if err != nil {
					logg.Debug("middleware/auth", "Ignoring unusable session credential: "+err.Error())
					continue
				}

				identity, err := resolver.CurrentIdentity(ctx, sid)
				if err != nil {
					logg.Error("middleware/auth", "Failed to resolve session", err)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{"error": "internal error"})
					return
				}
				if identity == nil {
					// keep the first verified sid so logout can still clear it
					if _, ok := TokenFromContext(ctx); !ok {
						ctx = context.WithValue(ctx, TokenCtxKey, sid)
					}
					continue
				}

				ctx = context.WithValue(ctx, TokenCtxKey, sid)
				ctx = context.WithValue(ctx, IdentityCtxKey, identity)
				break
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// credentials lists the presented session credentials, cookie first.
func credentials(r *http.Request, cookieName string) []string {
	var out []string
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		out = append(out, c.Value)
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		if tok := strings.TrimSpace(parts[1]); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// IdentityFromContext returns the authenticated caller, or nil.
func IdentityFromContext(ctx context.Context) *models.Identity {
	id, _ := ctx.Value(IdentityCtxKey).(*models.Identity)
	return id
}

// TokenFromContext returns the verified session id carried by the request.
func TokenFromContext(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(TokenCtxKey).(string)
	return sid, ok
}
