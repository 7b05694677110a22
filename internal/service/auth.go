package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"example.com/blogapi/internal/logger"
	"example.com/blogapi/internal/models"
	"example.com/blogapi/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var logg = logger.New()

// AuthStore is what the Authenticator needs from persistence.
type AuthStore interface {
	store.UserStore
	store.SessionStore
}

type AuthOptions struct {
	// BcryptCost is clamped into bcrypt's accepted range.
	BcryptCost int
	// RefreshIdentity re-reads the user on every request instead of trusting
	// the login-time snapshot held in the session.
	RefreshIdentity bool
}

// Authenticator registers users and manages their server-side sessions.
type Authenticator struct {
	store     AuthStore
	publisher EventPublisher
	opts      AuthOptions
	dummyHash []byte
}

func NewAuthenticator(st AuthStore, publisher EventPublisher, opts AuthOptions) *Authenticator {
	if opts.BcryptCost < bcrypt.MinCost || opts.BcryptCost > bcrypt.MaxCost {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}
	// compared against when the username is unknown so both failure paths cost the same
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), opts.BcryptCost)
	return &Authenticator{store: st, publisher: publisher, opts: opts, dummyHash: dummy}
}

// Register creates a user with a bcrypt hashed password and returns its id.
func (a *Authenticator) Register(ctx context.Context, req CredentialsRequest, isAdmin bool) (string, error) {
	req = req.normalized()
	if err := validateStruct(req); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.opts.BcryptCost)
	if err != nil {
		// bcrypt rejects passwords longer than 72 bytes
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	user := models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: string(hash),
		IsAdmin:      isAdmin,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return "", fmt.Errorf("%w: username %q is taken", ErrConflict, req.Username)
		}
		return "", fmt.Errorf("create user: %w", err)
	}

	logg.Info("service/auth", "User registered with user_id="+user.ID)
	publish(ctx, a.publisher, newEvent(models.EventUserRegistered, user.Identity(), ""))
	return user.ID, nil
}

// Login verifies the credentials and opens a session. The returned token is
// the only copy of the session secret; the store keeps its hash.
func (a *Authenticator) Login(ctx context.Context, req CredentialsRequest) (string, models.Session, error) {
	req = req.normalized()
	if err := validateStruct(req); err != nil {
		return "", models.Session{}, err
	}

	user, err := a.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return "", models.Session{}, fmt.Errorf("lookup user: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(req.Password))
		return "", models.Session{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		logg.Info("service/auth", "Failed login for user_id="+user.ID)
		return "", models.Session{}, ErrInvalidCredentials
	}

	token := uuid.NewString()
	session := models.Session{
		TokenHash: HashToken(token),
		UserID:    user.ID,
		Username:  user.Username,
		IsAdmin:   user.IsAdmin,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateSession(ctx, session); err != nil {
		return "", models.Session{}, fmt.Errorf("create session: %w", err)
	}

	logg.Info("service/auth", "User logged in user_id="+user.ID)
	publish(ctx, a.publisher, newEvent(models.EventUserLoggedIn, session.Identity(), ""))
	return token, session, nil
}

// Logout destroys the session behind token. Unknown tokens are ignored.
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	hash := HashToken(token)

	session, err := a.store.GetSession(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup session: %w", err)
	}
	if err := a.store.DeleteSession(ctx, hash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	publish(ctx, a.publisher, newEvent(models.EventUserLoggedOut, session.Identity(), ""))
	return nil
}

// CurrentIdentity resolves token to the acting identity. A nil identity with
// a nil error means "no valid session".
func (a *Authenticator) CurrentIdentity(ctx context.Context, token string) (*models.Identity, error) {
	if token == "" {
		return nil, nil
	}

	session, err := a.store.GetSession(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	if !a.opts.RefreshIdentity {
		id := session.Identity()
		return &id, nil
	}

	user, err := a.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logg.Info("service/auth", "Session refers to a missing user, treating as anonymous")
			return nil, nil
		}
		return nil, fmt.Errorf("refresh identity: %w", err)
	}
	id := user.Identity()
	return &id, nil
}

// HashToken is the storage key of a session token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
