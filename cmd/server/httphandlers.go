package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"example.com/blogapi/internal/middleware"
	"example.com/blogapi/internal/service"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

// --- Auth ---

// registerHandler creates a regular (non-admin) account.
func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var body service.CredentialsRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, "http/register", err)
		return
	}

	userID, err := s.auth.Register(r.Context(), body, false)
	if err != nil {
		writeError(w, "http/register", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"id":      userID,
	})
}

// loginHandler opens a session and hands it back both as a cookie and in the
// body for clients that prefer a bearer header.
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var body service.CredentialsRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, "http/login", err)
		return
	}

	sid, session, err := s.auth.Login(r.Context(), body)
	if err != nil {
		writeError(w, "http/login", err)
		return
	}

	token, err := s.codec.Sign(sid)
	if err != nil {
		writeError(w, "http/login", fmt.Errorf("sign session: %w", err))
		return
	}

	http.SetCookie(w, s.sessionCookie(token, 0))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Login successful",
		"token":    token,
		"user_id":  session.UserID,
		"username": session.Username,
		"is_admin": session.IsAdmin,
	})
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if sid, ok := middleware.TokenFromContext(r.Context()); ok {
		if err := s.auth.Logout(r.Context(), sid); err != nil {
			writeError(w, "http/logout", err)
			return
		}
	}

	http.SetCookie(w, s.sessionCookie("", -1))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) checkSessionHandler(w http.ResponseWriter, r *http.Request) {
	who := middleware.IdentityFromContext(r.Context())
	if who == nil {
		writeJSON(w, http.StatusOK, map[string]any{"logged_in": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logged_in": true,
		"user_id":   who.UserID,
		"username":  who.Username,
		"is_admin":  who.IsAdmin,
	})
}

// --- Posts ---

func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request) {
	caller := middleware.IdentityFromContext(r.Context())
	if caller == nil {
		writeError(w, "http/posts", service.ErrUnauthenticated)
		return
	}

	var body service.CreatePostRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, "http/posts", err)
		return
	}

	post, err := s.posts.Create(r.Context(), caller, body)
	if err != nil {
		writeError(w, "http/posts", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Post created",
		"id":      post.ID,
	})
}

func (s *Server) listPostsHandler(w http.ResponseWriter, r *http.Request) {
	views, err := s.posts.List(r.Context(), middleware.IdentityFromContext(r.Context()))
	if err != nil {
		writeError(w, "http/posts", err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) getPostHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.posts.Get(r.Context(), middleware.IdentityFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "http/posts", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// updatePostHandler serves both PUT and PATCH; absent fields are kept.
func (s *Server) updatePostHandler(w http.ResponseWriter, r *http.Request) {
	caller := middleware.IdentityFromContext(r.Context())
	if caller == nil {
		writeError(w, "http/posts", service.ErrUnauthenticated)
		return
	}

	var body service.UpdatePostRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, "http/posts", err)
		return
	}

	if err := s.posts.Update(r.Context(), caller, mux.Vars(r)["id"], body); err != nil {
		writeError(w, "http/posts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Post updated"})
}

func (s *Server) deletePostHandler(w http.ResponseWriter, r *http.Request) {
	caller := middleware.IdentityFromContext(r.Context())
	if err := s.posts.Delete(r.Context(), caller, mux.Vars(r)["id"]); err != nil {
		writeError(w, "http/posts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Post deleted"})
}

// --- Activity & meta ---

// activityHandler lists recent events. Query parameters: ?limit=50
func (s *Server) activityHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l < 1 {
			writeError(w, "http/activity", fmt.Errorf("%w: limit must be a positive integer", service.ErrInvalidRequest))
			return
		}
		limit = l
	}

	events, err := s.activity.List(r.Context(), middleware.IdentityFromContext(r.Context()), limit)
	if err != nil {
		writeError(w, "http/activity", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) aboutHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "blogapi",
		"read_policy": s.posts.Policy().Read,
		"routes":      s.routes(),
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Helpers ---

func (s *Server) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     s.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", service.ErrInvalidRequest)
		}
		return fmt.Errorf("%w: malformed JSON: %v", service.ErrInvalidRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logg.Error("http", "Failed to encode response", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps service errors to status codes. Internal errors are logged
// and hidden from the client.
func writeError(w http.ResponseWriter, module string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logg.Error(module, "Request failed", err)
		msg = service.ErrInternalError.Error()
	} else {
		logg.Info(module, "Request rejected: "+msg)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
