package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	config "example.com/blogapi/internal/init"
	"example.com/blogapi/internal/logger"
	"example.com/blogapi/internal/middleware"
	"example.com/blogapi/internal/policy"
	"example.com/blogapi/internal/service"
	"example.com/blogapi/internal/store"
	"github.com/gorilla/mux"
)

type Server struct {
	auth     *service.Authenticator
	posts    *service.PostService
	activity *service.ActivityService
	codec    *middleware.TokenCodec

	cookieName   string
	cookieSecure bool
}

var logg = logger.New()

// New wires the services over st. A nil publisher disables event publication.
func New(st store.StoreInterface, publisher service.EventPublisher, cfg *config.Config) (*Server, error) {
	pol, err := policy.New(cfg.ReadPolicy, cfg.AdminCanDelete)
	if err != nil {
		return nil, err
	}
	if publisher == nil {
		publisher = service.NopPublisher{}
	}

	if cfg.UsesDefaultSecret() {
		logg.Warn("server", "SECRET_KEY is unset or left at its default; session tokens can be forged", nil)
	}

	cookieName := cfg.SessionCookieName
	if cookieName == "" {
		cookieName = "session"
	}

	return &Server{
		auth: service.NewAuthenticator(st, publisher, service.AuthOptions{
			BcryptCost:      cfg.BcryptCost,
			RefreshIdentity: cfg.SessionRefreshIdentity,
		}),
		posts:        service.NewPostService(pol, st, st, publisher),
		activity:     service.NewActivityService(st),
		codec:        middleware.NewTokenCodec(cfg.SecretKey),
		cookieName:   cookieName,
		cookieSecure: cfg.SessionCookieSecure,
	}, nil
}

// Handler builds the router from the route table.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})
	r.Use(middleware.SessionAuth(s.codec, s.auth, s.cookieName))

	for _, rt := range s.routes() {
		r.HandleFunc(rt.Path, rt.handler).Methods(rt.Method)
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully. TLS is used
// when both certFile and keyFile are set.
func Run(ctx context.Context, s *Server, addr, certFile, keyFile string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second, // prevent slowloris attacks
		WriteTimeout:      10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			logg.Info("server", "Starting HTTPS server on "+addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			logg.Info("server", "Starting HTTP server on "+addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			logg.Error("server", "Server stopped unexpectedly", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
		return err
	}
	logg.Info("server", "Server stopped gracefully")
	return nil
}
