package store

import (
	"context"
	"errors"
	"fmt"

	config "example.com/blogapi/internal/init"
	"example.com/blogapi/internal/logger"
	"example.com/blogapi/internal/models"
)

var logg = logger.New()

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendCassandra = "cassandra"
)

// --- Interfaces ---

// UserStore holds credentials. Usernames are unique.
type UserStore interface {
	// CreateUser returns ErrDuplicate if the username is taken.
	CreateUser(ctx context.Context, user models.User) error
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByID(ctx context.Context, id string) (models.User, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, session models.Session) error
	GetSession(ctx context.Context, tokenHash string) (models.Session, error)
	// DeleteSession is a no-op for unknown hashes.
	DeleteSession(ctx context.Context, tokenHash string) error
}

type PostStore interface {
	CreatePost(ctx context.Context, post models.Post) error
	// ListPosts returns every post, oldest first.
	ListPosts(ctx context.Context) ([]models.Post, error)
	GetPost(ctx context.Context, id string) (models.Post, error)
	UpdatePost(ctx context.Context, id string, upd models.PostUpdate) error
	DeletePost(ctx context.Context, id string) error
}

type ActivityStore interface {
	AppendActivity(ctx context.Context, event models.Event) error
	// ListActivity returns up to limit events, newest first.
	ListActivity(ctx context.Context, limit int) ([]models.Event, error)
}

type StoreInterface interface {
	UserStore
	SessionStore
	PostStore
	ActivityStore
	Close()
}

// New opens the backend selected by cfg.StorageBackend. SQL and CQL backends
// are migrated before use.
func New(ctx context.Context, cfg *config.Config) (StoreInterface, error) {
	switch cfg.StorageBackend {
	case BackendMemory, "":
		logg.Info("store", "Using in-memory store")
		return NewMemory(), nil
	case BackendPostgres:
		if err := MigratePostgres(cfg.PostgresDSN); err != nil {
			return nil, fmt.Errorf("failed to run postgres migrations: %w", err)
		}
		pg, err := NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case BackendCassandra:
		cs, err := NewCassandra(cfg)
		if err != nil {
			return nil, err
		}
		return cs, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
