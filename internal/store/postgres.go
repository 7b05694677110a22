package store

import (
	"context"
	"errors"
	"fmt"

	"example.com/blogapi/internal/models"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

var (
	ErrBuildingQuery = errors.New("error building sql-query")

	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	userColumns    = []string{UserIDColumn, UserUsernameColumn, UserPasswordHashColumn, UserIsAdminColumn, UserCreatedAtColumn}
	postColumns    = []string{PostIDColumn, PostAuthorIDColumn, PostContentColumn, PostVisibleToColumn, PostCreatedAtColumn}
	sessionColumns = []string{SessionTokenHashColumn, SessionUserIDColumn, SessionUsernameColumn, SessionIsAdminColumn, SessionCreatedAtColumn}
	eventColumns   = []string{ActivityIDColumn, ActivityTypeColumn, ActivityActorIDColumn, ActivityActorNameColumn, ActivityPostIDColumn, ActivityAtColumn}
)

// DB is the subset of pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	db   DB
	pool *pgxpool.Pool
}

// NewPostgres connects a pgx pool to dsn and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 20

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logg.Info("store", "Connected to PostgreSQL (dsn anonymized)")
	return &PostgresStore{db: pool, pool: pool}, nil
}

// NewPostgresWithDB wraps an existing connection, e.g. a transaction or a mock.
func NewPostgresWithDB(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
		logg.Info("store", "PostgreSQL pool closed")
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u models.User) error {
	query, args, err := psql.
		Insert(UsersTableName).
		Columns(userColumns...).
		Values(u.ID, u.Username, u.PasswordHash, u.IsAdmin, u.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuildingQuery, err)
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("exec insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return s.getUser(ctx, sq.Eq{UserUsernameColumn: username})
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (models.User, error) {
	return s.getUser(ctx, sq.Eq{UserIDColumn: id})
}

func (s *PostgresStore) getUser(ctx context.Context, where sq.Eq) (models.User, error) {
	var out models.User

	query, args, err := psql.
		Select(userColumns...).
		From(UsersTableName).
		Where(where).
		ToSql()
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrBuildingQuery, err)
	}

	if err := s.db.QueryRow(ctx, query, args...).Scan(
		&out.ID,
		&out.Username,
		&out.PasswordHash,
		&out.IsAdmin,
		&out.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return out, ErrNotFound
		}
		return out, fmt.Errorf("exec select user: %w", err)
	}
	return out, nil
}

// --- Sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, sess models.Session) error {
	query, args, err := psql.
		Insert(SessionsTableName).
		Columns(sessionColumns...).
		Values(sess.TokenHash, sess.UserID, sess.Username, sess.IsAdmin, sess.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuildingQuery, err)
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("exec insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, tokenHash string) (models.Session, error) {
	var out models.Session

	query, args, err := psql.
		Select(sessionColumns...).
		From(SessionsTableName).
		Where(sq.Eq{SessionTokenHashColumn: tokenHash}).
		ToSql()
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrBuildingQuery, err)
	}

	if err := s.db.QueryRow(ctx, query, args...).Scan(
		&out.TokenHash,
		&out.UserID,
		&out.Username,
		&out.IsAdmin,
		&out.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return out, ErrNotFound
		}
		return out, fmt.Errorf("exec select session: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, tokenHash string) error {
	query, args, err := psql.
		Delete(SessionsTableName).
		Where(sq.Eq{SessionTokenHashColumn: tokenHash}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuildingQuery, err)
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("exec delete session: %w", err)
	}
	return nil
}

// --- Posts ---

func (s *PostgresStore) CreatePost(ctx context.Context, p models.Post) error {
	query, args, err := psql.
		Insert(PostsTableName).
		Columns(postColumns...).
		Values(p.ID, p.AuthorID, p.Content, p.VisibleTo.Names(), p.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuildingQuery, err)
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("exec insert post: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPosts(ctx context.Context) ([]models.Post, error) {
	query, args, err := psql.
		Select(postColumns...).
		From(PostsTableName).
		OrderBy(PostCreatedAtColumn+" ASC", PostIDColumn+" ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildingQuery, err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exec select posts: %w", err)
	}
	defer rows.Close()

	out := make([]models.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetPost(ctx context.Context, id string) (models.Post, error) {
	query, args, err := psql.
		Select(postColumns...).
		From(PostsTableName).
		Where(sq.Eq{PostIDColumn: id}).
		ToSql()
	if err != nil {
		return models.Post{}, fmt.Errorf("%w: %v", ErrBuildingQuery, err)
	}

	p, err := scanPost(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Post{}, ErrNotFound
		}
		return models.Post{}, fmt.Errorf("exec select post by id: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) UpdatePost(ctx context.Context, id string, upd models.PostUpdate) error {
	if upd.Content == nil && upd.VisibleTo == nil {
		_, err := s.GetPost(ctx, id)
		return err
	}

	b := psql.Update(PostsTableName)
	if upd.Content != nil {
		b = b.Set(PostContentColumn, *upd.Content)
	}
	if upd.VisibleTo != nil {
		b = b.Set(PostVisibleToColumn, upd.VisibleTo.Names())
	}
	query, args, err := b.Where(sq.Eq{PostIDColumn: id}).ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuildingQuery, err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec update post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeletePost(ctx context.Context, id string) error {
	query, args, err := psql.
		Delete(PostsTableName).
		Where(sq.Eq{PostIDColumn: id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuildingQuery, err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPost(row pgx.Row) (models.Post, error) {
	var (
		p         models.Post
		visibleTo []string
	)
	if err := row.Scan(&p.ID, &p.AuthorID, &p.Content, &visibleTo, &p.CreatedAt); err != nil {
		return models.Post{}, err
	}
	p.VisibleTo = models.NewAudience(visibleTo...)
	return p, nil
}

// --- Activity ---

func (s *PostgresStore) AppendActivity(ctx context.Context, e models.Event) error {
	query, args, err := psql.
		Insert(ActivityTableName).
		Columns(eventColumns...).
		Values(e.ID, string(e.Type), e.ActorID, e.ActorName, e.PostID, e.At).
		Suffix("ON CONFLICT (" + ActivityIDColumn + ") DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuildingQuery, err)
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("exec insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivity(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		return []models.Event{}, nil
	}

	query, args, err := psql.
		Select(eventColumns...).
		From(ActivityTableName).
		OrderBy(ActivityAtColumn + " DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildingQuery, err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exec select activity: %w", err)
	}
	defer rows.Close()

	out := make([]models.Event, 0, limit)
	for rows.Next() {
		var (
			e   models.Event
			typ string
		)
		if err := rows.Scan(&e.ID, &typ, &e.ActorID, &e.ActorName, &e.PostID, &e.At); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e.Type = models.EventType(typ)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
