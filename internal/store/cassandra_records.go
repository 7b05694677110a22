package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"example.com/blogapi/internal/models"
	"github.com/gocql/gocql"
)

// all activity rows share one partition; the table is small and read newest first
const activityBucket = 0

// --- User operations ---

// CreateUser claims the username with a lightweight transaction first, so two
// concurrent registrations cannot both succeed.
func (s *CassandraStore) CreateUser(ctx context.Context, u models.User) error {
	claim := func() (bool, error) {
		result := make(map[string]interface{})
		return s.Session.Query(`
			INSERT INTO users_by_username (username, user_id)
			VALUES (?, ?) IF NOT EXISTS`,
			u.Username, u.ID,
		).WithContext(ctx).MapScanCAS(result)
	}
	insert := func() error {
		return s.Session.Query(`
			INSERT INTO users (user_id, username, password_hash, is_admin, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			u.ID, u.Username, u.PasswordHash, u.IsAdmin, u.CreatedAt,
		).WithContext(ctx).Exec()
	}
	// the release still runs when ctx is what failed the insert
	release := func() error {
		result := make(map[string]interface{})
		_, err := s.Session.Query(`
			DELETE FROM users_by_username WHERE username = ? IF user_id = ?`,
			u.Username, u.ID,
		).WithContext(context.WithoutCancel(ctx)).MapScanCAS(result)
		return err
	}

	if err := claimThenInsert(claim, insert, release); err != nil {
		return err
	}
	logg.Info("store", "User created successfully (username anonymized)")
	return nil
}

// claimThenInsert reserves a unique key, writes the row behind it and gives
// the key back when the write fails, so a failed registration can be retried.
func claimThenInsert(claim func() (bool, error), insert, release func() error) error {
	applied, err := claim()
	if err != nil {
		logg.Error("store", "Failed to create username entry", err)
		return err
	}
	if !applied {
		return ErrDuplicate
	}

	if err := insert(); err != nil {
		logg.Error("store", "Failed to create user in main table", err)
		if rerr := release(); rerr != nil {
			logg.Error("store", "Failed to release username entry", rerr)
		}
		return err
	}
	return nil
}

func (s *CassandraStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var id string
	err := s.Session.Query(
		`SELECT user_id FROM users_by_username WHERE username = ?`,
		username,
	).WithContext(ctx).Scan(&id)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.User{}, ErrNotFound
		}
		logg.Error("store", "Failed to query user by username", err)
		return models.User{}, err
	}
	return s.GetUserByID(ctx, id)
}

func (s *CassandraStore) GetUserByID(ctx context.Context, id string) (models.User, error) {
	u := models.User{ID: id}
	err := s.Session.Query(`
		SELECT username, password_hash, is_admin, created_at
		FROM users WHERE user_id = ?`,
		id,
	).WithContext(ctx).Scan(&u.Username, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.User{}, ErrNotFound
		}
		logg.Error("store", "Failed to query user by id", err)
		return models.User{}, err
	}
	return u, nil
}

// --- Session operations ---

func (s *CassandraStore) CreateSession(ctx context.Context, sess models.Session) error {
	if err := s.Session.Query(`
		INSERT INTO sessions (token_hash, user_id, username, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sess.TokenHash, sess.UserID, sess.Username, sess.IsAdmin, sess.CreatedAt,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to create session", err)
		return err
	}
	return nil
}

func (s *CassandraStore) GetSession(ctx context.Context, tokenHash string) (models.Session, error) {
	sess := models.Session{TokenHash: tokenHash}
	err := s.Session.Query(`
		SELECT user_id, username, is_admin, created_at
		FROM sessions WHERE token_hash = ?`,
		tokenHash,
	).WithContext(ctx).Scan(&sess.UserID, &sess.Username, &sess.IsAdmin, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.Session{}, ErrNotFound
		}
		logg.Error("store", "Failed to query session", err)
		return models.Session{}, err
	}
	return sess, nil
}

func (s *CassandraStore) DeleteSession(ctx context.Context, tokenHash string) error {
	if err := s.Session.Query(
		`DELETE FROM sessions WHERE token_hash = ?`,
		tokenHash,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to delete session", err)
		return err
	}
	return nil
}

// --- Post operations ---

func (s *CassandraStore) CreatePost(ctx context.Context, p models.Post) error {
	if err := s.Session.Query(`
		INSERT INTO posts (post_id, author_id, content, visible_to, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.AuthorID, p.Content, p.VisibleTo.Names(), p.CreatedAt,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to add post", err)
		return err
	}

	logg.Info("store", "Post added to posts table (post content anonymized)")
	return nil
}

// ListPosts scans the whole table and orders the result in memory.
func (s *CassandraStore) ListPosts(ctx context.Context) ([]models.Post, error) {
	iter := s.Session.Query(`
		SELECT post_id, author_id, content, visible_to, created_at
		FROM posts`,
	).WithContext(ctx).Iter()

	res := make([]models.Post, 0)
	var (
		pid, aid, content string
		visibleTo         []string
		created           time.Time
	)
	for iter.Scan(&pid, &aid, &content, &visibleTo, &created) {
		res = append(res, models.Post{
			ID:        pid,
			AuthorID:  aid,
			Content:   content,
			VisibleTo: models.NewAudience(visibleTo...),
			CreatedAt: created,
		})
		visibleTo = nil
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list posts", err)
		return nil, err
	}

	slices.SortStableFunc(res, func(a, b models.Post) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return res, nil
}

func (s *CassandraStore) GetPost(ctx context.Context, id string) (models.Post, error) {
	p := models.Post{ID: id}
	var visibleTo []string
	err := s.Session.Query(`
		SELECT author_id, content, visible_to, created_at
		FROM posts WHERE post_id = ?`,
		id,
	).WithContext(ctx).Scan(&p.AuthorID, &p.Content, &visibleTo, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.Post{}, ErrNotFound
		}
		logg.Error("store", "Failed to query post", err)
		return models.Post{}, err
	}
	p.VisibleTo = models.NewAudience(visibleTo...)
	return p, nil
}

func (s *CassandraStore) UpdatePost(ctx context.Context, id string, upd models.PostUpdate) error {
	var (
		sets []string
		args []interface{}
	)
	if upd.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *upd.Content)
	}
	if upd.VisibleTo != nil {
		sets = append(sets, "visible_to = ?")
		args = append(args, upd.VisibleTo.Names())
	}
	if len(sets) == 0 {
		_, err := s.GetPost(ctx, id)
		return err
	}
	args = append(args, id)

	result := make(map[string]interface{})
	applied, err := s.Session.Query(
		"UPDATE posts SET "+strings.Join(sets, ", ")+" WHERE post_id = ? IF EXISTS",
		args...,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to update post", err)
		return err
	}
	if !applied {
		return ErrNotFound
	}
	return nil
}

func (s *CassandraStore) DeletePost(ctx context.Context, id string) error {
	result := make(map[string]interface{})
	applied, err := s.Session.Query(
		`DELETE FROM posts WHERE post_id = ? IF EXISTS`,
		id,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to delete post", err)
		return err
	}
	if !applied {
		return ErrNotFound
	}
	return nil
}

// --- Activity operations ---

func (s *CassandraStore) AppendActivity(ctx context.Context, e models.Event) error {
	if err := s.Session.Query(`
		INSERT INTO activity (bucket, event_time, event_id, type, actor_id, actor_name, post_id, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		activityBucket, gocql.UUIDFromTime(e.At), e.ID, string(e.Type), e.ActorID, e.ActorName, e.PostID, e.At,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to append activity", err)
		return err
	}
	return nil
}

func (s *CassandraStore) ListActivity(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		return []models.Event{}, nil
	}

	iter := s.Session.Query(`
		SELECT event_id, type, actor_id, actor_name, post_id, at
		FROM activity WHERE bucket = ? LIMIT ?`,
		activityBucket, limit,
	).WithContext(ctx).Iter()

	res := make([]models.Event, 0, limit)
	var (
		id, typ, actorID, actorName, postID string
		at                                  time.Time
	)
	for iter.Scan(&id, &typ, &actorID, &actorName, &postID, &at) {
		res = append(res, models.Event{
			ID:        id,
			Type:      models.EventType(typ),
			ActorID:   actorID,
			ActorName: actorName,
			PostID:    postID,
			At:        at,
		})
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list activity", err)
		return nil, err
	}
	return res, nil
}
