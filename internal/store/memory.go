package store

import (
	"context"
	"errors"
	"slices"
	"sync"

	"example.com/blogapi/internal/models"
)

// MemoryStore keeps everything in process memory. It backs the default
// "memory" storage mode and the tests.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]models.User
	byUsername map[string]string
	sessions   map[string]models.Session
	posts      []models.Post
	activity   []models.Event

	ShouldFail bool // flag to simulate failures
}

var errMemoryFail = errors.New("memory store: simulated failure")

// NewMemory initializes an empty in-memory store
func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]models.User),
		byUsername: make(map[string]string),
		sessions:   make(map[string]models.Session),
	}
}

func (m *MemoryStore) Close() {}

// --- Users ---

func (m *MemoryStore) CreateUser(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldFail {
		return errMemoryFail
	}
	if _, taken := m.byUsername[user.Username]; taken {
		return ErrDuplicate
	}
	m.users[user.ID] = user
	m.byUsername[user.Username] = user.ID
	return nil
}

func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ShouldFail {
		return models.User{}, errMemoryFail
	}
	id, ok := m.byUsername[username]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return m.users[id], nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ShouldFail {
		return models.User{}, errMemoryFail
	}
	u, ok := m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

// SetAdmin flips the admin flag out-of-band. Returns ErrNotFound for unknown ids.
func (m *MemoryStore) SetAdmin(id string, isAdmin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsAdmin = isAdmin
	m.users[id] = u
	return nil
}

// RemoveUser deletes a user out-of-band, leaving their posts behind.
func (m *MemoryStore) RemoveUser(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[id]; ok {
		delete(m.byUsername, u.Username)
		delete(m.users, id)
	}
}

// --- Sessions ---

func (m *MemoryStore) CreateSession(_ context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldFail {
		return errMemoryFail
	}
	m.sessions[s.TokenHash] = s
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, tokenHash string) (models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ShouldFail {
		return models.Session{}, errMemoryFail
	}
	s, ok := m.sessions[tokenHash]
	if !ok {
		return models.Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldFail {
		return errMemoryFail
	}
	delete(m.sessions, tokenHash)
	return nil
}

// --- Posts ---

func (m *MemoryStore) CreatePost(_ context.Context, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldFail {
		return errMemoryFail
	}
	if m.indexOf(post.ID) >= 0 {
		return ErrDuplicate
	}
	post.VisibleTo = post.VisibleTo.Clone()
	m.posts = append(m.posts, post)
	return nil
}

func (m *MemoryStore) ListPosts(_ context.Context) ([]models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ShouldFail {
		return nil, errMemoryFail
	}
	out := make([]models.Post, len(m.posts))
	copy(out, m.posts)
	return out, nil
}

func (m *MemoryStore) GetPost(_ context.Context, id string) (models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ShouldFail {
		return models.Post{}, errMemoryFail
	}
	i := m.indexOf(id)
	if i < 0 {
		return models.Post{}, ErrNotFound
	}
	return m.posts[i], nil
}

func (m *MemoryStore) UpdatePost(_ context.Context, id string, upd models.PostUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldFail {
		return errMemoryFail
	}
	i := m.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	m.posts[i] = upd.Apply(m.posts[i])
	return nil
}

func (m *MemoryStore) DeletePost(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldFail {
		return errMemoryFail
	}
	i := m.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	m.posts = slices.Delete(m.posts, i, i+1)
	return nil
}

func (m *MemoryStore) indexOf(id string) int {
	return slices.IndexFunc(m.posts, func(p models.Post) bool { return p.ID == id })
}

// --- Activity ---

func (m *MemoryStore) AppendActivity(_ context.Context, e models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldFail {
		return errMemoryFail
	}
	m.activity = append(m.activity, e)
	return nil
}

func (m *MemoryStore) ListActivity(_ context.Context, limit int) ([]models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ShouldFail {
		return nil, errMemoryFail
	}
	if limit <= 0 {
		return []models.Event{}, nil
	}
	out := make([]models.Event, 0, min(limit, len(m.activity)))
	for i := len(m.activity) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.activity[i])
	}
	return out, nil
}
