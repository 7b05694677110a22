package models

import "time"

// UnknownAuthor is shown for posts whose author no longer resolves to a user.
const UnknownAuthor = "Unknown"

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	VisibleTo Audience  `json:"visible_to"`
	CreatedAt time.Time `json:"created_at"`
}

// PostUpdate carries the optional fields of an update; nil means "leave as is".
type PostUpdate struct {
	Content   *string
	VisibleTo *Audience
}

// Apply returns a copy of p with the update applied.
func (u PostUpdate) Apply(p Post) Post {
	if u.Content != nil {
		p.Content = *u.Content
	}
	if u.VisibleTo != nil {
		p.VisibleTo = u.VisibleTo.Clone()
	}
	return p
}

// Session is the server-side record behind a client session token.
// Only the hash of the token is stored.
type Session struct {
	TokenHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity is the acting user of a request.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

func (s Session) Identity() Identity {
	return Identity{UserID: s.UserID, Username: s.Username, IsAdmin: s.IsAdmin}
}

func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Username: u.Username, IsAdmin: u.IsAdmin}
}
