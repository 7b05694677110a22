package models

import "time"

type EventType string

const (
	EventUserRegistered EventType = "user.registered"
	EventUserLoggedIn   EventType = "user.logged_in"
	EventUserLoggedOut  EventType = "user.logged_out"
	EventPostCreated    EventType = "post.created"
	EventPostUpdated    EventType = "post.updated"
	EventPostDeleted    EventType = "post.deleted"
)

// Event is published after every successful state change and recorded by the
// worker as an activity entry.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	PostID    string    `json:"post_id,omitempty"`
	At        time.Time `json:"at"`
}
