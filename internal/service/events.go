package service

import (
	"context"
	"time"

	"example.com/blogapi/internal/models"
	"example.com/blogapi/internal/store"
	"github.com/google/uuid"
)

//go:generate mockgen -source=events.go -destination=./publisher_mock.go -package=service example.com/blogapi/internal/service EventPublisher
type EventPublisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.Event) error { return nil }

// StorePublisher appends events straight to the activity log. Used when no
// broker is configured, so a single process still records activity.
type StorePublisher struct {
	Store store.ActivityStore
}

func (p StorePublisher) Publish(ctx context.Context, e models.Event) error {
	return p.Store.AppendActivity(ctx, e)
}

func newEvent(typ models.EventType, actor models.Identity, postID string) models.Event {
	return models.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		ActorID:   actor.UserID,
		ActorName: actor.Username,
		PostID:    postID,
		At:        time.Now().UTC(),
	}
}

// publish never fails the caller; the change is already committed.
func publish(ctx context.Context, p EventPublisher, e models.Event) {
	if err := p.Publish(ctx, e); err != nil {
		logg.Warn("service/events", "Failed to publish "+string(e.Type)+" event", err)
	}
}
