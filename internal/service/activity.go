package service

import (
	"context"
	"fmt"

	"example.com/blogapi/internal/models"
	"example.com/blogapi/internal/store"
)

type ActivityService struct {
	store store.ActivityStore
}

func NewActivityService(st store.ActivityStore) *ActivityService {
	return &ActivityService{store: st}
}

// List returns the most recent events, newest first. Admins only.
// A non-positive limit means DefaultActivityLimit; larger values are capped
// at MaxActivityLimit.
func (s *ActivityService) List(ctx context.Context, caller *models.Identity, limit int) ([]models.Event, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	if !caller.IsAdmin {
		return nil, ErrForbidden
	}

	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	limit = min(limit, MaxActivityLimit)

	events, err := s.store.ListActivity(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return events, nil
}
