package store

import (
	"context"
	"errors"

	"example.com/blogapi/internal/models"
)

// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

var errMockFail = errors.New("mock store failure")

func (m *MockStoreFail) Close() {}

func (m *MockStoreFail) CreateUser(context.Context, models.User) error {
	return errMockFail
}

func (m *MockStoreFail) GetUserByUsername(context.Context, string) (models.User, error) {
	return models.User{}, errMockFail
}

func (m *MockStoreFail) GetUserByID(context.Context, string) (models.User, error) {
	return models.User{}, errMockFail
}

func (m *MockStoreFail) CreateSession(context.Context, models.Session) error {
	return errMockFail
}

func (m *MockStoreFail) GetSession(context.Context, string) (models.Session, error) {
	return models.Session{}, errMockFail
}

func (m *MockStoreFail) DeleteSession(context.Context, string) error {
	return errMockFail
}

func (m *MockStoreFail) CreatePost(context.Context, models.Post) error {
	return errMockFail
}

func (m *MockStoreFail) ListPosts(context.Context) ([]models.Post, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) GetPost(context.Context, string) (models.Post, error) {
	return models.Post{}, errMockFail
}

func (m *MockStoreFail) UpdatePost(context.Context, string, models.PostUpdate) error {
	return errMockFail
}

func (m *MockStoreFail) DeletePost(context.Context, string) error {
	return errMockFail
}

func (m *MockStoreFail) AppendActivity(context.Context, models.Event) error {
	return errMockFail
}

func (m *MockStoreFail) ListActivity(context.Context, int) ([]models.Event, error) {
	return nil, errMockFail
}
