package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"example.com/blogapi/internal/models"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 500
)

var validate = validator.New()

type CredentialsRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Password string `json:"password" validate:"required"`
}

// normalized trims the username the same way visibility lists trim names,
// so a whitespace-only name fails the required check.
func (r CredentialsRequest) normalized() CredentialsRequest {
	r.Username = strings.TrimSpace(r.Username)
	return r
}

type CreatePostRequest struct {
	Content string `json:"content" validate:"required"`
}

// UpdatePostRequest holds optional fields; a nil field is left unchanged.
type UpdatePostRequest struct {
	Content   *string          `json:"content"`
	VisibleTo *models.Audience `json:"visible_to"`
}

// UnmarshalJSON also accepts the camelCase "visibleTo" key used by older clients.
func (r *UpdatePostRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Content        *string          `json:"content"`
		VisibleTo      *models.Audience `json:"visible_to"`
		VisibleToCamel *models.Audience `json:"visibleTo"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Content = raw.Content
	r.VisibleTo = raw.VisibleTo
	if r.VisibleTo == nil {
		r.VisibleTo = raw.VisibleToCamel
	}
	return nil
}

// PostView is a post as returned to a particular caller.
type PostView struct {
	ID        string          `json:"id"`
	Content   string          `json:"content"`
	Author    string          `json:"author"`
	AuthorID  string          `json:"author_id"`
	CreatedAt time.Time       `json:"created_at"`
	VisibleTo models.Audience `json:"visible_to"`
	CanEdit   bool            `json:"can_edit"`
	CanDelete bool            `json:"can_delete"`
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
