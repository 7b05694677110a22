// Package policy decides what an identity may do with a blog post.
//
// Every function takes the caller as a pointer; nil means the request carries
// no valid session.
package policy

import (
	"fmt"

	"example.com/blogapi/internal/models"
)

// ReadMode selects who may read posts.
type ReadMode string

const (
	// ReadPublic: anyone, authenticated or not, sees every post.
	ReadPublic ReadMode = "public"
	// ReadAuthenticated: any authenticated user sees every post.
	ReadAuthenticated ReadMode = "authenticated"
	// ReadVisibility: a post is shown to admins, its author and the users in
	// its visibility list.
	ReadVisibility ReadMode = "visibility"
)

func ParseReadMode(s string) (ReadMode, error) {
	switch m := ReadMode(s); m {
	case ReadPublic, ReadAuthenticated, ReadVisibility:
		return m, nil
	case "":
		return ReadVisibility, nil
	default:
		return "", fmt.Errorf("unknown read policy %q", s)
	}
}

type Policy struct {
	Read ReadMode
	// AdminCanDelete lets admins delete posts they did not write.
	AdminCanDelete bool
}

// Default is the visibility-scoped policy with admin delete override.
func Default() Policy {
	return Policy{Read: ReadVisibility, AdminCanDelete: true}
}

func New(readMode string, adminCanDelete bool) (Policy, error) {
	mode, err := ParseReadMode(readMode)
	if err != nil {
		return Policy{}, err
	}
	return Policy{Read: mode, AdminCanDelete: adminCanDelete}, nil
}

// ReadRequiresAuth reports whether anonymous callers are rejected on reads.
func (p Policy) ReadRequiresAuth() bool {
	return p.Read != ReadPublic
}

func (p Policy) CanCreate(caller *models.Identity) bool {
	return caller != nil
}

func (p Policy) CanRead(caller *models.Identity, post models.Post) bool {
	switch p.Read {
	case ReadPublic:
		return true
	case ReadAuthenticated:
		return caller != nil
	default:
		if caller == nil {
			return false
		}
		return caller.IsAdmin || isAuthor(caller, post) || post.VisibleTo.Contains(caller.Username)
	}
}

func (p Policy) CanUpdate(caller *models.Identity, post models.Post) bool {
	if caller == nil {
		return false
	}
	return caller.IsAdmin || isAuthor(caller, post)
}

func (p Policy) CanDelete(caller *models.Identity, post models.Post) bool {
	if caller == nil {
		return false
	}
	if isAuthor(caller, post) {
		return true
	}
	return p.AdminCanDelete && caller.IsAdmin
}

// Visible filters posts down to the ones caller may read, keeping order.
func (p Policy) Visible(caller *models.Identity, posts []models.Post) []models.Post {
	out := make([]models.Post, 0, len(posts))
	for _, post := range posts {
		if p.CanRead(caller, post) {
			out = append(out, post)
		}
	}
	return out
}

func isAuthor(caller *models.Identity, post models.Post) bool {
	return caller.UserID != "" && caller.UserID == post.AuthorID
}
