package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/blogapi/internal/models"
	"example.com/blogapi/internal/policy"
	"example.com/blogapi/internal/store"
	"github.com/google/uuid"
)

// PostService applies the access policy around the post store.
type PostService struct {
	policy    policy.Policy
	posts     store.PostStore
	users     store.UserStore
	publisher EventPublisher
}

func NewPostService(p policy.Policy, posts store.PostStore, users store.UserStore, publisher EventPublisher) *PostService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &PostService{policy: p, posts: posts, users: users, publisher: publisher}
}

func (s *PostService) Policy() policy.Policy { return s.policy }

// Create stores a new post owned by caller with an empty visibility list.
func (s *PostService) Create(ctx context.Context, caller *models.Identity, req CreatePostRequest) (models.Post, error) {
	if !s.policy.CanCreate(caller) {
		return models.Post{}, ErrUnauthenticated
	}
	if err := validateStruct(req); err != nil {
		return models.Post{}, err
	}
	if isBlank(req.Content) {
		return models.Post{}, fmt.Errorf("%w: content must not be blank", ErrInvalidRequest)
	}

	post := models.Post{
		ID:        uuid.NewString(),
		AuthorID:  caller.UserID,
		Content:   req.Content,
		VisibleTo: models.NewAudience(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.posts.CreatePost(ctx, post); err != nil {
		return models.Post{}, fmt.Errorf("create post: %w", err)
	}

	logg.Info("service/posts", "Post created post_id="+post.ID+" by user_id="+caller.UserID)
	publish(ctx, s.publisher, newEvent(models.EventPostCreated, *caller, post.ID))
	return post, nil
}

// List returns the posts caller may read, oldest first.
func (s *PostService) List(ctx context.Context, caller *models.Identity) ([]PostView, error) {
	if caller == nil && s.policy.ReadRequiresAuth() {
		return nil, ErrUnauthenticated
	}

	all, err := s.posts.ListPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	visible := s.policy.Visible(caller, all)
	names := make(map[string]string)
	views := make([]PostView, 0, len(visible))
	for _, post := range visible {
		author, err := s.authorName(ctx, post.AuthorID, names)
		if err != nil {
			return nil, err
		}
		views = append(views, s.view(caller, post, author))
	}
	return views, nil
}

// Get returns a single post. A post that exists but is hidden from caller
// yields ErrForbidden.
func (s *PostService) Get(ctx context.Context, caller *models.Identity, id string) (PostView, error) {
	if caller == nil && s.policy.ReadRequiresAuth() {
		return PostView{}, ErrUnauthenticated
	}

	post, err := s.load(ctx, id)
	if err != nil {
		return PostView{}, err
	}
	if !s.policy.CanRead(caller, post) {
		return PostView{}, ErrForbidden
	}

	author, err := s.authorName(ctx, post.AuthorID, nil)
	if err != nil {
		return PostView{}, err
	}
	return s.view(caller, post, author), nil
}

// Update changes content and/or visibility. Absent fields stay as they are.
func (s *PostService) Update(ctx context.Context, caller *models.Identity, id string, req UpdatePostRequest) error {
	if caller == nil {
		return ErrUnauthenticated
	}

	post, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !s.policy.CanUpdate(caller, post) {
		return ErrForbidden
	}
	if req.Content != nil && isBlank(*req.Content) {
		return fmt.Errorf("%w: content must not be blank", ErrInvalidRequest)
	}

	upd := models.PostUpdate{Content: req.Content, VisibleTo: req.VisibleTo}
	if err := s.posts.UpdatePost(ctx, id, upd); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("update post: %w", err)
	}

	logg.Info("service/posts", "Post updated post_id="+id+" by user_id="+caller.UserID)
	publish(ctx, s.publisher, newEvent(models.EventPostUpdated, *caller, id))
	return nil
}

func (s *PostService) Delete(ctx context.Context, caller *models.Identity, id string) error {
	if caller == nil {
		return ErrUnauthenticated
	}

	post, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !s.policy.CanDelete(caller, post) {
		return ErrForbidden
	}

	if err := s.posts.DeletePost(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete post: %w", err)
	}

	logg.Info("service/posts", "Post deleted post_id="+id+" by user_id="+caller.UserID)
	publish(ctx, s.publisher, newEvent(models.EventPostDeleted, *caller, id))
	return nil
}

func (s *PostService) load(ctx context.Context, id string) (models.Post, error) {
	post, err := s.posts.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Post{}, ErrNotFound
		}
		return models.Post{}, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

// authorName resolves a user id to a username, memoizing into cache when given.
func (s *PostService) authorName(ctx context.Context, userID string, cache map[string]string) (string, error) {
	if name, ok := cache[userID]; ok {
		return name, nil
	}
	name := models.UnknownAuthor
	user, err := s.users.GetUserByID(ctx, userID)
	switch {
	case err == nil:
		name = user.Username
	case !errors.Is(err, store.ErrNotFound):
		return "", fmt.Errorf("resolve author: %w", err)
	}
	if cache != nil {
		cache[userID] = name
	}
	return name, nil
}

func (s *PostService) view(caller *models.Identity, post models.Post, author string) PostView {
	return PostView{
		ID:        post.ID,
		Content:   post.Content,
		Author:    author,
		AuthorID:  post.AuthorID,
		CreatedAt: post.CreatedAt,
		VisibleTo: post.VisibleTo.Clone(),
		CanEdit:   s.policy.CanUpdate(caller, post),
		CanDelete: s.policy.CanDelete(caller, post),
	}
}
