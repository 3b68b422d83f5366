/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package post

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository. It's safe for concurrent use.
type MemoryRepository struct {
	now   func() time.Time
	newID func() string

	mu    sync.RWMutex
	posts map[string]*Post
	order []string // ids in insertion order
}

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepositoryOpts represents options for MemoryRepository.
type MemoryRepositoryOpts struct {
	// Clock returns the current time. time.Now is used if nil.
	Clock func() time.Time

	// NewID generates post ids. Random UUIDs are used if nil.
	NewID func() string
}

// NewMemoryRepository creates a new empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return NewMemoryRepositoryWithOpts(MemoryRepositoryOpts{})
}

// NewMemoryRepositoryWithOpts creates a new empty MemoryRepository with options.
func NewMemoryRepositoryWithOpts(opts MemoryRepositoryOpts) *MemoryRepository {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	return &MemoryRepository{now: opts.Clock, newID: opts.NewID, posts: make(map[string]*Post)}
}

// Create validates params and stores a new post owned by userID.
func (r *MemoryRepository) Create(_ context.Context, userID string, params CreateParams) (Post, error) {
	params = params.Normalize()
	if err := params.Validate(); err != nil {
		return Post{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	p := &Post{
		ID:        r.newID(),
		Title:     params.Title,
		Author:    params.Author,
		Content:   params.Content,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.posts[p.ID] = p
	r.order = append(r.order, p.ID)
	return *p, nil
}

// Get returns the post by id or ErrNotFound.
func (r *MemoryRepository) Get(_ context.Context, id string) (Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.posts[id]
	if !ok {
		return Post{}, ErrNotFound
	}
	return *p, nil
}

// Update changes the present fields of the post.
func (r *MemoryRepository) Update(_ context.Context, id, userID string, params UpdateParams) (Post, error) {
	params = params.Normalize()
	if err := params.Validate(); err != nil {
		return Post{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.posts[id]
	if !ok {
		return Post{}, ErrNotFound
	}
	if p.UserID != userID {
		return Post{}, ErrForbidden
	}
	if params.Title != nil {
		p.Title = *params.Title
	}
	if params.Author != nil {
		p.Author = *params.Author
	}
	if params.Content != nil {
		p.Content = *params.Content
	}
	p.UpdatedAt = r.now().UTC()
	return *p, nil
}

// Delete removes the post.
func (r *MemoryRepository) Delete(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.posts[id]
	if !ok {
		return ErrNotFound
	}
	if p.UserID != userID {
		return ErrForbidden
	}
	delete(r.posts, id)
	for i := range r.order {
		if r.order[i] == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns a filtered, sorted page of posts.
func (r *MemoryRepository) List(_ context.Context, q ListQuery) (ListResult, error) {
	q = q.WithDefaults()
	if err := q.Validate(); err != nil {
		return ListResult{}, err
	}

	r.mu.RLock()
	matched := make([]*Post, 0, len(r.order))
	for _, id := range r.order {
		if p := r.posts[id]; q.matches(p) {
			matched = append(matched, p)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return q.less(matched[i], matched[j]) })

	res := ListResult{Total: len(matched), Page: q.Page, Limit: q.Limit, TotalPages: totalPages(len(matched), q.Limit)}
	res.Posts = make([]Post, 0, min(q.Limit, len(matched)))
	// Pages past the last one are empty. The check keeps (Page-1)*Limit from overflowing.
	if q.Page <= res.TotalPages {
		for i := (q.Page - 1) * q.Limit; i < len(matched) && len(res.Posts) < q.Limit; i++ {
			res.Posts = append(res.Posts, *matched[i])
		}
	}
	r.mu.RUnlock()

	return res, nil
}

// ListByUser returns all posts of the user, newest first.
func (r *MemoryRepository) ListByUser(_ context.Context, userID string) ([]Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]Post, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		if p := r.posts[r.order[i]]; p.UserID == userID {
			res = append(res, *p)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}
