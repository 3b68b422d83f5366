/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package post

import (
	"context"
	"errors"
	"time"
)

// Errors returned by repositories.
var (
	ErrNotFound  = errors.New("post not found")
	ErrForbidden = errors.New("post belongs to another user")
)

// Post is a blog post.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateParams contains fields of a new post.
type CreateParams struct {
	Title   string `json:"title"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

// UpdateParams contains fields to change. Nil fields are left as is.
type UpdateParams struct {
	Title   *string `json:"title"`
	Author  *string `json:"author"`
	Content *string `json:"content"`
}

// Repository stores posts.
// Update and Delete check ownership and return ErrForbidden if userID is not the owner of the post.
type Repository interface {
	Create(ctx context.Context, userID string, params CreateParams) (Post, error)
	Get(ctx context.Context, id string) (Post, error)
	Update(ctx context.Context, id, userID string, params UpdateParams) (Post, error)
	Delete(ctx context.Context, id, userID string) error
	List(ctx context.Context, q ListQuery) (ListResult, error)
	ListByUser(ctx context.Context, userID string) ([]Post, error)
}
