/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-blogapi/httpserver/middleware"
	"github.com/acronis/go-blogapi/internal/auth"
	"github.com/acronis/go-blogapi/internal/post"
	"github.com/acronis/go-blogapi/log"
	"github.com/acronis/go-blogapi/restapi"
)

// Error messages.
const (
	ErrMessagePostNotFound = "Post not found."
	ErrMessageForbidden    = "You can only change your own posts."
	ErrMessageValidation   = "Validation failed."
)

const postIDURLParam = "id"

// PostResponse wraps a single post.
type PostResponse struct {
	Message string    `json:"message,omitempty"`
	Post    post.Post `json:"post"`
}

// MessageResponse is returned when there is nothing but a status message to report.
type MessageResponse struct {
	Message string `json:"message"`
}

// ListPostsResponse is a page of posts.
type ListPostsResponse struct {
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	Total      int         `json:"total"`
	TotalPages int         `json:"totalPages"`
	Count      int         `json:"count"`
	Posts      []post.Post `json:"posts"`
}

// UserPostsResponse contains all posts of the current user.
type UserPostsResponse struct {
	Count int         `json:"count"`
	Posts []post.Post `json:"posts"`
}

// PostsHandler serves CRUD operations on posts.
type PostsHandler struct {
	repo      post.Repository
	errDomain string
}

// NewPostsHandler creates a new PostsHandler.
func NewPostsHandler(repo post.Repository, errDomain string) *PostsHandler {
	return &PostsHandler{repo: repo, errDomain: errDomain}
}

// Create serves POST /posts.
func (h *PostsHandler) Create(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	var params post.CreateParams
	if err := restapi.DecodeRequestJSON(r, &params, false); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, h.errDomain, err, logger)
		return
	}

	startTime := time.Now()
	p, err := h.repo.Create(r.Context(), auth.GetUserIDFromContext(r.Context()), params)
	addRepoTimeSlot(r, startTime)
	if err != nil {
		h.respondRepoError(rw, err, logger)
		return
	}
	if logger != nil {
		logger.Info("post created", log.String("post_id", p.ID))
	}
	restapi.RespondCodeAndJSON(rw, http.StatusCreated, PostResponse{Message: "Post created", Post: p}, logger)
}

// List serves GET /posts.
func (h *PostsHandler) List(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	page, err := restapi.QueryInt(r, "page", post.DefaultPage)
	if err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, h.errDomain, err, logger)
		return
	}
	limit, err := restapi.QueryInt(r, "limit", post.DefaultLimit)
	if err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, h.errDomain, err, logger)
		return
	}
	query := r.URL.Query()
	q := post.ListQuery{
		Page:   page,
		Limit:  limit,
		Search: query.Get("search"),
		Author: query.Get("author"),
		SortBy: post.SortField(query.Get("sortBy")),
		Order:  post.SortOrder(query.Get("order")),
	}

	startTime := time.Now()
	res, err := h.repo.List(r.Context(), q)
	addRepoTimeSlot(r, startTime)
	if err != nil {
		h.respondRepoError(rw, err, logger)
		return
	}
	restapi.RespondJSON(rw, ListPostsResponse{
		Page:       res.Page,
		Limit:      res.Limit,
		Total:      res.Total,
		TotalPages: res.TotalPages,
		Count:      len(res.Posts),
		Posts:      res.Posts,
	}, logger)
}

// ListMine serves GET /posts/my.
func (h *PostsHandler) ListMine(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	startTime := time.Now()
	posts, err := h.repo.ListByUser(r.Context(), auth.GetUserIDFromContext(r.Context()))
	addRepoTimeSlot(r, startTime)
	if err != nil {
		h.respondRepoError(rw, err, logger)
		return
	}
	restapi.RespondJSON(rw, UserPostsResponse{Count: len(posts), Posts: posts}, logger)
}

// Get serves GET /posts/{id}.
func (h *PostsHandler) Get(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	startTime := time.Now()
	p, err := h.repo.Get(r.Context(), chi.URLParam(r, postIDURLParam))
	addRepoTimeSlot(r, startTime)
	if err != nil {
		h.respondRepoError(rw, err, logger)
		return
	}
	restapi.RespondJSON(rw, PostResponse{Post: p}, logger)
}

// Update serves PUT /posts/{id}.
func (h *PostsHandler) Update(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	var params post.UpdateParams
	if err := restapi.DecodeRequestJSON(r, &params, false); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, h.errDomain, err, logger)
		return
	}

	startTime := time.Now()
	p, err := h.repo.Update(r.Context(), chi.URLParam(r, postIDURLParam), auth.GetUserIDFromContext(r.Context()), params)
	addRepoTimeSlot(r, startTime)
	if err != nil {
		h.respondRepoError(rw, err, logger)
		return
	}
	restapi.RespondJSON(rw, PostResponse{Message: "Post updated", Post: p}, logger)
}

// Delete serves DELETE /posts/{id}.
func (h *PostsHandler) Delete(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	postID := chi.URLParam(r, postIDURLParam)
	startTime := time.Now()
	err := h.repo.Delete(r.Context(), postID, auth.GetUserIDFromContext(r.Context()))
	addRepoTimeSlot(r, startTime)
	if err != nil {
		h.respondRepoError(rw, err, logger)
		return
	}
	if logger != nil {
		logger.Info("post deleted", log.String("post_id", postID))
	}
	restapi.RespondJSON(rw, MessageResponse{Message: "Post deleted"}, logger)
}

func (h *PostsHandler) respondRepoError(rw http.ResponseWriter, err error, logger log.FieldLogger) {
	var vErr *post.ValidationError
	switch {
	case errors.As(err, &vErr):
		apiErr := restapi.NewError(h.errDomain, restapi.ErrCodeValidation, ErrMessageValidation)
		restapi.RespondError(rw, http.StatusBadRequest, apiErr.AddContext("fields", vErr.Fields), logger)
	case errors.Is(err, post.ErrNotFound):
		restapi.RespondError(rw, http.StatusNotFound,
			restapi.NewError(h.errDomain, restapi.ErrCodeNotFound, ErrMessagePostNotFound), logger)
	case errors.Is(err, post.ErrForbidden):
		restapi.RespondError(rw, http.StatusForbidden,
			restapi.NewError(h.errDomain, restapi.ErrCodeForbidden, ErrMessageForbidden), logger)
	default:
		if logger != nil {
			logger.Error("posts repository failed", log.Error(err))
		}
		restapi.RespondInternalError(rw, h.errDomain, logger)
	}
}

func addRepoTimeSlot(r *http.Request, startTime time.Time) {
	if lp := middleware.GetLoggingParamsFromContext(r.Context()); lp != nil {
		lp.AddTimeSlotDurationInMs("repo_ms", time.Since(startTime))
	}
}
