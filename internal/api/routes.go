/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package api contains HTTP handlers of the blog API (version 1).
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-blogapi/internal/auth"
	"github.com/acronis/go-blogapi/internal/post"
	"github.com/acronis/go-blogapi/internal/upload"
)

// Version is the API version under which routes are mounted (/api/v1).
const Version = 1

// UploadPath is the path of the file upload endpoint relative to the API root.
const UploadPath = "/posts/upload"

// RoutesOpts represents options for the API routes.
type RoutesOpts struct {
	ErrorDomain   string
	Repository    post.Repository
	Authenticator *auth.Authenticator

	// Uploads enables the file upload endpoint if set.
	Uploads *upload.Store

	// Middlewares are applied to every API route before authentication (e.g. rate limiting).
	Middlewares []func(http.Handler) http.Handler
}

// NewRoutes returns a function that registers API routes in the router.
func NewRoutes(opts RoutesOpts) func(r chi.Router) {
	posts := NewPostsHandler(opts.Repository, opts.ErrorDomain)
	authRequired := opts.Authenticator.Required(opts.ErrorDomain)

	return func(r chi.Router) {
		r.Use(opts.Middlewares...)

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", posts.List)
			r.Get("/{id}", posts.Get)

			r.Group(func(r chi.Router) {
				r.Use(authRequired)
				r.Post("/", posts.Create)
				r.Get("/my", posts.ListMine)
				r.Get("/my/posts", posts.ListMine)
				r.Put("/{id}", posts.Update)
				r.Delete("/{id}", posts.Delete)
				if opts.Uploads != nil {
					r.Method(http.MethodPost, "/upload", upload.NewHandler(opts.Uploads, opts.ErrorDomain))
				}
			})
		})
	}
}
