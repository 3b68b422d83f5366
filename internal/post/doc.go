/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package post contains the blog post model, its validation rules and the in-memory repository.
package post
