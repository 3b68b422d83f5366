/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package post

import (
	"fmt"
	"strings"
)

// Pagination defaults and bounds.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// SortField is a field posts can be sorted by.
type SortField string

// Sort fields.
const (
	SortByCreatedAt SortField = "createdAt"
	SortByUpdatedAt SortField = "updatedAt"
	SortByTitle     SortField = "title"
	SortByAuthor    SortField = "author"
)

// SortOrder is a sort direction.
type SortOrder string

// Sort orders.
const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// ListQuery selects a page of posts.
type ListQuery struct {
	Page  int
	Limit int

	// Search is matched case-insensitively against title and content.
	Search string

	// Author is matched case-insensitively as a substring of the author.
	Author string

	SortBy SortField
	Order  SortOrder
}

// ListResult is a page of posts.
type ListResult struct {
	Posts      []Post
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// WithDefaults fills zero fields with defaults.
func (q ListQuery) WithDefaults() ListQuery {
	if q.Page == 0 {
		q.Page = DefaultPage
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SortBy == "" {
		q.SortBy = SortByCreatedAt
	}
	if q.Order == "" {
		q.Order = SortOrderDesc
	}
	q.Search = strings.TrimSpace(q.Search)
	q.Author = strings.TrimSpace(q.Author)
	return q
}

// Validate checks pagination bounds and sort parameters.
func (q ListQuery) Validate() error {
	var vErr ValidationError
	if q.Page < 1 {
		vErr.add("page", "should be >= 1")
	}
	if q.Limit < 1 || q.Limit > MaxLimit {
		vErr.add("limit", fmt.Sprintf("should be between 1 and %d", MaxLimit))
	}
	switch q.SortBy {
	case SortByCreatedAt, SortByUpdatedAt, SortByTitle, SortByAuthor:
	default:
		vErr.add("sortBy", fmt.Sprintf("should be one of %s, %s, %s, %s",
			SortByCreatedAt, SortByUpdatedAt, SortByTitle, SortByAuthor))
	}
	switch q.Order {
	case SortOrderAsc, SortOrderDesc:
	default:
		vErr.add("order", fmt.Sprintf("should be %s or %s", SortOrderAsc, SortOrderDesc))
	}
	return vErr.errOrNil()
}

func (q ListQuery) matches(p *Post) bool {
	if q.Search != "" {
		search := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(p.Title), search) && !strings.Contains(strings.ToLower(p.Content), search) {
			return false
		}
	}
	if q.Author != "" && !strings.Contains(strings.ToLower(p.Author), strings.ToLower(q.Author)) {
		return false
	}
	return true
}

func (q ListQuery) less(a, b *Post) bool {
	var cmp int
	switch q.SortBy {
	case SortByUpdatedAt:
		cmp = a.UpdatedAt.Compare(b.UpdatedAt)
	case SortByTitle:
		cmp = strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case SortByAuthor:
		cmp = strings.Compare(strings.ToLower(a.Author), strings.ToLower(b.Author))
	default:
		cmp = a.CreatedAt.Compare(b.CreatedAt)
	}
	if q.Order == SortOrderAsc {
		return cmp < 0
	}
	return cmp > 0
}

func totalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
