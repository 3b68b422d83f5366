/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package post

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Field length bounds (in characters, after trimming).
const (
	TitleMinLen   = 3
	TitleMaxLen   = 100
	AuthorMinLen  = 2
	AuthorMaxLen  = 50
	ContentMinLen = 10
	ContentMaxLen = 5000
)

// FieldError describes a single invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when post fields do not pass validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Normalize trims all fields.
func (p CreateParams) Normalize() CreateParams {
	return CreateParams{
		Title:   strings.TrimSpace(p.Title),
		Author:  strings.TrimSpace(p.Author),
		Content: strings.TrimSpace(p.Content),
	}
}

// Validate checks that all fields are present and fit their bounds. Params are expected to be normalized.
func (p CreateParams) Validate() error {
	var vErr ValidationError
	checkField(&vErr, "title", p.Title, TitleMinLen, TitleMaxLen)
	checkField(&vErr, "author", p.Author, AuthorMinLen, AuthorMaxLen)
	checkField(&vErr, "content", p.Content, ContentMinLen, ContentMaxLen)
	return vErr.errOrNil()
}

// Normalize trims all present fields.
func (p UpdateParams) Normalize() UpdateParams {
	trim := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.TrimSpace(*s)
		return &v
	}
	return UpdateParams{Title: trim(p.Title), Author: trim(p.Author), Content: trim(p.Content)}
}

// Validate checks that at least one field is present and every present field fits its bounds.
func (p UpdateParams) Validate() error {
	var vErr ValidationError
	if p.Title == nil && p.Author == nil && p.Content == nil {
		vErr.add("", "at least one of title, author, content should be provided")
		return &vErr
	}
	if p.Title != nil {
		checkField(&vErr, "title", *p.Title, TitleMinLen, TitleMaxLen)
	}
	if p.Author != nil {
		checkField(&vErr, "author", *p.Author, AuthorMinLen, AuthorMaxLen)
	}
	if p.Content != nil {
		checkField(&vErr, "content", *p.Content, ContentMinLen, ContentMaxLen)
	}
	return vErr.errOrNil()
}

func checkField(vErr *ValidationError, field, value string, minLen, maxLen int) {
	n := utf8.RuneCountInString(value)
	switch {
	case n == 0:
		vErr.add(field, "is required")
	case n < minLen || n > maxLen:
		vErr.add(field, fmt.Sprintf("should be between %d and %d characters", minLen, maxLen))
	}
}
