/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package upload stores files (images and PDF documents) uploaded by users.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/xid"
)

// sniffLen is how many leading bytes are used to detect the content type.
const sniffLen = 3072

// Errors returned by Store.
var (
	ErrTooLarge        = errors.New("file is too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyFile       = errors.New("file is empty")
)

// File describes a stored file.
type File struct {
	Name     string `json:"filename"`
	Path     string `json:"path"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// Store saves uploaded files into a directory under unique names.
type Store struct {
	dir          string
	maxSize      int64
	allowedTypes []string
	newName      func() string
}

// StoreOpts represents options for Store.
type StoreOpts struct {
	// NewName generates base names (without extension) for stored files. Globally unique ids are used if nil.
	NewName func() string
}

// NewStore creates a new Store and the upload directory if needed.
func NewStore(cfg *Config) (*Store, error) {
	return NewStoreWithOpts(cfg, StoreOpts{})
}

// NewStoreWithOpts creates a new Store with options.
func NewStoreWithOpts(cfg *Config, opts StoreOpts) (*Store, error) {
	if cfg.MaxSize == 0 {
		return nil, fmt.Errorf("max size should be > 0")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory %q: %w", cfg.Dir, err)
	}
	if opts.NewName == nil {
		opts.NewName = func() string { return xid.New().String() }
	}
	allowedTypes := cfg.AllowedTypes
	if len(allowedTypes) == 0 {
		allowedTypes = DefaultAllowedTypes
	}
	return &Store{
		dir:          cfg.Dir,
		maxSize:      int64(cfg.MaxSize), //nolint:gosec // size comes from config
		allowedTypes: allowedTypes,
		newName:      opts.NewName,
	}, nil
}

// Dir returns the directory where files are stored.
func (s *Store) Dir() string {
	return s.dir
}

// MaxSize returns the maximum size of a single file in bytes.
func (s *Store) MaxSize() int64 {
	return s.maxSize
}

// Save detects the content type of r, and if it's allowed, writes the content into a new file.
// Nothing is left on disk if an error is returned.
func (s *Store) Save(r io.Reader) (File, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("read file head: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return File{}, ErrEmptyFile
	}

	mType := mimetype.Detect(head)
	if !s.isAllowed(mType) {
		return File{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mType.String())
	}

	name := s.newName() + mType.Extension()
	filePath := filepath.Join(s.dir, name)
	f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return File{}, fmt.Errorf("create file: %w", err)
	}

	written, err := io.Copy(f, io.MultiReader(bytes.NewReader(head), io.LimitReader(r, s.maxSize-int64(n)+1)))
	closeErr := f.Close()
	switch {
	case err != nil:
		err = fmt.Errorf("write file: %w", err)
	case closeErr != nil:
		err = fmt.Errorf("close file: %w", closeErr)
	case written > s.maxSize:
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(filePath)
		return File{}, err
	}

	return File{Name: name, Path: filepath.ToSlash(filePath), MIMEType: mType.String(), Size: written}, nil
}

func (s *Store) isAllowed(mType *mimetype.MIME) bool {
	for _, allowed := range s.allowedTypes {
		if mType.Is(allowed) {
			return true
		}
	}
	return false
}
