// Package blob stores uploaded file bytes on the local filesystem.
//
// Blobs are addressed by an opaque storage key of the form
// <sessionID>/<fileID><ext>, so deleting a session's directory removes all
// of its blobs. Keys are validated against path traversal before any
// filesystem access.
package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Sentinel errors, checked with errors.Is().
var (
	// ErrNotFound indicates no blob exists under the given key.
	ErrNotFound = errors.New("blob not found")

	// ErrInvalidKey indicates a malformed or traversal-attempting storage key.
	ErrInvalidKey = errors.New("invalid storage key")
)

// Store persists file blobs under a root directory.
type Store struct {
	root string
}

// NewStore creates a blob store rooted at dir, creating it if missing.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	return &Store{root: dir}, nil
}

// Key builds the storage key for a file, preserving the original extension
// so downloaded files keep a usable name.
func Key(sessionID, fileID uuid.UUID, filename string) string {
	return sessionID.String() + "/" + fileID.String() + filepath.Ext(filename)
}

// Save writes data under key, creating the session directory as needed.
func (s *Store) Save(key string, data []byte) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

// Read returns the bytes stored under key.
func (s *Store) Read(key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Delete removes the blob under key. Deleting a missing blob is not an
// error; the caller's intent is already satisfied.
func (s *Store) Delete(key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// DeleteSession removes every blob belonging to a session.
func (s *Store) DeleteSession(sessionID uuid.UUID) error {
	if err := os.RemoveAll(filepath.Join(s.root, sessionID.String())); err != nil {
		return fmt.Errorf("failed to delete session blobs: %w", err)
	}
	return nil
}

// resolve maps a storage key to an absolute path under the root, rejecting
// keys that would escape it.
func (s *Store) resolve(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || filepath.IsAbs(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	path := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return path, nil
}
