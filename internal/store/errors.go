package store

import "errors"

// Sentinel errors, checked with errors.Is().
var (
	// ErrSessionNotFound indicates the session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrMessageNotFound indicates the message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrFileNotFound indicates the file record does not exist.
	ErrFileNotFound = errors.New("file not found")
)
