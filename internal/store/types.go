package store

import (
	"time"

	"github.com/google/uuid"
)

// Session is a conversation bound to one provider/model pair.
type Session struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	LLMProvider string    `json:"llm_provider"`
	LLMModel    string    `json:"llm_model"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FileMeta identifies a file referenced by a message, for display only.
// It never influences what the model sees.
type FileMeta struct {
	Filename string `json:"filename"`
	FileType string `json:"file_type"`
}

// MessageMetadata is the optional display metadata attached to a message.
type MessageMetadata struct {
	Files []FileMeta `json:"files,omitempty"`
}

// Message is one persisted conversation entry.
type Message struct {
	ID        uuid.UUID        `json:"id"`
	SessionID uuid.UUID        `json:"session_id"`
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Metadata  *MessageMetadata `json:"message_metadata"`
	CreatedAt time.Time        `json:"created_at"`
}

// File is an uploaded file record. The extracted text and storage key are
// internal; API responses carry only the descriptive fields.
type File struct {
	ID            uuid.UUID `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	Filename      string    `json:"filename"`
	FileType      string    `json:"file_type"`
	FileSize      int64     `json:"file_size"`
	ExtractedText string    `json:"-"`
	StorageKey    string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}
