// Package store persists sessions, messages and file records in PostgreSQL.
//
// All queries run through a pgxpool.Pool. Multi-row writes are wrapped in
// transactions; read paths are single statements. Missing rows surface as
// the package's sentinel errors so callers can map them to 404s with
// errors.Is().
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lethehaiau/floatplane-zero-agent/internal/log"
)

// Store manages persistence with a PostgreSQL backend.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New creates a Store on top of an open connection pool.
func New(pool *pgxpool.Pool, logger log.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// BlobCopier duplicates the blob behind src under a key derived from the
// clone's identifiers and returns that new key. Used by CloneSession so the
// store stays ignorant of the blob key scheme.
type BlobCopier func(src File, newSessionID, newFileID uuid.UUID) (string, error)

// CreateSession creates a new conversation session.
func (s *Store) CreateSession(ctx context.Context, title, provider, model string) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (title, llm_provider, llm_model)
		 VALUES ($1, $2, $3)
		 RETURNING id, title, llm_provider, llm_model, created_at, updated_at`,
		title, provider, model,
	).Scan(&sess.ID, &sess.Title, &sess.LLMProvider, &sess.LLMModel, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Debug("created session", "id", sess.ID, "provider", sess.LLMProvider, "model", sess.LLMModel)
	return &sess, nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, llm_provider, llm_model, created_at, updated_at
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(&sess.ID, &sess.Title, &sess.LLMProvider, &sess.LLMModel, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return &sess, nil
}

// ListSessions returns all sessions, most recently active first.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, llm_provider, llm_model, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.LLMProvider, &sess.LLMModel, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSessionTitle renames a session and refreshes updated_at.
func (s *Store) UpdateSessionTitle(ctx context.Context, id uuid.UUID, title string) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`UPDATE sessions SET title = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING id, title, llm_provider, llm_model, created_at, updated_at`,
		id, title,
	).Scan(&sess.ID, &sess.Title, &sess.LLMProvider, &sess.LLMModel, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to update session %s: %w", id, err)
	}
	return &sess, nil
}

// DeleteSession deletes a session. Messages and file records go with it via
// ON DELETE CASCADE; blob cleanup is the caller's job.
func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.logger.Debug("deleted session", "id", id)
	return nil
}

// CloneSession copies a session with all its messages and files under new
// identifiers, in a single transaction. The clone's title gets " (Copy)"
// appended. copyBlob duplicates each file's bytes; on transaction failure
// any blobs it already copied are left behind for the next cleanup.
func (s *Store) CloneSession(ctx context.Context, id uuid.UUID, copyBlob BlobCopier) (*Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var clone Session
	err = tx.QueryRow(ctx,
		`INSERT INTO sessions (title, llm_provider, llm_model)
		 SELECT title || ' (Copy)', llm_provider, llm_model
		 FROM sessions WHERE id = $1
		 RETURNING id, title, llm_provider, llm_model, created_at, updated_at`,
		id,
	).Scan(&clone.ID, &clone.Title, &clone.LLMProvider, &clone.LLMModel, &clone.CreatedAt, &clone.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to clone session %s: %w", id, err)
	}

	// Original created_at timestamps are kept so message order survives.
	_, err = tx.Exec(ctx,
		`INSERT INTO messages (session_id, role, content, message_metadata, created_at)
		 SELECT $2, role, content, message_metadata, created_at
		 FROM messages WHERE session_id = $1`,
		id, clone.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to clone messages: %w", err)
	}

	files, err := scanFiles(tx.Query(ctx,
		`SELECT id, session_id, filename, file_type, file_size, extracted_text, storage_key, created_at
		 FROM files WHERE session_id = $1 ORDER BY created_at`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to read files for clone: %w", err)
	}

	for _, f := range files {
		newID := uuid.New()
		newKey, err := copyBlob(*f, clone.ID, newID)
		if err != nil {
			return nil, fmt.Errorf("failed to copy blob for file %s: %w", f.ID, err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO files (id, session_id, filename, file_type, file_size, extracted_text, storage_key, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			newID, clone.ID, f.Filename, f.FileType, f.FileSize, f.ExtractedText, newKey, f.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to clone file %s: %w", f.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit clone: %w", err)
	}

	s.logger.Debug("cloned session", "source", id, "clone", clone.ID, "files", len(files))
	return &clone, nil
}

// SaveMessage inserts a message and bumps its session's updated_at in one
// transaction. The message's ID and CreatedAt are filled in on return.
func (s *Store) SaveMessage(ctx context.Context, msg *Message) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := insertMessage(ctx, tx, msg); err != nil {
		return err
	}
	if err := touchSession(ctx, tx, msg.SessionID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// SaveExchange persists a user message and the assistant reply atomically.
// Either both land or neither does; used by the non-streaming chat path so a
// provider failure never leaves an orphaned user message.
func (s *Store) SaveExchange(ctx context.Context, user, assistant *Message) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := insertMessage(ctx, tx, user); err != nil {
		return err
	}
	if err := insertMessage(ctx, tx, assistant); err != nil {
		return err
	}
	if err := touchSession(ctx, tx, user.SessionID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit exchange: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages oldest first.
func (s *Store) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]*Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, message_metadata, created_at
		 FROM messages WHERE session_id = $1 ORDER BY created_at`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		var (
			msg  Message
			meta []byte
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &meta, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if len(meta) > 0 {
			msg.Metadata = &MessageMetadata{}
			if err := json.Unmarshal(meta, msg.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata for message %s: %w", msg.ID, err)
			}
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// CountFiles returns how many files a session has.
func (s *Store) CountFiles(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM files WHERE session_id = $1`, sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return count, nil
}

// CreateFile inserts a file record under its pre-generated ID. The ID is
// chosen by the caller because the blob's storage key is derived from it
// before the row exists.
func (s *Store) CreateFile(ctx context.Context, f *File) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO files (id, session_id, filename, file_type, file_size, extracted_text, storage_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		f.ID, f.SessionID, f.Filename, f.FileType, f.FileSize, f.ExtractedText, f.StorageKey,
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}

	s.logger.Debug("created file", "id", f.ID, "session_id", f.SessionID, "filename", f.Filename)
	return nil
}

// ListFiles returns a session's files oldest first.
func (s *Store) ListFiles(ctx context.Context, sessionID uuid.UUID) ([]*File, error) {
	files, err := scanFiles(s.pool.Query(ctx,
		`SELECT id, session_id, filename, file_type, file_size, extracted_text, storage_key, created_at
		 FROM files WHERE session_id = $1 ORDER BY created_at`,
		sessionID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// GetFile retrieves one file record scoped to its session.
func (s *Store) GetFile(ctx context.Context, sessionID, fileID uuid.UUID) (*File, error) {
	var f File
	err := s.pool.QueryRow(ctx,
		`SELECT id, session_id, filename, file_type, file_size, extracted_text, storage_key, created_at
		 FROM files WHERE id = $1 AND session_id = $2`,
		fileID, sessionID,
	).Scan(&f.ID, &f.SessionID, &f.Filename, &f.FileType, &f.FileSize, &f.ExtractedText, &f.StorageKey, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
		}
		return nil, fmt.Errorf("failed to get file %s: %w", fileID, err)
	}
	return &f, nil
}

// DeleteFile removes one file record scoped to its session.
func (s *Store) DeleteFile(ctx context.Context, sessionID, fileID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM files WHERE id = $1 AND session_id = $2`, fileID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete file %s: %w", fileID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	return nil
}

func insertMessage(ctx context.Context, tx pgx.Tx, msg *Message) error {
	var meta []byte
	if msg.Metadata != nil {
		var err error
		meta, err = json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal message metadata: %w", err)
		}
	}

	err := tx.QueryRow(ctx,
		`INSERT INTO messages (session_id, role, content, message_metadata)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		msg.SessionID, msg.Role, msg.Content, meta,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func touchSession(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID) error {
	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET updated_at = now() WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to touch session %s: %w", sessionID, err)
	}
	return nil
}

func scanFiles(rows pgx.Rows, err error) ([]*File, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make([]*File, 0)
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Filename, &f.FileType, &f.FileSize, &f.ExtractedText, &f.StorageKey, &f.CreatedAt); err != nil {
			return nil, err
		}
		files = append(files, &f)
	}
	return files, rows.Err()
}
