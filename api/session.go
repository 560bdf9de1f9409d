package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/lethehaiau/floatplane-zero-agent/internal/blob"
	"github.com/lethehaiau/floatplane-zero-agent/internal/log"
	"github.com/lethehaiau/floatplane-zero-agent/internal/store"
)

// MaxTitleLength bounds session titles.
const MaxTitleLength = 255

// DefaultSessionTitle is used when a create request omits the title.
const DefaultSessionTitle = "New Chat"

// SessionStore is the persistence surface the session endpoints need.
type SessionStore interface {
	CreateSession(ctx context.Context, title, provider, model string) (*store.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*store.Session, error)
	ListSessions(ctx context.Context) ([]*store.Session, error)
	UpdateSessionTitle(ctx context.Context, id uuid.UUID, title string) (*store.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	CloneSession(ctx context.Context, id uuid.UUID, copyBlob store.BlobCopier) (*store.Session, error)
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]*store.Message, error)
}

// BlobStore is the blob surface the handlers need.
type BlobStore interface {
	Save(key string, data []byte) error
	Read(key string) ([]byte, error)
	Delete(key string) error
	DeleteSession(sessionID uuid.UUID) error
}

// SessionHandler handles session-related HTTP endpoints.
type SessionHandler struct {
	store  SessionStore
	blobs  BlobStore
	logger log.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(st SessionStore, blobs BlobStore, logger log.Logger) *SessionHandler {
	return &SessionHandler{store: st, blobs: blobs, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.create)
	mux.HandleFunc("GET /api/sessions", h.list)
	mux.HandleFunc("GET /api/sessions/{id}", h.get)
	mux.HandleFunc("PATCH /api/sessions/{id}", h.update)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.delete)
	mux.HandleFunc("POST /api/sessions/{id}/clone", h.clone)
	mux.HandleFunc("GET /api/chat/sessions/{id}/messages", h.messages)
}

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	Title       string `json:"title"`
	LLMProvider string `json:"llm_provider"`
	LLMModel    string `json:"llm_model"`
}

// SessionListResponse is the list endpoint's body.
type SessionListResponse struct {
	Sessions []*store.Session `json:"sessions"`
	Total    int              `json:"total"`
}

func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LLMProvider == "" || req.LLMModel == "" {
		writeError(w, h.logger, http.StatusBadRequest, "llm_provider and llm_model are required")
		return
	}
	if len(req.Title) > MaxTitleLength {
		writeError(w, h.logger, http.StatusBadRequest, "title too long (max 255 characters)")
		return
	}
	if req.Title == "" {
		req.Title = DefaultSessionTitle
	}

	sess, err := h.store.CreateSession(r.Context(), req.Title, req.LLMProvider, req.LLMModel)
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, sess)
}

func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, SessionListResponse{Sessions: sessions, Total: len(sessions)})
}

func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	sess, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "failed to get session")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, sess)
}

// UpdateSessionRequest is the request body for renaming a session.
type UpdateSessionRequest struct {
	Title string `json:"title"`
}

func (h *SessionHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" || len(req.Title) > MaxTitleLength {
		writeError(w, h.logger, http.StatusBadRequest, "title must be 1-255 characters")
		return
	}

	sess, err := h.store.UpdateSessionTitle(r.Context(), id, req.Title)
	if err != nil {
		h.respondStoreError(w, err, "failed to update session")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, sess)
}

func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.store.DeleteSession(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "failed to delete session")
		return
	}

	// Blob cleanup is best-effort: the records are gone, a leftover file on
	// disk is only wasted space.
	if err := h.blobs.DeleteSession(id); err != nil {
		h.logger.Warn("failed to delete session blobs", "session_id", id, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) clone(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	sess, err := h.store.CloneSession(r.Context(), id, func(src store.File, newSessionID, newFileID uuid.UUID) (string, error) {
		data, err := h.blobs.Read(src.StorageKey)
		if err != nil {
			return "", err
		}
		newKey := blob.Key(newSessionID, newFileID, src.Filename)
		if err := h.blobs.Save(newKey, data); err != nil {
			return "", err
		}
		return newKey, nil
	})
	if err != nil {
		h.respondStoreError(w, err, "failed to clone session")
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, sess)
}

func (h *SessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	// Distinguish an empty conversation from a missing session.
	if _, err := h.store.GetSession(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "failed to get session")
		return
	}

	messages, err := h.store.ListMessages(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list messages", "session_id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, messages)
}

func (h *SessionHandler) respondStoreError(w http.ResponseWriter, err error, detail string) {
	if errors.Is(err, store.ErrSessionNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "session not found")
		return
	}
	h.logger.Error(detail, "error", err)
	writeError(w, h.logger, http.StatusInternalServerError, detail)
}

// parseSessionID extracts and validates the {id} path segment. On failure
// it writes a 400 and returns ok=false.
func parseSessionID(w http.ResponseWriter, r *http.Request, logger log.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}
