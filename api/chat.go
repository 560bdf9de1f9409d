package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/lethehaiau/floatplane-zero-agent/internal/chat"
	"github.com/lethehaiau/floatplane-zero-agent/internal/log"
	"github.com/lethehaiau/floatplane-zero-agent/internal/store"
)

// ChatService runs chat turns. Implemented by chat.Orchestrator.
type ChatService interface {
	StreamTurn(ctx context.Context, sess *store.Session, content string, meta *store.MessageMetadata, emit chat.EmitFunc) error
	Turn(ctx context.Context, sess *store.Session, content string, meta *store.MessageMetadata) (*store.Message, *store.Message, error)
}

// ChatHandler handles the chat endpoints.
type ChatHandler struct {
	sessions SessionStore
	chat     ChatService
	logger   log.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(sessions SessionStore, svc ChatService, logger log.Logger) *ChatHandler {
	return &ChatHandler{sessions: sessions, chat: svc, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.send)
	mux.HandleFunc("POST /api/chat/stream", h.stream)
}

// FileMetadata names one file shown alongside the message in the client.
type FileMetadata struct {
	Filename string `json:"filename"`
	FileType string `json:"file_type"`
}

// ChatRequest is the body of both chat endpoints.
type ChatRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	Message   string    `json:"message"`

	// FilesMetadata is a display hint persisted with the user message. It
	// never decides which file contents the model sees.
	FilesMetadata []FileMetadata `json:"files_metadata"`
}

// ChatResponse is the non-streaming response body.
type ChatResponse struct {
	UserMessage      *store.Message `json:"user_message"`
	AssistantMessage *store.Message `json:"assistant_message"`
}

func (h *ChatHandler) parseRequest(w http.ResponseWriter, r *http.Request) (*ChatRequest, *store.Session, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return nil, nil, false
	}
	if req.Message == "" {
		writeError(w, h.logger, http.StatusBadRequest, "message is required")
		return nil, nil, false
	}

	sess, err := h.sessions.GetSession(r.Context(), req.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, h.logger, http.StatusNotFound, fmt.Sprintf("session %s not found", req.SessionID))
		} else {
			h.logger.Error("failed to get session", "session_id", req.SessionID, "error", err)
			writeError(w, h.logger, http.StatusInternalServerError, "failed to get session")
		}
		return nil, nil, false
	}
	return &req, sess, true
}

func (h *ChatHandler) metadata(req *ChatRequest) *store.MessageMetadata {
	if len(req.FilesMetadata) == 0 {
		return nil
	}
	meta := &store.MessageMetadata{Files: make([]store.FileMeta, len(req.FilesMetadata))}
	for i, f := range req.FilesMetadata {
		meta.Files[i] = store.FileMeta{Filename: f.Filename, FileType: f.FileType}
	}
	return meta
}

// send is the non-streaming chat endpoint.
func (h *ChatHandler) send(w http.ResponseWriter, r *http.Request) {
	req, sess, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	user, assistant, err := h.chat.Turn(r.Context(), sess, req.Message, h.metadata(req))
	if err != nil {
		h.logger.Error("chat turn failed", "session_id", sess.ID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to generate response")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, ChatResponse{UserMessage: user, AssistantMessage: assistant})
}

// stream is the SSE chat endpoint. The session is validated before any SSE
// framing goes out so a missing session is still a plain 404.
func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request) {
	req, sess, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, h.logger, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(ev chat.Event) error {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := h.chat.StreamTurn(r.Context(), sess, req.Message, h.metadata(req), emit); err != nil {
		// The terminal error event already went to the client where
		// possible; here we only log.
		h.logger.Error("streaming chat turn failed", "session_id", sess.ID, "error", err)
	}
}
