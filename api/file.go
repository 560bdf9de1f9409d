package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/lethehaiau/floatplane-zero-agent/internal/blob"
	"github.com/lethehaiau/floatplane-zero-agent/internal/extract"
	"github.com/lethehaiau/floatplane-zero-agent/internal/log"
	"github.com/lethehaiau/floatplane-zero-agent/internal/store"
)

// Upload policy.
const (
	MaxFilesPerSession = 3
	MaxFileSize        = 10 << 20 // 10 MiB
)

// allowedFileTypes is the upload allow-list, keyed by declared type.
var allowedFileTypes = map[string]bool{
	"pdf": true,
	"txt": true,
	"md":  true,
}

// FileStore is the persistence surface the file endpoints need.
type FileStore interface {
	GetSession(ctx context.Context, id uuid.UUID) (*store.Session, error)
	CountFiles(ctx context.Context, sessionID uuid.UUID) (int, error)
	CreateFile(ctx context.Context, f *store.File) error
	ListFiles(ctx context.Context, sessionID uuid.UUID) ([]*store.File, error)
	GetFile(ctx context.Context, sessionID, fileID uuid.UUID) (*store.File, error)
	DeleteFile(ctx context.Context, sessionID, fileID uuid.UUID) error
}

// FileHandler handles file upload endpoints.
type FileHandler struct {
	store  FileStore
	blobs  BlobStore
	logger log.Logger
}

// NewFileHandler creates a new file handler.
func NewFileHandler(st FileStore, blobs BlobStore, logger log.Logger) *FileHandler {
	return &FileHandler{store: st, blobs: blobs, logger: logger}
}

// RegisterRoutes registers file routes on the given mux.
func (h *FileHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions/{id}/files", h.list)
	mux.HandleFunc("POST /api/sessions/{id}/files", h.upload)
	mux.HandleFunc("DELETE /api/sessions/{id}/files/{fileID}", h.delete)
}

func (h *FileHandler) list(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}
	if !h.sessionExists(w, r, sessionID) {
		return
	}

	files, err := h.store.ListFiles(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to list files", "session_id", sessionID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to list files")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, files)
}

func (h *FileHandler) upload(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}
	if !h.sessionExists(w, r, sessionID) {
		return
	}

	count, err := h.store.CountFiles(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to count files", "session_id", sessionID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to count files")
		return
	}
	if count >= MaxFilesPerSession {
		writeError(w, h.logger, http.StatusBadRequest,
			fmt.Sprintf("maximum %d files per session", MaxFilesPerSession))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxFileSize+1<<20) // slack for multipart framing
	part, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "missing file field")
		return
	}
	defer part.Close() //nolint:errcheck

	if header.Size > MaxFileSize {
		writeError(w, h.logger, http.StatusBadRequest, "file exceeds 10 MiB limit")
		return
	}

	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	if !allowedFileTypes[fileType] {
		writeError(w, h.logger, http.StatusBadRequest, "unsupported file type (allowed: pdf, txt, md)")
		return
	}

	data, err := io.ReadAll(part)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "failed to read upload")
		return
	}

	text, err := extract.Extract(data, fileType)
	if err != nil {
		h.logger.Warn("text extraction failed", "filename", header.Filename, "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "failed to extract text from file")
		return
	}

	fileID := uuid.New()
	key := blob.Key(sessionID, fileID, header.Filename)
	if err := h.blobs.Save(key, data); err != nil {
		h.logger.Error("failed to store blob", "key", key, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to store file")
		return
	}

	record := &store.File{
		ID:            fileID,
		SessionID:     sessionID,
		Filename:      header.Filename,
		FileType:      fileType,
		FileSize:      header.Size,
		ExtractedText: text,
		StorageKey:    key,
	}
	if err := h.store.CreateFile(r.Context(), record); err != nil {
		h.logger.Error("failed to create file record", "session_id", sessionID, "error", err)
		// The record failed; the orphaned blob is cleaned up best-effort.
		if cleanupErr := h.blobs.Delete(key); cleanupErr != nil {
			h.logger.Warn("failed to clean up orphaned blob", "key", key, "error", cleanupErr)
		}
		writeError(w, h.logger, http.StatusInternalServerError, "failed to save file")
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, record)
}

func (h *FileHandler) delete(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}
	fileID, err := uuid.Parse(r.PathValue("fileID"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid file id")
		return
	}

	file, err := h.store.GetFile(r.Context(), sessionID, fileID)
	if err != nil {
		h.respondFileError(w, err)
		return
	}

	if err := h.store.DeleteFile(r.Context(), sessionID, fileID); err != nil {
		h.respondFileError(w, err)
		return
	}

	// Best-effort: the record is gone, a leftover blob is non-fatal.
	if err := h.blobs.Delete(file.StorageKey); err != nil {
		h.logger.Warn("failed to delete blob", "key", file.StorageKey, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *FileHandler) sessionExists(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) bool {
	if _, err := h.store.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "session not found")
		} else {
			h.logger.Error("failed to get session", "session_id", sessionID, "error", err)
			writeError(w, h.logger, http.StatusInternalServerError, "failed to get session")
		}
		return false
	}
	return true
}

func (h *FileHandler) respondFileError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrFileNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "file not found")
		return
	}
	h.logger.Error("file operation failed", "error", err)
	writeError(w, h.logger, http.StatusInternalServerError, "file operation failed")
}
