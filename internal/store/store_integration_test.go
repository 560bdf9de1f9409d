//go:build integration
// +build integration

package store_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lethehaiau/floatplane-zero-agent/internal/log"
	"github.com/lethehaiau/floatplane-zero-agent/internal/store"
	"github.com/lethehaiau/floatplane-zero-agent/internal/testutil"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	pool := testutil.SetupTestDB(t)
	return store.New(pool, log.NewNop())
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	sess, err := s.CreateSession(ctx, "My Chat", "openai", "gpt-4o")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, sess.ID)
	assert.False(t, sess.UpdatedAt.Before(sess.CreatedAt))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "My Chat", got.Title)

	renamed, err := s.UpdateSessionTitle(ctx, sess.ID, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Title)
	assert.True(t, renamed.UpdatedAt.After(sess.UpdatedAt) || renamed.UpdatedAt.Equal(sess.UpdatedAt))

	require.NoError(t, s.DeleteSession(ctx, sess.ID))

	_, err = s.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	assert.ErrorIs(t, s.DeleteSession(ctx, sess.ID), store.ErrSessionNotFound)
}

func TestListSessionsOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	first, err := s.CreateSession(ctx, "first", "openai", "gpt-4o")
	require.NoError(t, err)
	second, err := s.CreateSession(ctx, "second", "openai", "gpt-4o")
	require.NoError(t, err)

	// A new message on the older session moves it to the front.
	require.NoError(t, s.SaveMessage(ctx, &store.Message{SessionID: first.ID, Role: "user", Content: "hi"}))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first.ID, sessions[0].ID)
	assert.Equal(t, second.ID, sessions[1].ID)
}

func TestSaveMessageRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	sess, err := s.CreateSession(ctx, "t", "openai", "gpt-4o")
	require.NoError(t, err)

	meta := &store.MessageMetadata{Files: []store.FileMeta{{Filename: "a.txt", FileType: "txt"}}}
	user := &store.Message{SessionID: sess.ID, Role: "user", Content: "hello", Metadata: meta}
	require.NoError(t, s.SaveMessage(ctx, user))
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.False(t, user.CreatedAt.IsZero())

	noMeta := &store.Message{SessionID: sess.ID, Role: "assistant", Content: "hi"}
	require.NoError(t, s.SaveMessage(ctx, noMeta))

	messages, err := s.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].Content)
	require.NotNil(t, messages[0].Metadata)
	assert.Equal(t, meta.Files, messages[0].Metadata.Files)
	assert.Nil(t, messages[1].Metadata)

	// updated_at advanced with the new messages.
	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.After(sess.UpdatedAt))
}

func TestSaveExchangeAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	sess, err := s.CreateSession(ctx, "t", "openai", "gpt-4o")
	require.NoError(t, err)

	user := &store.Message{SessionID: sess.ID, Role: "user", Content: "q"}
	assistant := &store.Message{SessionID: sess.ID, Role: "assistant", Content: "a"}
	require.NoError(t, s.SaveExchange(ctx, user, assistant))

	messages, err := s.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "q", messages[0].Content)
	assert.Equal(t, "a", messages[1].Content)
}

func TestFileLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	sess, err := s.CreateSession(ctx, "t", "openai", "gpt-4o")
	require.NoError(t, err)

	f := &store.File{
		ID:            uuid.New(),
		SessionID:     sess.ID,
		Filename:      "doc.pdf",
		FileType:      "pdf",
		FileSize:      1234,
		ExtractedText: "text",
		StorageKey:    sess.ID.String() + "/key.pdf",
	}
	require.NoError(t, s.CreateFile(ctx, f))
	assert.False(t, f.CreatedAt.IsZero())

	count, err := s.CountFiles(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := s.GetFile(ctx, sess.ID, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "text", got.ExtractedText)
	assert.Equal(t, f.StorageKey, got.StorageKey)

	// Scoping: the file is not reachable through another session.
	other, err := s.CreateSession(ctx, "other", "openai", "gpt-4o")
	require.NoError(t, err)
	_, err = s.GetFile(ctx, other.ID, f.ID)
	assert.ErrorIs(t, err, store.ErrFileNotFound)

	require.NoError(t, s.DeleteFile(ctx, sess.ID, f.ID))
	assert.ErrorIs(t, s.DeleteFile(ctx, sess.ID, f.ID), store.ErrFileNotFound)
}

func TestCascadeDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	sess, err := s.CreateSession(ctx, "t", "openai", "gpt-4o")
	require.NoError(t, err)

	require.NoError(t, s.SaveMessage(ctx, &store.Message{SessionID: sess.ID, Role: "user", Content: "hi"}))
	require.NoError(t, s.CreateFile(ctx, &store.File{
		ID: uuid.New(), SessionID: sess.ID, Filename: "a.txt", FileType: "txt", FileSize: 1, StorageKey: "k",
	}))

	require.NoError(t, s.DeleteSession(ctx, sess.ID))

	messages, err := s.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)

	files, err := s.ListFiles(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCloneSessionDeep(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	sess, err := s.CreateSession(ctx, "Research", "openai", "gpt-4o")
	require.NoError(t, err)

	meta := &store.MessageMetadata{Files: []store.FileMeta{{Filename: "a.txt", FileType: "txt"}}}
	require.NoError(t, s.SaveMessage(ctx, &store.Message{SessionID: sess.ID, Role: "user", Content: "q1", Metadata: meta}))
	require.NoError(t, s.SaveMessage(ctx, &store.Message{SessionID: sess.ID, Role: "assistant", Content: "a1"}))

	orig := &store.File{
		ID: uuid.New(), SessionID: sess.ID, Filename: "a.txt", FileType: "txt",
		FileSize: 16, ExtractedText: "The answer is 42", StorageKey: "orig-key",
	}
	require.NoError(t, s.CreateFile(ctx, orig))

	var copiedFrom, copiedTo string
	clone, err := s.CloneSession(ctx, sess.ID, func(src store.File, newSessionID, newFileID uuid.UUID) (string, error) {
		copiedFrom = src.StorageKey
		copiedTo = newSessionID.String() + "/" + newFileID.String() + ".txt"
		return copiedTo, nil
	})
	require.NoError(t, err)

	assert.Equal(t, "Research (Copy)", clone.Title)
	assert.Equal(t, sess.LLMProvider, clone.LLMProvider)
	assert.NotEqual(t, sess.ID, clone.ID)
	assert.Equal(t, "orig-key", copiedFrom)

	// Deleting the original leaves the clone intact.
	require.NoError(t, s.DeleteSession(ctx, sess.ID))

	messages, err := s.ListMessages(ctx, clone.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "q1", messages[0].Content)
	require.NotNil(t, messages[0].Metadata)
	assert.Equal(t, meta.Files, messages[0].Metadata.Files)

	files, err := s.ListFiles(ctx, clone.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.NotEqual(t, orig.ID, files[0].ID)
	assert.Equal(t, "The answer is 42", files[0].ExtractedText)
	assert.Equal(t, orig.FileSize, files[0].FileSize)
	assert.Equal(t, copiedTo, files[0].StorageKey)
}

func TestCloneSessionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CloneSession(t.Context(), uuid.New(), func(store.File, uuid.UUID, uuid.UUID) (string, error) {
		return "", nil
	})
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}
