package api_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lethehaiau/floatplane-zero-agent/api"
	"github.com/lethehaiau/floatplane-zero-agent/internal/chat"
	"github.com/lethehaiau/floatplane-zero-agent/internal/log"
	"github.com/lethehaiau/floatplane-zero-agent/internal/store"
)

// fakeStore is an in-memory stand-in for store.Store, implementing both the
// session and file persistence surfaces.
type fakeStore struct {
	order    []uuid.UUID
	sessions map[uuid.UUID]*store.Session
	messages map[uuid.UUID][]*store.Message
	files    map[uuid.UUID][]*store.File

	err error // forced failure for every call when set
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[uuid.UUID]*store.Session),
		messages: make(map[uuid.UUID][]*store.Message),
		files:    make(map[uuid.UUID][]*store.File),
	}
}

func (f *fakeStore) addSession(title, provider, model string) *store.Session {
	sess, _ := f.CreateSession(context.Background(), title, provider, model)
	return sess
}

func (f *fakeStore) CreateSession(_ context.Context, title, provider, model string) (*store.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	now := time.Now()
	sess := &store.Session{
		ID:          uuid.New(),
		Title:       title,
		LLMProvider: provider,
		LLMModel:    model,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.sessions[sess.ID] = sess
	f.order = append(f.order, sess.ID)
	return sess, nil
}

func (f *fakeStore) GetSession(_ context.Context, id uuid.UUID) (*store.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	sess, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	return sess, nil
}

func (f *fakeStore) ListSessions(_ context.Context) ([]*store.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*store.Session, 0, len(f.order))
	for _, id := range f.order {
		if sess, ok := f.sessions[id]; ok {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateSessionTitle(ctx context.Context, id uuid.UUID, title string) (*store.Session, error) {
	sess, err := f.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Title = title
	sess.UpdatedAt = time.Now()
	return sess, nil
}

func (f *fakeStore) DeleteSession(_ context.Context, id uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.sessions[id]; !ok {
		return store.ErrSessionNotFound
	}
	delete(f.sessions, id)
	delete(f.messages, id)
	delete(f.files, id)
	return nil
}

func (f *fakeStore) CloneSession(ctx context.Context, id uuid.UUID, copyBlob store.BlobCopier) (*store.Session, error) {
	src, err := f.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	clone, _ := f.CreateSession(ctx, src.Title+" (Copy)", src.LLMProvider, src.LLMModel)
	for _, m := range f.messages[id] {
		dup := *m
		dup.ID = uuid.New()
		dup.SessionID = clone.ID
		f.messages[clone.ID] = append(f.messages[clone.ID], &dup)
	}
	for _, file := range f.files[id] {
		newID := uuid.New()
		key, err := copyBlob(*file, clone.ID, newID)
		if err != nil {
			return nil, err
		}
		dup := *file
		dup.ID = newID
		dup.SessionID = clone.ID
		dup.StorageKey = key
		f.files[clone.ID] = append(f.files[clone.ID], &dup)
	}
	return clone, nil
}

func (f *fakeStore) ListMessages(_ context.Context, sessionID uuid.UUID) ([]*store.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.messages[sessionID], nil
}

func (f *fakeStore) CountFiles(_ context.Context, sessionID uuid.UUID) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(f.files[sessionID]), nil
}

func (f *fakeStore) CreateFile(_ context.Context, file *store.File) error {
	if f.err != nil {
		return f.err
	}
	file.CreatedAt = time.Now()
	f.files[file.SessionID] = append(f.files[file.SessionID], file)
	return nil
}

func (f *fakeStore) ListFiles(_ context.Context, sessionID uuid.UUID) ([]*store.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.files[sessionID], nil
}

func (f *fakeStore) GetFile(_ context.Context, sessionID, fileID uuid.UUID) (*store.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, file := range f.files[sessionID] {
		if file.ID == fileID {
			return file, nil
		}
	}
	return nil, store.ErrFileNotFound
}

func (f *fakeStore) DeleteFile(_ context.Context, sessionID, fileID uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	files := f.files[sessionID]
	for i, file := range files {
		if file.ID == fileID {
			f.files[sessionID] = append(files[:i], files[i+1:]...)
			return nil
		}
	}
	return store.ErrFileNotFound
}

// fakeBlobStore keeps blobs in a map keyed by storage key.
type fakeBlobStore struct {
	blobs map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (f *fakeBlobStore) Save(key string, data []byte) error {
	f.blobs[key] = data
	return nil
}

func (f *fakeBlobStore) Read(key string) ([]byte, error) {
	data, ok := f.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", key)
	}
	return data, nil
}

func (f *fakeBlobStore) Delete(key string) error {
	delete(f.blobs, key)
	return nil
}

func (f *fakeBlobStore) DeleteSession(sessionID uuid.UUID) error {
	prefix := sessionID.String() + "/"
	for key := range f.blobs {
		if strings.HasPrefix(key, prefix) {
			delete(f.blobs, key)
		}
	}
	return nil
}

// fakeChatService records what it was asked and replays scripted results.
type fakeChatService struct {
	turnUser      *store.Message
	turnAssistant *store.Message
	turnErr       error

	streamEvents []chat.Event
	streamErr    error

	gotContent string
	gotMeta    *store.MessageMetadata
}

func (f *fakeChatService) Turn(_ context.Context, _ *store.Session, content string, meta *store.MessageMetadata) (*store.Message, *store.Message, error) {
	f.gotContent = content
	f.gotMeta = meta
	return f.turnUser, f.turnAssistant, f.turnErr
}

func (f *fakeChatService) StreamTurn(_ context.Context, _ *store.Session, content string, meta *store.MessageMetadata, emit chat.EmitFunc) error {
	f.gotContent = content
	f.gotMeta = meta
	for _, ev := range f.streamEvents {
		if err := emit(ev); err != nil {
			return err
		}
	}
	return f.streamErr
}

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

// handlerDeps bundles the fakes behind one test handler.
type handlerDeps struct {
	store   *fakeStore
	blobs   *fakeBlobStore
	chatSvc *fakeChatService
	pingErr error
}

func newTestHandler(d handlerDeps) http.Handler {
	if d.store == nil {
		d.store = newFakeStore()
	}
	if d.blobs == nil {
		d.blobs = newFakeBlobStore()
	}
	if d.chatSvc == nil {
		d.chatSvc = &fakeChatService{}
	}
	srv := api.NewServer(api.Deps{
		Sessions:    d.store,
		Files:       d.store,
		Chat:        d.chatSvc,
		Blobs:       d.blobs,
		DB:          fakePinger{err: d.pingErr},
		CORSOrigins: []string{"http://localhost:3000"},
		Logger:      log.NewNop(),
	})
	return srv.Handler()
}
