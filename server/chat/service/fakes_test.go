package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"voicechat_server/server/chat/domain"
)

type fakeMessageStore struct {
	mu       sync.Mutex
	messages map[string]domain.Message
	order    []string
	hidden   map[string][]string // message id -> user ids
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{messages: map[string]domain.Message{}, hidden: map[string][]string{}}
}

func (f *fakeMessageStore) Create(_ context.Context, msg domain.Message) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[msg.ID] = msg
	f.order = append(f.order, msg.ID)
	return msg, nil
}

func (f *fakeMessageStore) GetByID(_ context.Context, id string) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[id]
	if !ok {
		return domain.Message{}, fmt.Errorf("message %s not found", id)
	}
	return msg, nil
}

func (f *fakeMessageStore) GetByIDs(_ context.Context, ids []string) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := f.messages[id]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) ListByRoom(_ context.Context, roomID, viewerID string, limit, offset int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Message{}
	for _, id := range f.order {
		msg := f.messages[id]
		if msg.RoomID != roomID || msg.IsDeleted {
			continue
		}
		if f.hiddenFor(id, viewerID) {
			continue
		}
		out = append(out, msg)
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMessageStore) SearchKeyword(_ context.Context, roomIDs []string, q, roomFilter string, limit int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	allowed := map[string]struct{}{}
	for _, id := range roomIDs {
		allowed[id] = struct{}{}
	}
	lowerQ := strings.ToLower(q)
	out := []domain.Message{}
	for i := len(f.order) - 1; i >= 0; i-- {
		msg := f.messages[f.order[i]]
		if msg.IsDeleted {
			continue
		}
		if _, ok := allowed[msg.RoomID]; !ok {
			continue
		}
		if roomFilter != "" && msg.RoomID != roomFilter {
			continue
		}
		if !strings.Contains(strings.ToLower(msg.Content), lowerQ) &&
			!strings.Contains(strings.ToLower(msg.Transcription), lowerQ) {
			continue
		}
		out = append(out, msg)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeMessageStore) UpdateEnrichment(_ context.Context, id, text string, status domain.EnrichmentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[id]
	if !ok {
		return fmt.Errorf("message %s not found", id)
	}
	msg.Transcription = text
	msg.Enrichment = status
	f.messages[id] = msg
	return nil
}

func (f *fakeMessageStore) SoftDelete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[id]
	if !ok {
		return fmt.Errorf("message %s not found", id)
	}
	msg.IsDeleted = true
	msg.Content = ""
	f.messages[id] = msg
	return nil
}

func (f *fakeMessageStore) HideForUser(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hidden[id] = append(f.hidden[id], userID)
	return nil
}

func (f *fakeMessageStore) hiddenFor(id, userID string) bool {
	for _, u := range f.hidden[id] {
		if u == userID {
			return true
		}
	}
	return false
}

type fakeMembership struct {
	rooms map[string][]string // user id -> room ids
}

func (f *fakeMembership) IsMember(_ context.Context, roomID, userID string) (bool, error) {
	for _, id := range f.rooms[userID] {
		if id == roomID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMembership) RoomIDsForUser(_ context.Context, userID string) ([]string, error) {
	return f.rooms[userID], nil
}

type fakeObjects struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	putErr  error
	getErr  error
	thumbed []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{blobs: map[string][]byte{}}
}

func (f *fakeObjects) Put(_ context.Context, key string, data []byte, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = data
	return nil
}

func (f *fakeObjects) Fetch(_ context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

func (f *fakeObjects) Thumbnail(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.thumbed = append(f.thumbed, key)
	return key + "_thumb.jpg", nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string, _ []byte) (string, error) {
	return f.text, f.err
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(_ context.Context, _ []byte, _ string) (string, error) {
	return f.text, f.err
}

type fakePresence struct {
	mu     sync.Mutex
	online map[string]bool
}

func newFakePresence() *fakePresence {
	return &fakePresence{online: map[string]bool{}}
}

func (f *fakePresence) SetOnline(_ context.Context, userID string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[userID] = online
	return nil
}

func (f *fakePresence) IsOnline(_ context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[userID], nil
}

type fakeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	closed   bool
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

// newTestSearchStore builds a store over temp files with the
// deterministic hash embedder.
func newTestSearchStore(t interface{ TempDir() string }) *SearchStore {
	store, err := NewSearchStore(t.TempDir(), NewHashEmbedder(32))
	if err != nil {
		panic(err)
	}
	return store
}
