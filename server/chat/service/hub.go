package service

import (
	"context"
	"encoding/json"
	"sync"

	commonlog "voicechat_server/server/common/log"
)

const (
	EnvelopeNewContent          = "new_content"
	EnvelopeTranscriptionUpdate = "transcription_update"
	EnvelopeContentDeleted      = "content_deleted"
	EnvelopePresence            = "presence"
)

type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Conn is the slice of a websocket connection the hub needs. Satisfied
// by *wsConn (and by test doubles).
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type PresenceStore interface {
	SetOnline(ctx context.Context, userID string, online bool) error
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// Hub is the per-room fanout registry. A connection belongs to exactly
// one room; delivery is best effort, at most once per live connection,
// with no queuing or replay. One mutex guards the whole registry.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[Conn]string // conn -> userID
	presence PresenceStore
}

func NewHub(presence PresenceStore) *Hub {
	return &Hub{rooms: map[string]map[Conn]string{}, presence: presence}
}

// Subscribe adds the connection to the room's registry and marks the
// user online. Presence writes are last-writer-wins and best effort.
func (h *Hub) Subscribe(roomID string, conn Conn, userID string) {
	h.mu.Lock()
	conns, ok := h.rooms[roomID]
	if !ok {
		conns = map[Conn]string{}
		h.rooms[roomID] = conns
	}
	conns[conn] = userID
	total := len(conns)
	h.mu.Unlock()

	h.setPresence(userID, true)
	commonlog.Infof("event=hub action=subscribe room_id=%s user_id=%s conns=%d", roomID, userID, total)
}

// Unsubscribe removes the connection, dropping the room entry once its
// registry is empty, and marks the user offline.
func (h *Hub) Unsubscribe(roomID string, conn Conn, userID string) {
	h.mu.Lock()
	if conns, ok := h.rooms[roomID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()

	_ = conn.Close()
	h.setPresence(userID, false)
	commonlog.Infof("event=hub action=unsubscribe room_id=%s user_id=%s", roomID, userID)
}

// Publish delivers the envelope to every connection subscribed to the
// room. Failed connections are collected during the write pass and
// removed afterwards, so the registry is never mutated mid-iteration
// and one dead peer cannot abort delivery to the rest.
func (h *Hub) Publish(roomID string, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		commonlog.Errorf("event=hub action=publish status=failed room_id=%s error=%v", roomID, err)
		return
	}

	h.mu.RLock()
	targets := make([]Conn, 0, len(h.rooms[roomID]))
	for conn := range h.rooms[roomID] {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	var dead []Conn
	for _, conn := range targets {
		if err := conn.WriteMessage(textMessage, payload); err != nil {
			dead = append(dead, conn)
		}
	}
	if len(dead) == 0 {
		return
	}

	h.mu.Lock()
	conns := h.rooms[roomID]
	for _, conn := range dead {
		userID := conns[conn]
		delete(conns, conn)
		_ = conn.Close()
		commonlog.Warnf("event=hub action=prune room_id=%s user_id=%s type=%s", roomID, userID, env.Type)
	}
	if len(conns) == 0 {
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()
}

func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) setPresence(userID string, online bool) {
	if h.presence == nil || userID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceWriteTimeout)
	defer cancel()
	if err := h.presence.SetOnline(ctx, userID, online); err != nil {
		commonlog.Warnf("event=hub action=set_presence status=failed user_id=%s online=%t error=%v", userID, online, err)
	}
}
