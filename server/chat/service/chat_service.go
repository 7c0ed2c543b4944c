package service

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"voicechat_server/server/chat/domain"
	commonlog "voicechat_server/server/common/log"
)

// ChatService coordinates ingestion: it persists the message, makes it
// visible to the room immediately, and schedules enrichment so the
// creating request never waits on a model or an external engine. For
// plain text the message-granularity index update runs synchronously;
// it is cheap and needs no collaborator call.
type ChatService struct {
	store      MessageStore
	members    MembershipStore
	objects    AttachmentStore
	search     *SearchStore
	hub        *Hub
	enrichment *EnrichmentService
	publisher  *EventPublisher
	runner     *JobRunner
}

func NewChatService(
	store MessageStore,
	members MembershipStore,
	objects AttachmentStore,
	search *SearchStore,
	hub *Hub,
	enrichment *EnrichmentService,
	publisher *EventPublisher,
	runner *JobRunner,
) *ChatService {
	return &ChatService{
		store:      store,
		members:    members,
		objects:    objects,
		search:     search,
		hub:        hub,
		enrichment: enrichment,
		publisher:  publisher,
		runner:     runner,
	}
}

func (s *ChatService) CreateTextMessage(ctx context.Context, roomID, senderID, content string) (domain.Message, error) {
	if err := s.requireMember(ctx, roomID, senderID); err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		SenderID:    senderID,
		Content:     content,
		MessageType: domain.MessageTypeText,
		Enrichment:  domain.EnrichmentNone,
	}
	created, err := s.store.Create(ctx, msg)
	if err != nil {
		return domain.Message{}, err
	}

	if err := s.search.IndexMessage(ctx, created.ID, content); err != nil {
		commonlog.Errorf("event=ingest action=index status=failed message_id=%s error=%v", created.ID, err)
	}

	s.hub.Publish(roomID, Envelope{Type: EnvelopeNewContent, Payload: created})
	s.publisher.Publish(ctx, EventMessageCreated, created)
	return created, nil
}

// CreateAttachment stores the raw payload, persists and broadcasts the
// message, then schedules whatever enrichment the type requires: voice
// transcription, document extraction, image thumbnailing. Video gets
// none. The broadcast always precedes enrichment completion.
func (s *ChatService) CreateAttachment(ctx context.Context, roomID, senderID string, msgType domain.MessageType, filename, contentType string, data []byte) (domain.Message, error) {
	if err := s.requireMember(ctx, roomID, senderID); err != nil {
		return domain.Message{}, err
	}
	if msgType == domain.MessageTypeText {
		return domain.Message{}, fmt.Errorf("attachment message type required")
	}

	key := objectKey(msgType, filename)
	if err := s.objects.Put(ctx, key, data, contentType); err != nil {
		return domain.Message{}, fmt.Errorf("store attachment: %w", err)
	}

	status := domain.EnrichmentNone
	if msgType == domain.MessageTypeVoice || msgType == domain.MessageTypeDocument {
		status = domain.EnrichmentPending
	}
	content := ""
	if msgType != domain.MessageTypeVoice {
		content = filename
	}

	msg := domain.Message{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		SenderID:    senderID,
		Content:     content,
		MessageType: msgType,
		ObjectKey:   key,
		FileURL:     "/api/files/" + key,
		Enrichment:  status,
	}
	created, err := s.store.Create(ctx, msg)
	if err != nil {
		return domain.Message{}, err
	}

	s.hub.Publish(roomID, Envelope{Type: EnvelopeNewContent, Payload: created})
	s.publisher.Publish(ctx, EventMessageCreated, created)

	switch msgType {
	case domain.MessageTypeVoice:
		s.enrichment.EnqueueVoice(created)
	case domain.MessageTypeDocument:
		s.enrichment.EnqueueDocument(created, contentType)
	case domain.MessageTypeImage:
		s.runner.Submit(func() {
			if _, err := s.objects.Thumbnail(context.Background(), key); err != nil {
				commonlog.Warnf("event=ingest action=thumbnail status=failed message_id=%s error=%v", created.ID, err)
			}
		})
	}
	return created, nil
}

func (s *ChatService) ListRoomMessages(ctx context.Context, roomID, userID string, limit, offset int) ([]domain.Message, error) {
	if err := s.requireMember(ctx, roomID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByRoom(ctx, roomID, userID, limit, offset)
}

// DeleteMessage soft-deletes for everyone (sender only) or hides the
// message for the requesting user. The vector indices are untouched;
// deleted messages drop out of search through record-store filtering.
func (s *ChatService) DeleteMessage(ctx context.Context, roomID, messageID, userID, scope string) error {
	if err := s.requireMember(ctx, roomID, userID); err != nil {
		return err
	}
	msg, err := s.store.GetByID(ctx, messageID)
	if err != nil || msg.RoomID != roomID {
		return ErrMessageNotFound
	}

	if scope == "everyone" {
		if msg.SenderID != userID {
			return ErrNotSender
		}
		if err := s.store.SoftDelete(ctx, messageID); err != nil {
			return err
		}
		s.hub.Publish(roomID, Envelope{Type: EnvelopeContentDeleted, Payload: map[string]string{
			"message_id": messageID,
			"scope":      "everyone",
		}})
		s.publisher.Publish(ctx, EventMessageDeleted, map[string]string{"message_id": messageID})
		return nil
	}
	return s.store.HideForUser(ctx, messageID, userID)
}

func (s *ChatService) requireMember(ctx context.Context, roomID, userID string) error {
	ok, err := s.members.IsMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotRoomMember
	}
	return nil
}

func objectKey(msgType domain.MessageType, filename string) string {
	folder := "misc"
	switch msgType {
	case domain.MessageTypeVoice:
		folder = "voice"
	case domain.MessageTypeImage:
		folder = "images"
	case domain.MessageTypeVideo:
		folder = "videos"
	case domain.MessageTypeDocument:
		folder = "docs"
	}
	ext := path.Ext(filename)
	if msgType == domain.MessageTypeVoice && ext == "" {
		ext = ".webm"
	}
	return folder + "/" + uuid.NewString() + strings.ToLower(ext)
}
