package service

import (
	"context"
	"errors"

	"voicechat_server/server/chat/domain"
)

var (
	ErrNotRoomMember   = errors.New("not a member of this room")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotSender       = errors.New("only the sender can delete for everyone")
)

// MessageStore is the record-store contract the pipeline depends on.
// The core only writes the enrichment fields and the delete flags;
// everything else about a message is owned by the repository layer.
type MessageStore interface {
	Create(ctx context.Context, msg domain.Message) (domain.Message, error)
	GetByID(ctx context.Context, id string) (domain.Message, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Message, error)
	ListByRoom(ctx context.Context, roomID, viewerID string, limit, offset int) ([]domain.Message, error)
	// SearchKeyword matches q case-insensitively against message content
	// and enriched text within the given rooms, excluding soft-deleted
	// messages, newest first.
	SearchKeyword(ctx context.Context, roomIDs []string, q, roomFilter string, limit int) ([]domain.Message, error)
	UpdateEnrichment(ctx context.Context, id, text string, status domain.EnrichmentStatus) error
	SoftDelete(ctx context.Context, id string) error
	HideForUser(ctx context.Context, id, userID string) error
}

type MembershipStore interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	RoomIDsForUser(ctx context.Context, userID string) ([]string, error)
}
