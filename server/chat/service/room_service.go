package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"voicechat_server/server/chat/domain"
)

type RoomStore interface {
	Create(ctx context.Context, room domain.Room, memberIDs []string) (domain.Room, error)
	// FindDirectRoom returns an existing non-group room whose members
	// are exactly the two given users, or "" when none exists.
	FindDirectRoom(ctx context.Context, userA, userB string) (string, error)
	GetByID(ctx context.Context, id string) (domain.Room, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Room, error)
	Members(ctx context.Context, roomID string) ([]domain.User, error)
	LastMessage(ctx context.Context, roomID string) (*domain.Message, error)
	CountMembers(ctx context.Context, roomID string) (int, error)
	RemoveMember(ctx context.Context, roomID, userID string) error
	Delete(ctx context.Context, roomID string) error
}

type RoomService struct {
	rooms   RoomStore
	members MembershipStore
}

func NewRoomService(rooms RoomStore, members MembershipStore) *RoomService {
	return &RoomService{rooms: rooms, members: members}
}

// CreateRoom creates a group room, or reuses the existing direct room
// between two users rather than creating a duplicate.
func (s *RoomService) CreateRoom(ctx context.Context, creatorID, name string, isGroup bool, memberIDs []string) (domain.RoomSummary, error) {
	if !isGroup && len(memberIDs) == 1 {
		existingID, err := s.rooms.FindDirectRoom(ctx, creatorID, memberIDs[0])
		if err != nil {
			return domain.RoomSummary{}, err
		}
		if existingID != "" {
			return s.summarize(ctx, existingID, creatorID)
		}
	}

	room := domain.Room{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		IsGroup:   isGroup,
		CreatedBy: creatorID,
	}
	all := append([]string{creatorID}, memberIDs...)
	created, err := s.rooms.Create(ctx, room, dedupe(all))
	if err != nil {
		return domain.RoomSummary{}, err
	}
	return s.summarize(ctx, created.ID, creatorID)
}

func (s *RoomService) ListMyRooms(ctx context.Context, userID string) ([]domain.RoomSummary, error) {
	rooms, err := s.rooms.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summary, err := s.summarize(ctx, room.ID, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

// LeaveRoom removes the user; rooms with two or fewer members are torn
// down entirely (a direct room has no meaning once one side leaves).
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, userID string) error {
	ok, err := s.members.IsMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotRoomMember
	}
	count, err := s.rooms.CountMembers(ctx, roomID)
	if err != nil {
		return err
	}
	if count <= 2 {
		return s.rooms.Delete(ctx, roomID)
	}
	return s.rooms.RemoveMember(ctx, roomID, userID)
}

func (s *RoomService) summarize(ctx context.Context, roomID, viewerID string) (domain.RoomSummary, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return domain.RoomSummary{}, err
	}
	members, err := s.rooms.Members(ctx, roomID)
	if err != nil {
		return domain.RoomSummary{}, err
	}
	last, err := s.rooms.LastMessage(ctx, roomID)
	if err != nil {
		return domain.RoomSummary{}, err
	}

	// direct rooms display as the other member's name
	if !room.IsGroup {
		for _, m := range members {
			if m.ID != viewerID {
				room.Name = m.Username
				break
			}
		}
	}
	return domain.RoomSummary{Room: room, Members: members, LastMessage: last}, nil
}

func dedupe(ids []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
