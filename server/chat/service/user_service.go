package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"voicechat_server/server/chat/domain"
	"voicechat_server/server/common/auth"
	commonlog "voicechat_server/server/common/log"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type UserStore interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	UpdateProfile(ctx context.Context, id, username, avatarURL, about string) (domain.User, error)
}

type UserService struct {
	users    UserStore
	tokens   *auth.Service
	presence PresenceStore
}

func NewUserService(users UserStore, tokens *auth.Service, presence PresenceStore) *UserService {
	return &UserService{users: users, tokens: tokens, presence: presence}
}

func (s *UserService) Register(ctx context.Context, username, email, password string) (domain.User, string, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", err
	}
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(username),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		About:        "Hey there! I am using VoiceChat.",
		PasswordHash: hash,
	}
	created, err := s.users.Create(ctx, user)
	if err != nil {
		return domain.User{}, "", err
	}
	token, err := s.tokens.GenerateToken(created.ID, created.Username)
	if err != nil {
		return domain.User{}, "", err
	}
	commonlog.Infof("event=auth action=register status=ok user_id=%s", created.ID)
	return created, token, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !auth.VerifyPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := s.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	s.fillPresence(ctx, &user)
	return user, nil
}

func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		s.fillPresence(ctx, &users[i])
	}
	return users, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, id, username, avatarURL, about string) (domain.User, error) {
	return s.users.UpdateProfile(ctx, id, username, avatarURL, about)
}

func (s *UserService) fillPresence(ctx context.Context, user *domain.User) {
	if s.presence == nil {
		return
	}
	online, err := s.presence.IsOnline(ctx, user.ID)
	if err != nil {
		return
	}
	user.IsOnline = online
}
