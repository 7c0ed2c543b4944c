package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicechat_server/server/chat/domain"
	"voicechat_server/server/common/auth"
)

type fakeUserStore struct {
	users map[string]domain.User // keyed by id
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]domain.User{}}
}

func (f *fakeUserStore) Create(_ context.Context, user domain.User) (domain.User, error) {
	for _, u := range f.users {
		if u.Email == user.Email {
			return domain.User{}, fmt.Errorf("email %s already registered", user.Email)
		}
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (domain.User, error) {
	user, ok := f.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %s not found", id)
	}
	return user, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (domain.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("user %s not found", email)
}

func (f *fakeUserStore) List(_ context.Context) ([]domain.User, error) {
	out := make([]domain.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUserStore) UpdateProfile(_ context.Context, id, username, avatarURL, about string) (domain.User, error) {
	user, ok := f.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %s not found", id)
	}
	if username != "" {
		user.Username = username
	}
	if avatarURL != "" {
		user.AvatarURL = avatarURL
	}
	if about != "" {
		user.About = about
	}
	f.users[id] = user
	return user, nil
}

func newUserFixture() (*UserService, *fakeUserStore, *fakePresence) {
	store := newFakeUserStore()
	presence := newFakePresence()
	svc := NewUserService(store, auth.NewService("test-secret", 60), presence)
	return svc, store, presence
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, _ := newUserFixture()
	ctx := context.Background()

	user, token, err := svc.Register(ctx, "alice", "Alice@Example.com", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "hunter22", user.PasswordHash, "password is never stored in the clear")

	loggedIn, token, err := svc.Login(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, user.ID, loggedIn.ID)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newUserFixture()
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "bob", "bob@example.com", "secret1")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "bob@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _, _ := newUserFixture()

	_, _, err := svc.Login(context.Background(), "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newUserFixture()
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "carol", "carol@example.com", "pass1")
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, "carol2", "carol@example.com", "pass2")
	assert.Error(t, err)
}

func TestGetByIDFillsPresence(t *testing.T) {
	svc, _, presence := newUserFixture()
	ctx := context.Background()

	user, _, err := svc.Register(ctx, "dave", "dave@example.com", "pass1")
	require.NoError(t, err)
	require.NoError(t, presence.SetOnline(ctx, user.ID, true))

	got, err := svc.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOnline)
}
