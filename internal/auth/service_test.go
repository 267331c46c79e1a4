package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djlord-it/easy-trigger/internal/domain"
	"github.com/djlord-it/easy-trigger/internal/testutil"
)

type mockUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]domain.User
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[uuid.UUID]domain.User)}
}

func (s *mockUserStore) CreateUser(ctx context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == user.Username {
			return ErrUserExists
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *mockUserStore) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Username == username {
			return user, nil
		}
	}
	return domain.User{}, ErrUserNotFound
}

func (s *mockUserStore) GetUserByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

func (s *mockUserStore) remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	store := newMockUserStore()
	svc := NewService(store, []byte("test-secret"))

	token, err := svc.Register(context.Background(), "Alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, "bearer", token.TokenType)
	assert.NotEmpty(t, token.AccessToken)

	userID, err := svc.Authenticate(context.Background(), token.AccessToken)
	require.NoError(t, err)

	user, err := store.GetUserByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username, "usernames are stored lowercase")
	assert.NotEqual(t, "password123", user.PasswordHash)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	store := newMockUserStore()
	svc := NewService(store, []byte("test-secret"))

	_, err := svc.Register(context.Background(), "alice", "password123")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "ALICE", "other")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestLogin(t *testing.T) {
	store := newMockUserStore()
	svc := NewService(store, []byte("test-secret"))

	_, err := svc.Register(context.Background(), "alice", "password123")
	require.NoError(t, err)

	token, err := svc.Login(context.Background(), "alice", "password123")
	require.NoError(t, err)

	userID, err := svc.Authenticate(context.Background(), token.AccessToken)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, userID)
}

func TestLogin_WrongPassword(t *testing.T) {
	store := newMockUserStore()
	svc := NewService(store, []byte("test-secret"))

	_, err := svc.Register(context.Background(), "alice", "password123")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "alice", "wrongpassword")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown user is indistinguishable from a wrong password.
	_, err = svc.Login(context.Background(), "nobody", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_Garbage(t *testing.T) {
	svc := NewService(newMockUserStore(), []byte("test-secret"))

	for _, tok := range []string{"", "not-a-token", strings.Repeat("x", 512)} {
		_, err := svc.Authenticate(context.Background(), tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestAuthenticate_WrongSecret(t *testing.T) {
	store := newMockUserStore()
	issuer := NewService(store, []byte("secret-a"))
	verifier := NewService(store, []byte("secret-b"))

	token, err := issuer.Register(context.Background(), "alice", "password123")
	require.NoError(t, err)

	_, err = verifier.Authenticate(context.Background(), token.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_Expired(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	store := newMockUserStore()
	svc := NewService(store, []byte("test-secret")).WithClock(clock.Now)

	token, err := svc.Register(context.Background(), "alice", "password123")
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), token.AccessToken)
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)
	_, err = svc.Authenticate(context.Background(), token.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_RemovedUser(t *testing.T) {
	store := newMockUserStore()
	svc := NewService(store, []byte("test-secret"))

	token, err := svc.Register(context.Background(), "alice", "password123")
	require.NoError(t, err)

	userID, err := svc.Authenticate(context.Background(), token.AccessToken)
	require.NoError(t, err)

	store.remove(userID)
	_, err = svc.Authenticate(context.Background(), token.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
