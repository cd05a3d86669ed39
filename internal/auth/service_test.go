package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ionlife/ionlife/internal/shared"
	_ "github.com/ionlife/ionlife/testing"
)

type memoryRepo struct {
	users  map[int64]*User
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: map[int64]*User{}, nextID: 1}
}

func (m *memoryRepo) FindByUsername(_ context.Context, username string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			clone := *u
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memoryRepo) GetUser(_ context.Context, id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memoryRepo) ListUsers(_ context.Context) ([]User, error) {
	var out []User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *memoryRepo) CreateUser(_ context.Context, user User) (int64, error) {
	for _, u := range m.users {
		if u.Username == user.Username {
			return 0, ErrUsernameTaken
		}
	}
	id := m.nextID
	m.nextID++
	user.ID = id
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[id] = &user
	return id, nil
}

func (m *memoryRepo) UpdateUser(_ context.Context, user User) error {
	if _, ok := m.users[user.ID]; !ok {
		return shared.ErrNotFound
	}
	m.users[user.ID] = &user
	return nil
}

func (m *memoryRepo) ListRoles(_ context.Context) ([]Role, error) {
	return []Role{{ID: 1, Name: RoleAdmin}, {ID: 2, Name: RoleOperator}, {ID: 3, Name: RoleDriver}}, nil
}

func seedUser(t *testing.T, repo *memoryRepo, username, password, role string, active bool) int64 {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	id, err := repo.CreateUser(context.Background(), User{
		Username:     username,
		FullName:     username,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     active,
	})
	require.NoError(t, err)
	return id
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, nil, "test-secret", time.Hour)
}

func TestAuthenticate(t *testing.T) {
	repo := newMemoryRepo()
	seedUser(t, repo, "marta", "secreto123", RoleOperator, true)
	seedUser(t, repo, "inactivo", "secreto123", RoleDriver, false)
	svc := newTestService(repo)

	user, err := svc.Authenticate(context.Background(), "marta", "secreto123")
	require.NoError(t, err)
	require.Equal(t, "marta", user.Username)

	_, err = svc.Authenticate(context.Background(), "marta", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "inactivo", "secreto123")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "nope", "secreto123")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestTokenRoundTrip(t *testing.T) {
	repo := newMemoryRepo()
	id := seedUser(t, repo, "marta", "secreto123", RoleAdmin, true)
	svc := newTestService(repo)

	user, err := repo.GetUser(context.Background(), id)
	require.NoError(t, err)

	token, expiresAt, err := svc.IssueToken(user)
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	actor, err := svc.ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, id, actor.ID)
	require.Equal(t, "marta", actor.Username)
	require.Equal(t, RoleAdmin, actor.Role)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.ParseToken("not-a-token")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	other := NewService(newMemoryRepo(), nil, nil, "other-secret", time.Hour)
	user := &User{ID: 9, Username: "x", Role: RoleDriver}
	token, _, err := other.IssueToken(user)
	require.NoError(t, err)
	_, err = svc.ParseToken(token)
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestCreateUserHashesPassword(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	user, err := svc.CreateUser(context.Background(), 1, CreateUserInput{
		Username: "pedro",
		FullName: "Pedro Rojas",
		Password: "secreto123",
		Role:     RoleDriver,
	})
	require.NoError(t, err)
	require.NotEqual(t, "secreto123", user.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secreto123")))

	_, err = svc.CreateUser(context.Background(), 1, CreateUserInput{
		Username: "pedro",
		FullName: "Pedro Rojas",
		Password: "secreto123",
		Role:     RoleDriver,
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestUpdateUserPartial(t *testing.T) {
	repo := newMemoryRepo()
	id := seedUser(t, repo, "marta", "secreto123", RoleOperator, true)
	svc := newTestService(repo)

	inactive := false
	updated, err := svc.UpdateUser(context.Background(), 1, id, UpdateUserInput{IsActive: &inactive})
	require.NoError(t, err)
	require.False(t, updated.IsActive)
	require.Equal(t, RoleOperator, updated.Role)

	_, err = svc.UpdateUser(context.Background(), 1, 999, UpdateUserInput{IsActive: &inactive})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
