package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTestUser(id, email string) *User {
	now := NowNano()
	return &User{
		ID: id, Email: email, Name: "Jane Inspector", Role: UserRoleInspector, Status: "active",
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestSaveAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := makeTestUser("u1", "jane@example.com")
	require.NoError(t, s.SaveUser(ctx, u))

	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "jane@example.com", got.Email)
	assert.Equal(t, UserRoleInspector, got.Role)
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetUser(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetUserByEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, makeTestUser("u1", "jane@example.com")))

	got, err := s.GetUserByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.ID)
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetUserByEmail(context.Background(), "missing@example.com")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveUser_EmailNormalizedCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, makeTestUser("u1", "Jane.Inspector@Example.COM")))

	got, err := s.GetUserByEmail(ctx, "jane.inspector@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, "jane.inspector@example.com", got.Email)
}

func TestSaveUser_UpsertUpdatesExistingRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := makeTestUser("u1", "jane@example.com")
	require.NoError(t, s.SaveUser(ctx, u))

	u.Name = "Jane Senior Inspector"
	u.Role = UserRoleReviewer
	require.NoError(t, s.SaveUser(ctx, u))

	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Senior Inspector", got.Name)
	assert.Equal(t, UserRoleReviewer, got.Role)
}
