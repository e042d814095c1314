package authstore

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shreya-uprety/medforce-gateway/gateway/events"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	s := New(db)
	require.NoError(t, s.AutoMigrate(context.Background()))
	return s
}

func TestIssueAndVerify(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token, rec, err := s.Issue(ctx, "helper-app integration", events.RoleHelper)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, rec.Active())

	verified, err := s.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, verified.ID)
	assert.Equal(t, events.RoleHelper, verified.SenderRole())
	require.NotNil(t, verified.LastUsedAt)
}

func TestVerifyUnknownToken(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Verify(context.Background(), "not-a-real-token")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRevokeDisablesKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token, rec, err := s.Issue(ctx, "gp-portal", events.RoleGP)
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, rec.ID))

	_, err = s.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)

	// Revoking twice is a no-op error, not a crash.
	err = s.Revoke(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrdersMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, first, err := s.Issue(ctx, "first", events.RolePatient)
	require.NoError(t, err)
	_, second, err := s.Issue(ctx, "second", events.RolePatient)
	require.NoError(t, err)

	keys, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, second.ID, keys[0].ID)
	assert.Equal(t, first.ID, keys[1].ID)
}
