// ABOUTME: Tests for the relay-matrix SQLite state store
// ABOUTME: Covers sync position round trips, persistence across reopen and thread names

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestState(t *testing.T) (*StateStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	s, err := OpenStateStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestStateStore_EmptyOnFirstStart(t *testing.T) {
	s, _ := openTestState(t)
	ctx := context.Background()

	batch, err := s.LoadNextBatch(ctx, botUser)
	require.NoError(t, err)
	assert.Empty(t, batch)

	filter, err := s.LoadFilterID(ctx, botUser)
	require.NoError(t, err)
	assert.Empty(t, filter)
}

func TestStateStore_SyncPositionSurvivesReopen(t *testing.T) {
	s, path := openTestState(t)
	ctx := context.Background()

	require.NoError(t, s.SaveFilterID(ctx, botUser, "filter-1"))
	require.NoError(t, s.SaveNextBatch(ctx, botUser, "s1_2_3"))
	require.NoError(t, s.SaveNextBatch(ctx, botUser, "s4_5_6"))
	require.NoError(t, s.Close())

	reopened, err := OpenStateStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	batch, err := reopened.LoadNextBatch(ctx, botUser)
	require.NoError(t, err)
	assert.Equal(t, "s4_5_6", batch)

	filter, err := reopened.LoadFilterID(ctx, botUser)
	require.NoError(t, err)
	assert.Equal(t, "filter-1", filter, "saving next batch keeps the filter id")
}

func TestStateStore_UsersAreIndependent(t *testing.T) {
	s, _ := openTestState(t)
	ctx := context.Background()

	require.NoError(t, s.SaveNextBatch(ctx, botUser, "a"))
	batch, err := s.LoadNextBatch(ctx, "@other:example.org")
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestStateStore_ThreadNames(t *testing.T) {
	s, _ := openTestState(t)
	ctx := context.Background()

	_, ok, err := s.LoadThreadName(ctx, testRoom, "$root")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveThreadName(ctx, testRoom, "$root", "Refund"))
	require.NoError(t, s.SaveThreadName(ctx, testRoom, "$root", "Refund request"))

	name, ok, err := s.LoadThreadName(ctx, testRoom, "$root")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Refund request", name)

	_, ok, err = s.LoadThreadName(ctx, "!other:example.org", "$root")
	require.NoError(t, err)
	assert.False(t, ok, "names are scoped by room")
}
