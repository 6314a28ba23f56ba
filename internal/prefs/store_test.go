package prefs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// TestCallTypeDefault tests the fallback when nothing is persisted
func TestCallTypeDefault(t *testing.T) {
	store := openTestStore(t)
	assert.Equal(t, DefaultCallType, store.CallType())
}

// TestSetCallType tests persisting and reading back the preference
func TestSetCallType(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SetCallType("audio"))
	assert.Equal(t, "audio", store.CallType())

	// Overwrite, not duplicate
	require.NoError(t, store.SetCallType("video"))
	assert.Equal(t, "video", store.CallType())
}

// TestPersistsAcrossReopen tests that the preference survives a restart
func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.SetCallType("audio"))
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, "audio", reopened.CallType())
}
