package statestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type armState struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

func TestSaveAndLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "thompson_state.json")

	want := map[string]armState{
		"gpt-4o":      {Alpha: 12.5, Beta: 3.25},
		"gpt-4o-mini": {Alpha: 1, Beta: 7},
	}
	require.NoError(t, SaveJSON(path, want))

	var got map[string]armState
	found, err := LoadJSON(path, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSaveJSON_OverwritesAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.NoError(t, SaveJSON(path, map[string]int{"a": 1}))
	require.NoError(t, SaveJSON(path, map[string]int{"a": 2}))

	var got map[string]int
	_, err := LoadJSON(path, &got)
	require.NoError(t, err)
	assert.Equal(t, 2, got["a"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestLoadJSON_Missing(t *testing.T) {
	got := map[string]int{"untouched": 1}
	found, err := LoadJSON(filepath.Join(t.TempDir(), "absent.json"), &got)

	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, map[string]int{"untouched": 1}, got)
}

func TestLoadJSON_Corrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	var got map[string]int
	found, err := LoadJSON(path, &got)

	assert.True(t, found)
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestSaveJSON_UnmarshalableValue(t *testing.T) {
	err := SaveJSON(filepath.Join(t.TempDir(), "state.json"), map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
