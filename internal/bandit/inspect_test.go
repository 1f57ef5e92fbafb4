package bandit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadThompsonState(t *testing.T) {
	path := filepath.Join(t.TempDir(), ThompsonStateFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"a":{"alpha":3,"beta":1},"bad":{"alpha":0,"beta":1}}`), 0o600))

	arms, err := ReadThompsonState(path)
	require.NoError(t, err)
	require.Len(t, arms, 1)
	assert.InDelta(t, 0.75, arms["a"].Mean(), 1e-12)

	_, err = ReadThompsonState(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadLinUCBState(t *testing.T) {
	path := filepath.Join(t.TempDir(), StateFileName(2))
	content := `{
		"a": {"A": [[2,0],[0,4]], "b": [2,2]},
		"ragged": {"A": [[1,0],[0]], "b": [0,0]}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	arms, err := ReadLinUCBState(path)
	require.NoError(t, err)
	require.Len(t, arms, 1)
	assert.InDeltaSlice(t, []float64{1, 0.5}, arms["a"].Theta, 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 0}, arms["a"].AInv[0], 1e-12)
}

func TestReadLinUCBState_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), StateFileName(2))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := ReadLinUCBState(path)
	assert.Error(t, err)
}
