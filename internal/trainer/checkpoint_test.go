package trainer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AbdulmoneamAli/federated/internal/fedavg"
	"github.com/AbdulmoneamAli/federated/pkg/tensor"
)

func testCheckpoint(round int) Checkpoint {
	return Checkpoint{
		RunID: "run-1",
		State: fedavg.ServerState{
			Round:   round,
			Weights: tensor.Weights{{1.5, -2.25}, {float64(round)}},
		},
	}
}

func TestSaveLoadCheckpoint(t *testing.T) {
	dir := t.TempDir()
	ck := testCheckpoint(7)

	path, err := SaveCheckpoint(dir, ck)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "ckpt_000007.snappy"), path)

	loaded, err := LoadCheckpoint(path)
	require.NoError(t, err)
	require.Equal(t, ck, loaded)

	// No stray temp file left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSaveCheckpointCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "checkpoints")
	_, err := SaveCheckpoint(dir, testCheckpoint(1))
	require.NoError(t, err)
}

func TestLoadCheckpointCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ckpt_000001.snappy")
	require.NoError(t, os.WriteFile(path, []byte("not snappy data"), 0o644))
	_, err := LoadCheckpoint(path)
	require.Error(t, err)

	_, err = LoadCheckpoint(filepath.Join(dir, "missing.snappy"))
	require.Error(t, err)
}

func TestLatestCheckpoint(t *testing.T) {
	dir := t.TempDir()

	_, ok, err := LatestCheckpoint(dir)
	require.NoError(t, err)
	require.False(t, ok)

	// A missing directory is not an error, just no checkpoint.
	_, ok, err = LatestCheckpoint(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	require.False(t, ok)

	for _, round := range []int{3, 10, 7} {
		_, err := SaveCheckpoint(dir, testCheckpoint(round))
		require.NoError(t, err)
	}
	// Unrelated files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	path, ok, err := LatestCheckpoint(dir)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, filepath.Join(dir, "ckpt_000010.snappy"), path)
}

func TestPruneCheckpoints(t *testing.T) {
	dir := t.TempDir()
	for round := 1; round <= 5; round++ {
		_, err := SaveCheckpoint(dir, testCheckpoint(round))
		require.NoError(t, err)
	}

	require.NoError(t, PruneCheckpoints(dir, 2))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "ckpt_000004.snappy", entries[0].Name())
	require.Equal(t, "ckpt_000005.snappy", entries[1].Name())

	// Pruning below the keep count is a no-op, as is pruning a missing dir.
	require.NoError(t, PruneCheckpoints(dir, 10))
	require.NoError(t, PruneCheckpoints(filepath.Join(dir, "nope"), 1))
}
