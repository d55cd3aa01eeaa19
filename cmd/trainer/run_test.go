package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeOptionsDefaults(t *testing.T) {
	newRunCmd()

	opts, err := mergeOptions()
	require.NoError(t, err)
	require.Equal(t, "emnist_cr", opts.Task.Task)
	require.Equal(t, 10, opts.ClientsPerRound)
	require.Equal(t, 100, opts.Loop.TotalRounds)
	require.InDelta(t, 0.1, opts.ClientOptimizer.LearningRate, 1e-12)
	require.InDelta(t, 1.0, opts.ServerOptimizer.LearningRate, 1e-12)
}

func TestMergeOptionsFlagOverrides(t *testing.T) {
	cmd := newRunCmd()
	require.NoError(t, cmd.Flags().Set("task", "cifar100"))
	require.NoError(t, cmd.Flags().Set("client-lr", "0.05"))
	require.NoError(t, cmd.Flags().Set("total-rounds", "7"))

	opts, err := mergeOptions()
	require.NoError(t, err)
	require.Equal(t, "cifar100", opts.Task.Task)
	require.InDelta(t, 0.05, opts.ClientOptimizer.LearningRate, 1e-12)
	require.Equal(t, 7, opts.Loop.TotalRounds)
}

func TestMergeOptionsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	config := `
task:
  task: shakespeare
clients_per_round: 25
client_optimizer:
  optimizer: momentum
  learning_rate: 0.3
`
	require.NoError(t, os.WriteFile(path, []byte(config), 0o644))

	cmd := newRunCmd()
	require.NoError(t, cmd.Flags().Set("config-file", path))
	// An explicitly set flag wins over the file.
	require.NoError(t, cmd.Flags().Set("clients-per-round", "50"))

	opts, err := mergeOptions()
	require.NoError(t, err)
	require.Equal(t, "shakespeare", opts.Task.Task)
	require.Equal(t, 50, opts.ClientsPerRound)
	require.Equal(t, "momentum", opts.ClientOptimizer.Optimizer)
	require.InDelta(t, 0.3, opts.ClientOptimizer.LearningRate, 1e-12)
}

func TestMergeOptionsBadConfigFile(t *testing.T) {
	cmd := newRunCmd()
	require.NoError(t, cmd.Flags().Set("config-file", filepath.Join(t.TempDir(), "nope.yaml")))
	_, err := mergeOptions()
	require.ErrorContains(t, err, "cannot read config file")
}

func TestEnvBeatsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("task:\n  task: shakespeare\n"), 0o644))

	cmd := newRunCmd()
	require.NoError(t, cmd.Flags().Set("config-file", path))
	t.Setenv("FED_TASK", "stackoverflow_nwp")
	require.NoError(t, bindEnv("FED_", cmd))

	opts, err := mergeOptions()
	require.NoError(t, err)
	require.Equal(t, "stackoverflow_nwp", opts.Task.Task)
}

func TestBindEnv(t *testing.T) {
	cmd := newRunCmd()
	t.Setenv("FED_TASK", "stackoverflow_nwp")
	t.Setenv("FED_SEED", "99")
	require.NoError(t, bindEnv("FED_", cmd))

	opts, err := mergeOptions()
	require.NoError(t, err)
	require.Equal(t, "stackoverflow_nwp", opts.Task.Task)
	require.Equal(t, uint32(99), opts.Seed)

	t.Setenv("FED_SEED", "not-a-number")
	require.ErrorContains(t, bindEnv("FED_", cmd), "failed to parse FED_SEED")
}
