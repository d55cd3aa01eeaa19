package tasks

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AbdulmoneamAli/federated/internal/fedavg"
	"github.com/AbdulmoneamAli/federated/pkg/dataset"
	"github.com/AbdulmoneamAli/federated/pkg/model"
	"github.com/AbdulmoneamAli/federated/pkg/optimizer"
)

func testProcessBuilder(builder model.Builder, pre dataset.Preprocess) (*fedavg.Process, error) {
	return fedavg.NewProcess(fedavg.Options{
		ModelBuilder:    builder,
		ClientOptimizer: optimizer.DefaultConfig(0.1),
		ServerOptimizer: optimizer.DefaultConfig(1.0),
		Preprocess:      pre,
		Seed:            1,
	})
}

func testTaskSpec() TaskSpec {
	return TaskSpec{
		IterativeProcessBuilder:  testProcessBuilder,
		ClientsPerRound:          3,
		ClientEpochsPerRound:     1,
		ClientBatchSize:          10,
		ClientDatasetsRandomSeed: 1,
	}
}

func testConfig(task string) Config {
	return Config{
		Task: task,
		EMNIST: dataset.EMNISTConfig{
			OnlyDigits: true, NumClients: 10, ExamplesPerClient: 20, Seed: 1,
		},
		CIFAR100: dataset.CIFAR100Config{
			NumClients: 10, ExamplesPerClient: 20, FeatureDim: 48, Seed: 1,
		},
		Shakespeare: dataset.ShakespeareConfig{
			NumClients: 10, ExamplesPerClient: 30, Seed: 1,
		},
		StackOverflow: dataset.StackOverflowConfig{
			VocabSize: 50, TagVocabSize: 20, NumClients: 10,
			PostsPerClient: 3, WordsPerPost: 6, Seed: 1,
		},
	}
}

func TestConfigValidate(t *testing.T) {
	require.Error(t, Config{Task: "mnist"}.Validate()[0])
	require.NoError(t, Config{Task: EMNISTCharRecognition}.Validate()[0])
}

func TestTaskSpecValidate(t *testing.T) {
	spec := testTaskSpec()
	spec.ClientsPerRound = 0
	_, err := ConfigureTraining(spec, testConfig(EMNISTCharRecognition))
	require.Error(t, err)
}

func TestConfigureTrainingUnknownTask(t *testing.T) {
	_, err := ConfigureTraining(testTaskSpec(), testConfig("mnist"))
	require.ErrorContains(t, err, "unknown task")
}

// runOneRound drives a configured runner through a round plus both evaluation paths.
func runOneRound(t *testing.T, runner *RunnerSpec) {
	t.Helper()
	state := runner.Process.InitialState()

	cohort, err := runner.ClientDatasetsFn(0)
	require.NoError(t, err)
	require.Len(t, cohort, 3)

	state, m, err := runner.Process.Next(context.Background(), state, cohort)
	require.NoError(t, err)
	require.Equal(t, 1, state.Round)
	require.Greater(t, m.NumExamples, 0)

	rep, err := runner.ValidationFn(state, 1)
	require.NoError(t, err)
	require.Contains(t, rep, "loss")

	rep, err = runner.TestFn(state)
	require.NoError(t, err)
	require.Contains(t, rep, "loss")
}

func TestConfigureEveryTask(t *testing.T) {
	for _, task := range Names {
		t.Run(task, func(t *testing.T) {
			runner, err := ConfigureTraining(testTaskSpec(), testConfig(task))
			require.NoError(t, err)
			runOneRound(t, runner)
		})
	}
}

func TestConfigureEMNISTModels(t *testing.T) {
	for _, name := range EMNISTModels {
		cfg := testConfig(EMNISTCharRecognition)
		cfg.Model = name
		_, err := ConfigureTraining(testTaskSpec(), cfg)
		require.NoError(t, err)
	}

	cfg := testConfig(EMNISTCharRecognition)
	cfg.Model = "resnet"
	_, err := ConfigureTraining(testTaskSpec(), cfg)
	require.ErrorContains(t, err, `cannot handle model "resnet"`)
}

func TestCohortSamplingIsSeededAndUnique(t *testing.T) {
	mk := func(seed uint32) []string {
		spec := testTaskSpec()
		spec.ClientDatasetsRandomSeed = seed
		runner, err := ConfigureTraining(spec, testConfig(EMNISTCharRecognition))
		require.NoError(t, err)
		cohort, err := runner.ClientDatasetsFn(0)
		require.NoError(t, err)
		ids := make([]string, len(cohort))
		for i, cd := range cohort {
			ids[i] = cd.ID
		}
		return ids
	}

	a := mk(5)
	require.Equal(t, a, mk(5))
	require.NotEqual(t, a, mk(6))

	// Sampling is without replacement.
	seen := map[string]bool{}
	for _, id := range a {
		require.False(t, seen[id], "client %s sampled twice", id)
		seen[id] = true
	}
}

func TestCohortSamplingIsPureFunctionOfRound(t *testing.T) {
	cohortIDs := func(runner *RunnerSpec, round int) []string {
		cohort, err := runner.ClientDatasetsFn(round)
		require.NoError(t, err)
		ids := make([]string, len(cohort))
		for i, cd := range cohort {
			ids[i] = cd.ID
		}
		return ids
	}

	unbroken, err := ConfigureTraining(testTaskSpec(), testConfig(EMNISTCharRecognition))
	require.NoError(t, err)
	var want [][]string
	for round := 0; round < 6; round++ {
		want = append(want, cohortIDs(unbroken, round))
	}

	// A fresh runner asked for round 5 directly gets the same cohort the unbroken run
	// got, without replaying rounds 0..4 first.
	resumed, err := ConfigureTraining(testTaskSpec(), testConfig(EMNISTCharRecognition))
	require.NoError(t, err)
	require.Equal(t, want[5], cohortIDs(resumed, 5))
	require.Equal(t, want[2], cohortIDs(resumed, 2))

	// Rounds draw distinct permutations rather than repeating round 0's cohort.
	distinct := false
	for round := 1; round < 6; round++ {
		if !slices.Equal(want[round], want[0]) {
			distinct = true
		}
	}
	require.True(t, distinct, "every round sampled the round-0 cohort")
}

func TestCohortCappedAtPopulation(t *testing.T) {
	spec := testTaskSpec()
	spec.ClientsPerRound = 1000
	runner, err := ConfigureTraining(spec, testConfig(EMNISTCharRecognition))
	require.NoError(t, err)
	cohort, err := runner.ClientDatasetsFn(0)
	require.NoError(t, err)
	require.Len(t, cohort, 10)
}
