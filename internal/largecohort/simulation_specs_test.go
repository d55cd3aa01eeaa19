package largecohort

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AbdulmoneamAli/federated/internal/fedavg"
	"github.com/AbdulmoneamAli/federated/internal/tasks"
	"github.com/AbdulmoneamAli/federated/pkg/dataset"
	"github.com/AbdulmoneamAli/federated/pkg/model"
	"github.com/AbdulmoneamAli/federated/pkg/optimizer"
)

func testSpec(maxExamples int) SimulationSpec {
	return SimulationSpec{
		IterativeProcessBuilder: func(builder model.Builder, pre dataset.Preprocess) (*fedavg.Process, error) {
			return fedavg.NewProcess(fedavg.Options{
				ModelBuilder:    builder,
				ClientOptimizer: optimizer.DefaultConfig(0.1),
				ServerOptimizer: optimizer.DefaultConfig(1.0),
				Preprocess:      pre,
				Seed:            1,
			})
		},
		CohortSize:           8,
		MaxExamplesPerClient: maxExamples,
		ClientEpochsPerRound: 1,
		ClientBatchSize:      5,
	}
}

func testTaskConfig() tasks.Config {
	return tasks.Config{
		Task: tasks.EMNISTCharRecognition,
		EMNIST: dataset.EMNISTConfig{
			OnlyDigits: true, NumClients: 10, ExamplesPerClient: 20, Seed: 1,
		},
	}
}

func TestSimulationSpecValidate(t *testing.T) {
	_, err := ConfigureTraining(testSpec(-1), testTaskConfig())
	require.Error(t, err)

	bad := testSpec(0)
	bad.CohortSize = 0
	_, err = ConfigureTraining(bad, testTaskConfig())
	require.Error(t, err)
}

func TestConfigureTrainingSamplesCohort(t *testing.T) {
	runner, err := ConfigureTraining(testSpec(0), testTaskConfig())
	require.NoError(t, err)

	cohort, err := runner.ClientDatasetsFn(0)
	require.NoError(t, err)
	require.Len(t, cohort, 8)

	_, m, err := runner.Process.Next(context.Background(), runner.Process.InitialState(), cohort)
	require.NoError(t, err)
	// 8 clients, 20 examples each, no cap.
	require.Equal(t, 160, m.NumExamples)
}

func TestMaxExamplesPerClientCapsRounds(t *testing.T) {
	runner, err := ConfigureTraining(testSpec(5), testTaskConfig())
	require.NoError(t, err)

	cohort, err := runner.ClientDatasetsFn(0)
	require.NoError(t, err)

	_, m, err := runner.Process.Next(context.Background(), runner.Process.InitialState(), cohort)
	require.NoError(t, err)
	// The cap limits each of the 8 clients to 5 examples per epoch.
	require.Equal(t, 40, m.NumExamples)
}
