// Package largecohort adapts the standard tasks to large-cohort simulation experiments, where
// rounds sample hundreds or thousands of clients and each client's contribution is capped so
// that cohort size rather than client size dominates round cost.
package largecohort

import (
	"github.com/AbdulmoneamAli/federated/internal/fedavg"
	"github.com/AbdulmoneamAli/federated/internal/tasks"
	"github.com/AbdulmoneamAli/federated/pkg/check"
	"github.com/AbdulmoneamAli/federated/pkg/dataset"
	"github.com/AbdulmoneamAli/federated/pkg/model"
)

// SimulationSpec holds the run shape of a large-cohort experiment.
type SimulationSpec struct {
	IterativeProcessBuilder tasks.IterativeProcessBuilder

	// CohortSize is the number of clients sampled per round.
	CohortSize int `json:"cohort_size"`
	// MaxExamplesPerClient caps each client's per-epoch contribution; 0 means no cap.
	MaxExamplesPerClient int `json:"max_examples_per_client"`

	ClientEpochsPerRound     int    `json:"client_epochs_per_round"`
	ClientBatchSize          int    `json:"client_batch_size"`
	ClientDatasetsRandomSeed uint32 `json:"client_datasets_random_seed"`
}

// Validate implements the check.Validatable interface.
func (s SimulationSpec) Validate() []error {
	return []error{
		check.GreaterThan(s.CohortSize, 0, "cohort_size"),
		check.GreaterThanOrEqualTo(s.MaxExamplesPerClient, 0, "max_examples_per_client"),
		check.GreaterThan(s.ClientEpochsPerRound, 0, "client_epochs_per_round"),
		check.GreaterThan(s.ClientBatchSize, 0, "client_batch_size"),
	}
}

// taskSpec lowers the simulation spec onto a standard TaskSpec, interposing the per-client
// example cap into the preprocessing pipeline the task builds.
func (s SimulationSpec) taskSpec() tasks.TaskSpec {
	builder := s.IterativeProcessBuilder
	capped := func(mb model.Builder, pre dataset.Preprocess) (*fedavg.Process, error) {
		pre.MaxElements = s.MaxExamplesPerClient
		return builder(mb, pre)
	}
	return tasks.TaskSpec{
		IterativeProcessBuilder:  capped,
		ClientsPerRound:          s.CohortSize,
		ClientEpochsPerRound:     s.ClientEpochsPerRound,
		ClientBatchSize:          s.ClientBatchSize,
		ClientDatasetsRandomSeed: s.ClientDatasetsRandomSeed,
	}
}

// ConfigureTraining builds the RunnerSpec for the configured task under large-cohort settings.
func ConfigureTraining(spec SimulationSpec, cfg tasks.Config) (*tasks.RunnerSpec, error) {
	if err := check.Validate(spec); err != nil {
		return nil, err
	}
	return tasks.ConfigureTraining(spec.taskSpec(), cfg)
}
