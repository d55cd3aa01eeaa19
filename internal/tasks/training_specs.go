// Package tasks wires datasets, models, and training configuration into runnable federated
// tasks. A TaskSpec carries the run-shape knobs shared by every task; each task's Configure
// function loads its dataset, picks its model, and returns the RunnerSpec the training loop
// consumes.
package tasks

import (
	"github.com/AbdulmoneamAli/federated/internal/fedavg"
	"github.com/AbdulmoneamAli/federated/pkg/check"
	"github.com/AbdulmoneamAli/federated/pkg/dataset"
	"github.com/AbdulmoneamAli/federated/pkg/metrics"
	"github.com/AbdulmoneamAli/federated/pkg/model"
)

// IterativeProcessBuilder turns a model builder and a client preprocessing pipeline into a
// federated averaging process. The trainer constructs this closure from its optimizer and
// aggregation flags so tasks stay agnostic of the optimization configuration.
type IterativeProcessBuilder func(
	builder model.Builder, pre dataset.Preprocess,
) (*fedavg.Process, error)

// TaskSpec holds the run-shape configuration shared by every federated training task.
type TaskSpec struct {
	IterativeProcessBuilder IterativeProcessBuilder

	ClientsPerRound          int    `json:"clients_per_round"`
	ClientEpochsPerRound     int    `json:"client_epochs_per_round"`
	ClientBatchSize          int    `json:"client_batch_size"`
	ClientDatasetsRandomSeed uint32 `json:"client_datasets_random_seed"`
}

// Validate implements the check.Validatable interface.
func (s TaskSpec) Validate() []error {
	return []error{
		check.GreaterThan(s.ClientsPerRound, 0, "clients_per_round"),
		check.GreaterThan(s.ClientEpochsPerRound, 0, "client_epochs_per_round"),
		check.GreaterThan(s.ClientBatchSize, 0, "client_batch_size"),
	}
}

// RunnerSpec bundles everything needed to run a configured federated task.
type RunnerSpec struct {
	Process *fedavg.Process

	// ClientDatasetsFn samples the cohort for a round.
	ClientDatasetsFn func(round int) ([]fedavg.ClientDataset, error)
	// ValidationFn evaluates the global model between rounds.
	ValidationFn func(state fedavg.ServerState, round int) (metrics.Report, error)
	// TestFn evaluates the global model at the end of training.
	TestFn func(state fedavg.ServerState) (metrics.Report, error)
}
