package tasks

import (
	"github.com/pkg/errors"

	"github.com/AbdulmoneamAli/federated/internal/fedavg"
	"github.com/AbdulmoneamAli/federated/pkg/check"
	"github.com/AbdulmoneamAli/federated/pkg/dataset"
	"github.com/AbdulmoneamAli/federated/pkg/metrics"
	"github.com/AbdulmoneamAli/federated/pkg/model"
	"github.com/AbdulmoneamAli/federated/pkg/nprand"
)

// Task names.
const (
	EMNISTCharRecognition = "emnist_cr"
	EMNISTAutoencoder     = "emnist_ae"
	CIFAR100              = "cifar100"
	Shakespeare           = "shakespeare"
	StackOverflowNWP      = "stackoverflow_nwp"
	StackOverflowTP       = "stackoverflow_tp"
)

// Names lists the valid task names.
var Names = []string{
	EMNISTCharRecognition, EMNISTAutoencoder, CIFAR100,
	Shakespeare, StackOverflowNWP, StackOverflowTP,
}

// Config selects a task and carries the per-dataset knobs the task constructors need.
type Config struct {
	Task  string `json:"task"`
	Model string `json:"model"`

	EMNIST        dataset.EMNISTConfig        `json:"emnist"`
	CIFAR100      dataset.CIFAR100Config      `json:"cifar100"`
	Shakespeare   dataset.ShakespeareConfig   `json:"shakespeare"`
	StackOverflow dataset.StackOverflowConfig `json:"stackoverflow"`
}

// Validate implements the check.Validatable interface.
func (c Config) Validate() []error {
	return []error{check.In(c.Task, Names, "task")}
}

// ConfigureTraining builds the RunnerSpec for the configured task.
func ConfigureTraining(spec TaskSpec, cfg Config) (*RunnerSpec, error) {
	if err := check.Validate(spec); err != nil {
		return nil, err
	}
	switch cfg.Task {
	case EMNISTCharRecognition:
		return ConfigureEMNIST(spec, cfg.Model, cfg.EMNIST)
	case EMNISTAutoencoder:
		return ConfigureEMNISTAutoencoder(spec, cfg.EMNIST)
	case CIFAR100:
		return ConfigureCIFAR100(spec, cfg.CIFAR100)
	case Shakespeare:
		return ConfigureShakespeare(spec, cfg.Shakespeare)
	case StackOverflowNWP:
		return ConfigureStackOverflowNWP(spec, cfg.StackOverflow)
	case StackOverflowTP:
		return ConfigureStackOverflowTP(spec, cfg.StackOverflow)
	default:
		return nil, errors.Errorf("unknown task %q, must be one of %v", cfg.Task, Names)
	}
}

// clientDatasetCacheSize bounds the per-task LRU of loaded client datasets.
const clientDatasetCacheSize = 256

// newRunner does the wiring shared by every task: build the process, set up seeded
// uniform-without-replacement cohort sampling, and point validation and test at the centralized
// held-out split.
func newRunner(spec TaskSpec, builder model.Builder, pre dataset.Preprocess,
	train dataset.ClientData, test dataset.Dataset,
) (*RunnerSpec, error) {
	if err := check.Validate(pre); err != nil {
		return nil, err
	}
	process, err := spec.IterativeProcessBuilder(builder, pre)
	if err != nil {
		return nil, errors.Wrap(err, "building iterative process")
	}

	cached, err := dataset.NewCached(train, clientDatasetCacheSize)
	if err != nil {
		return nil, err
	}
	ids := cached.ClientIDs()
	if len(ids) == 0 {
		return nil, errors.New("training split has no clients")
	}
	clientDatasetsFn := func(round int) ([]fedavg.ClientDataset, error) {
		size := spec.ClientsPerRound
		if size > len(ids) {
			size = len(ids)
		}
		// The cohort is a pure function of (seed, round) so a resumed run replays the same
		// sampling sequence as an unbroken one.
		sampleRNG := nprand.New(spec.ClientDatasetsRandomSeed + uint32(round))
		perm := sampleRNG.Perm(len(ids))[:size]
		cohort := make([]fedavg.ClientDataset, 0, size)
		for _, idx := range perm {
			ds, err := cached.ClientDataset(ids[idx])
			if err != nil {
				return nil, err
			}
			cohort = append(cohort, fedavg.ClientDataset{ID: ids[idx], Data: ds})
		}
		return cohort, nil
	}

	evalFn := func(state fedavg.ServerState) (metrics.Report, error) {
		m := builder()
		m.SetWeights(state.Weights)
		return m.Eval(test), nil
	}

	return &RunnerSpec{
		Process:          process,
		ClientDatasetsFn: clientDatasetsFn,
		ValidationFn: func(state fedavg.ServerState, round int) (metrics.Report, error) {
			return evalFn(state)
		},
		TestFn: evalFn,
	}, nil
}

// preprocessFor translates a TaskSpec's run shape into the client preprocessing pipeline, with a
// task-specific shuffle buffer.
func preprocessFor(spec TaskSpec, shuffleBuffer int) dataset.Preprocess {
	return dataset.Preprocess{
		NumEpochs:         spec.ClientEpochsPerRound,
		BatchSize:         spec.ClientBatchSize,
		ShuffleBufferSize: shuffleBuffer,
	}
}
