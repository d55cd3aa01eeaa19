package trainer

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AbdulmoneamAli/federated/internal/aggregator"
	"github.com/AbdulmoneamAli/federated/internal/fedavg"
	"github.com/AbdulmoneamAli/federated/internal/largecohort"
	"github.com/AbdulmoneamAli/federated/internal/tasks"
	"github.com/AbdulmoneamAli/federated/internal/telemetry"
	"github.com/AbdulmoneamAli/federated/pkg/dataset"
	"github.com/AbdulmoneamAli/federated/pkg/logger"
	"github.com/AbdulmoneamAli/federated/pkg/model"
	"github.com/AbdulmoneamAli/federated/pkg/optimizer"
)

// Options is the full configuration of a training run, populated from flags, environment, and an
// optional YAML config file.
type Options struct {
	ConfigFile string        `json:"config_file"`
	Log        logger.Config `json:"log"`

	Task tasks.Config `json:"task"`

	ClientsPerRound          int    `json:"clients_per_round"`
	ClientEpochsPerRound     int    `json:"client_epochs_per_round"`
	ClientBatchSize          int    `json:"client_batch_size"`
	ClientDatasetsRandomSeed uint32 `json:"client_datasets_random_seed"`

	ClientOptimizer optimizer.Config `json:"client_optimizer"`
	ServerOptimizer optimizer.Config `json:"server_optimizer"`

	Aggregation aggregator.Config `json:"aggregation"`
	// ClientStateAggregation enables the client-optimizer process variant when set to one of
	// mean, sum, or zero.
	ClientStateAggregation string `json:"client_state_aggregation"`

	// LargeCohort switches to the large-cohort simulation family.
	LargeCohort          bool `json:"large_cohort"`
	MaxExamplesPerClient int  `json:"max_examples_per_client"`

	Loop LoopConfig `json:"loop"`

	Parallelism   int    `json:"parallelism"`
	Seed          uint32 `json:"seed"`
	TelemetryAddr string `json:"telemetry_addr"`
}

// DefaultOptions returns the default training configuration.
func DefaultOptions() *Options {
	return &Options{
		Log: *logger.DefaultConfig(),
		Task: tasks.Config{
			Task: tasks.EMNISTCharRecognition,
		},
		ClientsPerRound:      10,
		ClientEpochsPerRound: 1,
		ClientBatchSize:      20,
		ClientOptimizer:      optimizer.DefaultConfig(0.1),
		ServerOptimizer:      optimizer.DefaultConfig(1.0),
		Loop: LoopConfig{
			TotalRounds:         100,
			RoundsPerEval:       10,
			RoundsPerCheckpoint: 25,
			CheckpointsToKeep:   3,
			OutputDir:           "results",
		},
		Parallelism: 4,
		Seed:        42,
	}
}

// Resolve fills derived fields before validation.
func (o *Options) Resolve() {
	if o.Aggregation.ClientsPerRound == 0 {
		o.Aggregation.ClientsPerRound = o.ClientsPerRound
	}
	if o.Aggregation.Rounds == 0 {
		o.Aggregation.Rounds = o.Loop.TotalRounds
	}
	if o.Aggregation.Seed == 0 {
		o.Aggregation.Seed = o.Seed
	}
}

// RunExperiment wires the configured task, optimizers, and aggregation into a runner and drives
// it to completion.
func RunExperiment(ctx context.Context, version string, opts Options) error {
	log.WithField("version", version).Info("federated trainer starting")

	ipb := func(mb model.Builder, pre dataset.Preprocess) (*fedavg.Process, error) {
		agg, err := aggregator.New(opts.Aggregation)
		if err != nil {
			return nil, err
		}
		return fedavg.NewProcess(fedavg.Options{
			ModelBuilder:           mb,
			ClientOptimizer:        opts.ClientOptimizer,
			ServerOptimizer:        opts.ServerOptimizer,
			Preprocess:             pre,
			Aggregator:             agg,
			ClientStateAggregation: opts.ClientStateAggregation,
			Parallelism:            opts.Parallelism,
			Seed:                   opts.Seed,
		})
	}

	var runner *tasks.RunnerSpec
	var err error
	if opts.LargeCohort {
		runner, err = largecohort.ConfigureTraining(largecohort.SimulationSpec{
			IterativeProcessBuilder:  ipb,
			CohortSize:               opts.ClientsPerRound,
			MaxExamplesPerClient:     opts.MaxExamplesPerClient,
			ClientEpochsPerRound:     opts.ClientEpochsPerRound,
			ClientBatchSize:          opts.ClientBatchSize,
			ClientDatasetsRandomSeed: opts.ClientDatasetsRandomSeed,
		}, opts.Task)
	} else {
		runner, err = tasks.ConfigureTraining(tasks.TaskSpec{
			IterativeProcessBuilder:  ipb,
			ClientsPerRound:          opts.ClientsPerRound,
			ClientEpochsPerRound:     opts.ClientEpochsPerRound,
			ClientBatchSize:          opts.ClientBatchSize,
			ClientDatasetsRandomSeed: opts.ClientDatasetsRandomSeed,
		}, opts.Task)
	}
	if err != nil {
		return err
	}

	var reporter *telemetry.Reporter
	if opts.TelemetryAddr != "" {
		reporter = telemetry.New()
		reporter.Serve(opts.TelemetryAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := reporter.Close(shutdownCtx); err != nil {
				log.WithError(err).Warn("telemetry shutdown failed")
			}
		}()
	}

	cfg := opts.Loop
	cfg.Telemetry = reporter
	state, err := Run(ctx, runner, cfg)
	if err != nil {
		return err
	}
	log.WithField("round", state.Round).Info("training complete")
	return nil
}
