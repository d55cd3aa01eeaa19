// Package trainer runs a configured federated task to completion: round loop, periodic
// evaluation, CSV metrics, and checkpoint/resume.
package trainer

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/AbdulmoneamAli/federated/internal/fedavg"
	"github.com/AbdulmoneamAli/federated/internal/tasks"
	"github.com/AbdulmoneamAli/federated/internal/telemetry"
	"github.com/AbdulmoneamAli/federated/pkg/check"
)

// LoopConfig configures a training run.
type LoopConfig struct {
	TotalRounds         int    `json:"total_rounds"`
	RoundsPerEval       int    `json:"rounds_per_eval"`
	RoundsPerCheckpoint int    `json:"rounds_per_checkpoint"`
	CheckpointsToKeep   int    `json:"checkpoints_to_keep"`
	OutputDir           string `json:"output_dir"`

	// Clock defaults to the real clock; tests inject a fake one.
	Clock clockwork.Clock `json:"-"`
	// Telemetry is optional.
	Telemetry *telemetry.Reporter `json:"-"`
}

// Validate implements the check.Validatable interface.
func (c LoopConfig) Validate() []error {
	return []error{
		check.GreaterThan(c.TotalRounds, 0, "total_rounds"),
		check.GreaterThan(c.RoundsPerEval, 0, "rounds_per_eval"),
		check.GreaterThan(c.RoundsPerCheckpoint, 0, "rounds_per_checkpoint"),
		check.GreaterThan(c.CheckpointsToKeep, 0, "checkpoints_to_keep"),
	}
}

// Run drives the federated task to TotalRounds, resuming from the latest checkpoint in the
// output directory if one exists. It returns the final server state; on context cancellation it
// returns the state as of the last completed round along with the context error.
func Run(ctx context.Context, runner *tasks.RunnerSpec, cfg LoopConfig) (fedavg.ServerState, error) {
	if err := check.Validate(cfg); err != nil {
		return fedavg.ServerState{}, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return fedavg.ServerState{}, errors.Wrap(err, "creating output dir")
		}
	}

	runID := uuid.New().String()
	state := runner.Process.InitialState()
	ckptDir := filepath.Join(cfg.OutputDir, "checkpoints")
	if cfg.OutputDir != "" {
		if path, ok, err := LatestCheckpoint(ckptDir); err != nil {
			return state, err
		} else if ok {
			ck, err := LoadCheckpoint(path)
			if err != nil {
				return state, err
			}
			state = ck.State
			runID = ck.RunID
			log.WithFields(log.Fields{
				"round": state.Round, "path": path,
			}).Info("resuming from checkpoint")
		}
	}

	var manager *CSVMetricsManager
	if cfg.OutputDir != "" {
		var err error
		manager, err = NewCSVMetricsManager(filepath.Join(cfg.OutputDir, "metrics.csv"))
		if err != nil {
			return state, err
		}
		if err := manager.ClearRoundsAfter(state.Round); err != nil {
			return state, err
		}
	}

	log.WithFields(log.Fields{
		"run_id": runID,
		"rounds": cfg.TotalRounds,
	}).Info("starting federated training")

	for state.Round < cfg.TotalRounds {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		cohort, err := runner.ClientDatasetsFn(state.Round)
		if err != nil {
			return state, errors.Wrapf(err, "sampling cohort for round %d", state.Round)
		}

		start := clock.Now()
		next, roundMetrics, err := runner.Process.Next(ctx, state, cohort)
		if err != nil {
			return state, errors.Wrapf(err, "round %d", state.Round)
		}
		elapsed := clock.Since(start)
		state = next

		cfg.Telemetry.ObserveRound(roundMetrics, elapsed)
		log.WithFields(log.Fields{
			"round":    roundMetrics.Round,
			"clients":  roundMetrics.NumClients,
			"failed":   roundMetrics.FailedClients,
			"examples": roundMetrics.NumExamples,
			"loss":     roundMetrics.Loss,
			"took":     elapsed,
		}).Info("round complete")

		row := map[string]float64{
			"train/loss":         roundMetrics.Loss,
			"train/num_clients":  float64(roundMetrics.NumClients),
			"train/num_examples": float64(roundMetrics.NumExamples),
			"train/client_lr":    roundMetrics.ClientLR,
			"train/server_lr":    roundMetrics.ServerLR,
			"train/seconds":      elapsed.Seconds(),
		}

		if state.Round%cfg.RoundsPerEval == 0 || state.Round == cfg.TotalRounds {
			report, err := runner.ValidationFn(state, state.Round)
			if err != nil {
				return state, errors.Wrap(err, "validation")
			}
			cfg.Telemetry.ObserveEval(report)
			log.WithField("round", state.Round).WithFields(reportFields(report)).Info("validation")
			for name, value := range report {
				row["eval/"+name] = value
			}
		}

		if manager != nil {
			if err := manager.Save(roundMetrics.Round, row); err != nil {
				return state, err
			}
		}

		if cfg.OutputDir != "" &&
			(state.Round%cfg.RoundsPerCheckpoint == 0 || state.Round == cfg.TotalRounds) {
			if _, err := SaveCheckpoint(ckptDir, Checkpoint{RunID: runID, State: state}); err != nil {
				return state, err
			}
			if err := PruneCheckpoints(ckptDir, cfg.CheckpointsToKeep); err != nil {
				return state, err
			}
		}
	}

	report, err := runner.TestFn(state)
	if err != nil {
		return state, errors.Wrap(err, "final test evaluation")
	}
	log.WithFields(reportFields(report)).Info("final test metrics")
	if manager != nil {
		row := map[string]float64{}
		for name, value := range report {
			row["test/"+name] = value
		}
		if err := manager.Save(state.Round, row); err != nil {
			return state, err
		}
	}
	return state, nil
}

func reportFields(report map[string]float64) log.Fields {
	fields := log.Fields{}
	for k, v := range report {
		fields[k] = v
	}
	return fields
}
