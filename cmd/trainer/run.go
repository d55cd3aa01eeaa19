package main

import (
	"encoding/json"
	"os"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AbdulmoneamAli/federated/internal/trainer"
	"github.com/AbdulmoneamAli/federated/pkg/check"
)

var v *viper.Viper

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run a federated training experiment",
		Args:  cobra.NoArgs,
		RunE:  runExperiment,
	}

	v = viper.New()
	v.SetTypeByDefaultValue(true)

	defaults := trainer.DefaultOptions()

	flags := cmd.Flags()
	flags.StringP("config-file", "c", "", "path to a YAML experiment config")
	flags.String("task", defaults.Task.Task, "training task to run")
	flags.String("model", "", "model variant for the selected task")

	flags.Int("total-rounds", defaults.Loop.TotalRounds, "number of federated rounds")
	flags.Int("rounds-per-eval", defaults.Loop.RoundsPerEval, "validation cadence in rounds")
	flags.Int("rounds-per-checkpoint", defaults.Loop.RoundsPerCheckpoint, "checkpoint cadence in rounds")
	flags.Int("checkpoints-to-keep", defaults.Loop.CheckpointsToKeep, "checkpoints retained on disk")
	flags.String("output-dir", defaults.Loop.OutputDir, "directory for checkpoints and metrics")

	flags.Int("clients-per-round", defaults.ClientsPerRound, "clients sampled each round")
	flags.Int("client-epochs-per-round", defaults.ClientEpochsPerRound, "local epochs per client")
	flags.Int("client-batch-size", defaults.ClientBatchSize, "client minibatch size")
	flags.Uint32("client-datasets-random-seed", 0, "seed for per-round client sampling")

	flags.String("client-optimizer", defaults.ClientOptimizer.Optimizer, "client optimizer")
	flags.Float64("client-lr", defaults.ClientOptimizer.LearningRate, "client learning rate")
	flags.String("server-optimizer", defaults.ServerOptimizer.Optimizer, "server optimizer")
	flags.Float64("server-lr", defaults.ServerOptimizer.LearningRate, "server learning rate")

	flags.Float64("l2-norm-clip", 0, "L2 clip applied to client deltas (0 disables)")
	flags.Float64("epsilon", 0, "differential privacy epsilon (0 disables DP)")
	flags.String("client-state-aggregation", "", "aggregate client optimizer state: mean, sum, or zero")

	flags.Bool("large-cohort", false, "use the large-cohort simulation family")
	flags.Int("max-examples-per-client", 0, "cap on examples per client per round (large-cohort)")

	flags.Int("parallelism", defaults.Parallelism, "concurrent client updates")
	flags.Uint32("seed", defaults.Seed, "base random seed")
	flags.String("telemetry-addr", "", "address to serve prometheus metrics on")

	for key, name := range map[string]string{
		"config_file":                 "config-file",
		"task.task":                   "task",
		"task.model":                  "model",
		"loop.total_rounds":           "total-rounds",
		"loop.rounds_per_eval":        "rounds-per-eval",
		"loop.rounds_per_checkpoint":  "rounds-per-checkpoint",
		"loop.checkpoints_to_keep":    "checkpoints-to-keep",
		"loop.output_dir":             "output-dir",
		"clients_per_round":           "clients-per-round",
		"client_epochs_per_round":     "client-epochs-per-round",
		"client_batch_size":           "client-batch-size",
		"client_datasets_random_seed": "client-datasets-random-seed",
		"client_optimizer.optimizer":  "client-optimizer",
		"client_optimizer.learning_rate": "client-lr",
		"server_optimizer.optimizer":     "server-optimizer",
		"server_optimizer.learning_rate": "server-lr",
		"aggregation.l2_norm_clip":       "l2-norm-clip",
		"aggregation.epsilon":            "epsilon",
		"client_state_aggregation":       "client-state-aggregation",
		"large_cohort":                   "large-cohort",
		"max_examples_per_client":        "max-examples-per-client",
		"parallelism":                    "parallelism",
		"seed":                           "seed",
		"telemetry_addr":                 "telemetry-addr",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	return cmd
}

func runExperiment(cmd *cobra.Command, args []string) error {
	opts, err := mergeOptions()
	if err != nil {
		return err
	}
	opts.Resolve()
	if err := check.Validate(opts); err != nil {
		return errors.Wrap(err, "invalid experiment config")
	}
	return trainer.RunExperiment(cmd.Context(), version, *opts)
}

// mergeOptions layers the optional config file under flag and environment overrides. Explicitly
// set flags win over the file, and the file wins over flag defaults.
func mergeOptions() (*trainer.Options, error) {
	configMap, err := readConfigFile(v.GetString("config_file"))
	if err != nil {
		return nil, err
	}
	if configMap != nil {
		if err := v.MergeConfigMap(configMap); err != nil {
			return nil, errors.Wrap(err, "cannot merge config file")
		}
	}

	opts := trainer.DefaultOptions()
	bs, err := json.Marshal(v.AllSettings())
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal merged settings")
	}
	if err := yaml.Unmarshal(bs, opts, yaml.DisallowUnknownFields); err != nil {
		return nil, errors.Wrap(err, "cannot parse experiment config")
	}
	return opts, nil
}

func readConfigFile(path string) (map[string]interface{}, error) {
	if path == "" {
		return nil, nil
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %s", path)
	}
	var configMap map[string]interface{}
	if err := yaml.Unmarshal(bs, &configMap); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config file %s", path)
	}
	return configMap, nil
}
