package dataset

import (
	"github.com/AbdulmoneamAli/federated/pkg/mmath"
)

// CIFAR-100 dataset constants. The federated split assigns 100 examples to each of 500 train
// clients.
const (
	CIFAR100FeatureDim = 32 * 32 * 3
	CIFAR100Classes    = 100

	cifar100TrainClients = 500
	cifar100TestClients  = 100
)

// CIFAR100Config configures the synthetic federated CIFAR-100 stand-in.
type CIFAR100Config struct {
	NumClients        int    `json:"num_clients"`
	ExamplesPerClient int    `json:"examples_per_client"`
	FeatureDim        int    `json:"feature_dim"`
	Seed              uint32 `json:"seed"`
}

// LoadCIFAR100 returns the federated train split and the held-out test split.
func LoadCIFAR100(cfg CIFAR100Config) (train, test ClientData, err error) {
	if cfg.NumClients <= 0 {
		cfg.NumClients = cifar100TrainClients
	}
	if cfg.ExamplesPerClient <= 0 {
		cfg.ExamplesPerClient = 100
	}
	if cfg.FeatureDim <= 0 {
		cfg.FeatureDim = CIFAR100FeatureDim
	}

	gen := syntheticClassification{
		prefix:            "cifar100",
		numClients:        cfg.NumClients,
		examplesPerClient: cfg.ExamplesPerClient,
		numClasses:        CIFAR100Classes,
		featureDim:        cfg.FeatureDim,
		classesPerClient:  10,
		noise:             0.5,
		seed:              cfg.Seed,
	}
	train = gen.generate()
	gen.prefix = "cifar100_test"
	gen.numClients = mmath.Max(1, mmath.Min(cifar100TestClients, cfg.NumClients/5))
	gen.seed = cfg.Seed + 1
	test = gen.generate()
	return train, test, nil
}
