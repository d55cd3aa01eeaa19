package tasks

import (
	"github.com/AbdulmoneamAli/federated/pkg/dataset"
	"github.com/AbdulmoneamAli/federated/pkg/model"
	"github.com/AbdulmoneamAli/federated/pkg/nprand"
)

const cifar100ShuffleBuffer = 100

// ConfigureCIFAR100 configures training for the CIFAR-100 image classification task.
func ConfigureCIFAR100(spec TaskSpec, cfg dataset.CIFAR100Config) (*RunnerSpec, error) {
	train, test, err := dataset.LoadCIFAR100(cfg)
	if err != nil {
		return nil, err
	}
	testCentral, err := dataset.Centralized(test)
	if err != nil {
		return nil, err
	}

	dim := cfg.FeatureDim
	if dim <= 0 {
		dim = dataset.CIFAR100FeatureDim
	}
	initSeed := cfg.Seed + 7919
	builder := func() model.Model {
		return model.NewSoftmax(dim, dataset.CIFAR100Classes, nprand.New(initSeed))
	}
	return newRunner(spec, builder, preprocessFor(spec, cifar100ShuffleBuffer), train, testCentral)
}
