package tasks

import (
	"github.com/pkg/errors"

	"github.com/AbdulmoneamAli/federated/pkg/dataset"
	"github.com/AbdulmoneamAli/federated/pkg/model"
	"github.com/AbdulmoneamAli/federated/pkg/nprand"
)

// EMNISTModels lists the valid model names for the character recognition task.
var EMNISTModels = []string{"cnn", "2nn", "1m_cnn"}

// emnistShuffleBuffer is the largest client dataset size in federated EMNIST, used as the
// default shuffle buffer so every client's data is fully shuffled.
const emnistShuffleBuffer = 418

// emnistAEBottleneck is the bottleneck width of the autoencoding task.
const emnistAEBottleneck = 30

// ConfigureEMNIST configures training for the EMNIST character recognition task. The model name
// selects the architecture: "cnn" and "1m_cnn" map to single-hidden-layer networks of small and
// roughly-one-million-parameter capacity, "2nn" to the densely connected two-hidden-layer model.
func ConfigureEMNIST(spec TaskSpec, modelName string, cfg dataset.EMNISTConfig) (*RunnerSpec, error) {
	var hidden []int
	switch modelName {
	case "cnn", "":
		hidden = []int{128}
	case "2nn":
		hidden = []int{200, 200}
	case "1m_cnn":
		hidden = []int{1024}
	default:
		return nil, errors.Errorf("cannot handle model %q, must be one of %v",
			modelName, EMNISTModels)
	}

	train, test, err := dataset.LoadEMNIST(cfg)
	if err != nil {
		return nil, err
	}
	testCentral, err := dataset.Centralized(test)
	if err != nil {
		return nil, err
	}

	numClasses := cfg.NumClasses()
	dim := dataset.EMNISTFeatureDim
	initSeed := cfg.Seed + 7919
	builder := func() model.Model {
		return model.NewMLP(dim, hidden, numClasses, nprand.New(initSeed))
	}
	return newRunner(spec, builder, preprocessFor(spec, emnistShuffleBuffer), train, testCentral)
}

// ConfigureEMNISTAutoencoder configures training for the EMNIST autoencoding task.
func ConfigureEMNISTAutoencoder(spec TaskSpec, cfg dataset.EMNISTConfig) (*RunnerSpec, error) {
	train, test, err := dataset.LoadEMNIST(cfg)
	if err != nil {
		return nil, err
	}
	testCentral, err := dataset.Centralized(test)
	if err != nil {
		return nil, err
	}

	initSeed := cfg.Seed + 7919
	builder := func() model.Model {
		return model.NewAutoencoder(dataset.EMNISTFeatureDim, emnistAEBottleneck,
			nprand.New(initSeed))
	}
	return newRunner(spec, builder, preprocessFor(spec, emnistShuffleBuffer), train, testCentral)
}
