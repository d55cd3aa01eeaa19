package tasks

import (
	"github.com/AbdulmoneamAli/federated/pkg/dataset"
	"github.com/AbdulmoneamAli/federated/pkg/model"
	"github.com/AbdulmoneamAli/federated/pkg/nprand"
)

const shakespeareShuffleBuffer = 100

// ConfigureShakespeare configures training for the Shakespeare next-character prediction task.
func ConfigureShakespeare(spec TaskSpec, cfg dataset.ShakespeareConfig) (*RunnerSpec, error) {
	train, test, err := dataset.LoadShakespeare(cfg)
	if err != nil {
		return nil, err
	}
	testCentral, err := dataset.Centralized(test)
	if err != nil {
		return nil, err
	}

	initSeed := cfg.Seed + 7919
	builder := func() model.Model {
		return model.NewSoftmax(dataset.ShakespeareVocabSize, dataset.ShakespeareVocabSize,
			nprand.New(initSeed))
	}
	return newRunner(spec, builder, preprocessFor(spec, shakespeareShuffleBuffer), train, testCentral)
}
