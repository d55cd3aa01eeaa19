package tasks

import (
	"github.com/AbdulmoneamAli/federated/pkg/dataset"
	"github.com/AbdulmoneamAli/federated/pkg/model"
	"github.com/AbdulmoneamAli/federated/pkg/nprand"
)

const stackOverflowShuffleBuffer = 1000

// ConfigureStackOverflowNWP configures training for the StackOverflow next-word prediction task.
func ConfigureStackOverflowNWP(spec TaskSpec, cfg dataset.StackOverflowConfig) (*RunnerSpec, error) {
	cfg.TagPrediction = false
	train, test, err := dataset.LoadStackOverflow(cfg)
	if err != nil {
		return nil, err
	}
	testCentral, err := dataset.Centralized(test)
	if err != nil {
		return nil, err
	}

	vocab := cfg.VocabSize
	if vocab <= 0 {
		vocab = dataset.DefaultStackOverflowVocab
	}
	initSeed := cfg.Seed + 7919
	builder := func() model.Model {
		return model.NewSoftmax(vocab, vocab, nprand.New(initSeed))
	}
	return newRunner(spec, builder, preprocessFor(spec, stackOverflowShuffleBuffer), train, testCentral)
}

// ConfigureStackOverflowTP configures training for the StackOverflow tag prediction task.
func ConfigureStackOverflowTP(spec TaskSpec, cfg dataset.StackOverflowConfig) (*RunnerSpec, error) {
	cfg.TagPrediction = true
	train, test, err := dataset.LoadStackOverflow(cfg)
	if err != nil {
		return nil, err
	}
	testCentral, err := dataset.Centralized(test)
	if err != nil {
		return nil, err
	}

	vocab := cfg.VocabSize
	if vocab <= 0 {
		vocab = dataset.DefaultStackOverflowVocab
	}
	tags := cfg.TagVocabSize
	if tags <= 0 {
		tags = dataset.DefaultStackOverflowTagVocab
	}
	initSeed := cfg.Seed + 7919
	builder := func() model.Model {
		return model.NewTagLogistic(vocab, tags, nprand.New(initSeed))
	}
	return newRunner(spec, builder, preprocessFor(spec, stackOverflowShuffleBuffer), train, testCentral)
}
