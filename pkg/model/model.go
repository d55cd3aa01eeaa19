// Package model defines the trainable models tasks plug into the federated averaging core. Go has
// no autodiff stack to lean on, so every model here computes exact gradients in closed form; the
// architectures are deliberately small stand-ins that preserve the optimization semantics the
// harness studies.
package model

import (
	"math"

	"github.com/AbdulmoneamAli/federated/pkg/dataset"
	"github.com/AbdulmoneamAli/federated/pkg/metrics"
	"github.com/AbdulmoneamAli/federated/pkg/nprand"
	"github.com/AbdulmoneamAli/federated/pkg/tensor"
)

// Model is a differentiable model over flat feature vectors.
type Model interface {
	// Specs describes the trainable variables.
	Specs() []tensor.Spec
	// Weights returns the live trainable state. Mutating it mutates the model.
	Weights() tensor.Weights
	// SetWeights copies w into the model.
	SetWeights(w tensor.Weights)
	// Grad returns the mean gradient over the batch and the mean loss.
	Grad(batch dataset.Batch) (tensor.Weights, float64)
	// Eval evaluates the model over a dataset and returns task metrics.
	Eval(ds dataset.Dataset) metrics.Report
}

// Builder constructs a fresh model instance. Client updates run concurrently, so each worker
// builds its own instance and loads the global weights into it.
type Builder func() Model

const initStddev = 0.05

func initVector(n int, rng *nprand.State) tensor.Vector {
	v := tensor.Zeros(n)
	if rng == nil {
		return v
	}
	for i := range v {
		v[i] = initStddev * rng.Gaussian()
	}
	return v
}

// softmaxInPlace overwrites logits with softmax probabilities, shifted for stability.
func softmaxInPlace(logits []float64) {
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		if l > maxLogit {
			maxLogit = l
		}
	}
	sum := 0.0
	for i, l := range logits {
		logits[i] = math.Exp(l - maxLogit)
		sum += logits[i]
	}
	for i := range logits {
		logits[i] /= sum
	}
}

func nll(p float64) float64 {
	const floor = 1e-12
	if p < floor {
		p = floor
	}
	return -math.Log(p)
}
