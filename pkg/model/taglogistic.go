package model

import (
	"math"

	"github.com/AbdulmoneamAli/federated/pkg/dataset"
	"github.com/AbdulmoneamAli/federated/pkg/metrics"
	"github.com/AbdulmoneamAli/federated/pkg/nprand"
	"github.com/AbdulmoneamAli/federated/pkg/tensor"
)

// TagLogistic is a one-vs-rest logistic regression over a tag vocabulary, the StackOverflow tag
// prediction model. Loss is the mean binary cross entropy across tags.
type TagLogistic struct {
	dim     int
	numTags int

	// kernel is tag-major: kernel[t*dim+d].
	kernel tensor.Vector
	bias   tensor.Vector

	// RecallK is the K of the recall@K evaluation metric.
	RecallK int
}

// NewTagLogistic builds a tag predictor with small gaussian initial weights drawn from rng.
func NewTagLogistic(dim, numTags int, rng *nprand.State) *TagLogistic {
	return &TagLogistic{
		dim:     dim,
		numTags: numTags,
		kernel:  initVector(dim*numTags, rng),
		bias:    tensor.Zeros(numTags),
		RecallK: 5,
	}
}

// Specs implements Model.
func (m *TagLogistic) Specs() []tensor.Spec {
	return []tensor.Spec{
		{Name: "kernel", Shape: []int{m.numTags, m.dim}},
		{Name: "bias", Shape: []int{m.numTags}},
	}
}

// Weights implements Model.
func (m *TagLogistic) Weights() tensor.Weights {
	return tensor.Weights{m.kernel, m.bias}
}

// SetWeights implements Model.
func (m *TagLogistic) SetWeights(w tensor.Weights) {
	copy(m.kernel, w[0])
	copy(m.bias, w[1])
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func (m *TagLogistic) scores(features []float64) []float64 {
	out := make([]float64, m.numTags)
	for t := 0; t < m.numTags; t++ {
		s := m.bias[t]
		row := m.kernel[t*m.dim : (t+1)*m.dim]
		for d, x := range features {
			s += row[d] * x
		}
		out[t] = sigmoid(s)
	}
	return out
}

func bce(p float64, positive bool) float64 {
	const floor = 1e-12
	if positive {
		return nll(p)
	}
	if p > 1-floor {
		p = 1 - floor
	}
	return -math.Log(1 - p)
}

// Grad implements Model.
func (m *TagLogistic) Grad(batch dataset.Batch) (tensor.Weights, float64) {
	gradKernel := tensor.Zeros(len(m.kernel))
	gradBias := tensor.Zeros(len(m.bias))
	loss := 0.0
	scale := 1.0 / float64(len(batch))

	for _, ex := range batch {
		positive := make(map[int]bool, len(ex.Labels))
		for _, t := range ex.Labels {
			positive[t] = true
		}
		p := m.scores(ex.Features)
		exLoss := 0.0
		for t := 0; t < m.numTags; t++ {
			exLoss += bce(p[t], positive[t])
			err := p[t]
			if positive[t] {
				err -= 1
			}
			err *= scale / float64(m.numTags)
			gradBias[t] += err
			row := gradKernel[t*m.dim : (t+1)*m.dim]
			for d, x := range ex.Features {
				row[d] += err * x
			}
		}
		loss += exLoss / float64(m.numTags) * scale
	}
	return tensor.Weights{gradKernel, gradBias}, loss
}

// Eval implements Model.
func (m *TagLogistic) Eval(ds dataset.Dataset) metrics.Report {
	var loss metrics.Mean
	recall := metrics.RecallAtK{K: m.RecallK}
	for _, ex := range ds {
		p := m.scores(ex.Features)
		exLoss := 0.0
		positive := make(map[int]bool, len(ex.Labels))
		for _, t := range ex.Labels {
			positive[t] = true
		}
		for t := 0; t < m.numTags; t++ {
			exLoss += bce(p[t], positive[t])
		}
		loss.Update(exLoss/float64(m.numTags), 1)
		recall.Update(p, ex.Labels)
	}
	return metrics.Report{"loss": loss.Result(), "recall_at_5": recall.Result()}
}
