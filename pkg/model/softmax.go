package model

import (
	"github.com/AbdulmoneamAli/federated/pkg/dataset"
	"github.com/AbdulmoneamAli/federated/pkg/metrics"
	"github.com/AbdulmoneamAli/federated/pkg/nprand"
	"github.com/AbdulmoneamAli/federated/pkg/tensor"
)

// Softmax is a linear multinomial classifier: logit_c = b_c + W_c . x. It serves the image
// classification and next-word tasks; with bag-of-words features it is the multinomial logistic
// language model.
type Softmax struct {
	dim        int
	numClasses int

	// kernel is class-major: kernel[c*dim+d].
	kernel tensor.Vector
	bias   tensor.Vector
}

// NewSoftmax builds a softmax classifier with small gaussian initial weights drawn from rng.
func NewSoftmax(dim, numClasses int, rng *nprand.State) *Softmax {
	return &Softmax{
		dim:        dim,
		numClasses: numClasses,
		kernel:     initVector(dim*numClasses, rng),
		bias:       tensor.Zeros(numClasses),
	}
}

// Specs implements Model.
func (m *Softmax) Specs() []tensor.Spec {
	return []tensor.Spec{
		{Name: "kernel", Shape: []int{m.numClasses, m.dim}},
		{Name: "bias", Shape: []int{m.numClasses}},
	}
}

// Weights implements Model.
func (m *Softmax) Weights() tensor.Weights {
	return tensor.Weights{m.kernel, m.bias}
}

// SetWeights implements Model.
func (m *Softmax) SetWeights(w tensor.Weights) {
	copy(m.kernel, w[0])
	copy(m.bias, w[1])
}

func (m *Softmax) probs(features []float64) []float64 {
	logits := make([]float64, m.numClasses)
	for c := 0; c < m.numClasses; c++ {
		s := m.bias[c]
		row := m.kernel[c*m.dim : (c+1)*m.dim]
		for d, x := range features {
			s += row[d] * x
		}
		logits[c] = s
	}
	softmaxInPlace(logits)
	return logits
}

// Grad implements Model.
func (m *Softmax) Grad(batch dataset.Batch) (tensor.Weights, float64) {
	gradKernel := tensor.Zeros(len(m.kernel))
	gradBias := tensor.Zeros(len(m.bias))
	loss := 0.0
	scale := 1.0 / float64(len(batch))
	for _, ex := range batch {
		p := m.probs(ex.Features)
		loss += nll(p[ex.Label]) * scale
		for c := 0; c < m.numClasses; c++ {
			err := p[c]
			if c == ex.Label {
				err -= 1
			}
			err *= scale
			gradBias[c] += err
			row := gradKernel[c*m.dim : (c+1)*m.dim]
			for d, x := range ex.Features {
				row[d] += err * x
			}
		}
	}
	return tensor.Weights{gradKernel, gradBias}, loss
}

// Eval implements Model.
func (m *Softmax) Eval(ds dataset.Dataset) metrics.Report {
	var loss metrics.Mean
	var acc metrics.Accuracy
	for _, ex := range ds {
		p := m.probs(ex.Features)
		loss.Update(nll(p[ex.Label]), 1)
		acc.Update(p, ex.Label)
	}
	return metrics.Report{"loss": loss.Result(), "accuracy": acc.Result()}
}
