package model

import (
	"fmt"

	"github.com/AbdulmoneamAli/federated/pkg/dataset"
	"github.com/AbdulmoneamAli/federated/pkg/metrics"
	"github.com/AbdulmoneamAli/federated/pkg/nprand"
	"github.com/AbdulmoneamAli/federated/pkg/tensor"
)

// MLP is a fully connected classifier with ReLU hidden layers and a softmax output. The EMNIST
// "2nn" model is an MLP with two hidden layers; the conv architectures are approximated by MLPs
// of comparable capacity since the harness carries no convolution kernels.
type MLP struct {
	// dims holds layer widths from input to output.
	dims []int

	// kernels[l] is row-major (out x in) for layer l; biases[l] has length out.
	kernels []tensor.Vector
	biases  []tensor.Vector
}

// NewMLP builds an MLP with the given input dimension, hidden layer widths, and class count.
func NewMLP(dim int, hidden []int, numClasses int, rng *nprand.State) *MLP {
	dims := append([]int{dim}, hidden...)
	dims = append(dims, numClasses)
	m := &MLP{dims: dims}
	for l := 0; l+1 < len(dims); l++ {
		m.kernels = append(m.kernels, initVector(dims[l+1]*dims[l], rng))
		m.biases = append(m.biases, tensor.Zeros(dims[l+1]))
	}
	return m
}

// Specs implements Model.
func (m *MLP) Specs() []tensor.Spec {
	var specs []tensor.Spec
	for l := 0; l+1 < len(m.dims); l++ {
		specs = append(specs,
			tensor.Spec{Name: fmt.Sprintf("dense_%d/kernel", l), Shape: []int{m.dims[l+1], m.dims[l]}},
			tensor.Spec{Name: fmt.Sprintf("dense_%d/bias", l), Shape: []int{m.dims[l+1]}},
		)
	}
	return specs
}

// Weights implements Model.
func (m *MLP) Weights() tensor.Weights {
	var w tensor.Weights
	for l := range m.kernels {
		w = append(w, m.kernels[l], m.biases[l])
	}
	return w
}

// SetWeights implements Model.
func (m *MLP) SetWeights(w tensor.Weights) {
	for l := range m.kernels {
		copy(m.kernels[l], w[2*l])
		copy(m.biases[l], w[2*l+1])
	}
}

// forward returns the pre-activation and activation of every layer. activations[0] is the input;
// the final activation is the softmax output.
func (m *MLP) forward(features []float64) (pre, act [][]float64) {
	act = append(act, features)
	for l := range m.kernels {
		in := act[len(act)-1]
		out := make([]float64, m.dims[l+1])
		for o := range out {
			s := m.biases[l][o]
			row := m.kernels[l][o*m.dims[l] : (o+1)*m.dims[l]]
			for i, x := range in {
				s += row[i] * x
			}
			out[o] = s
		}
		pre = append(pre, out)
		a := make([]float64, len(out))
		copy(a, out)
		if l == len(m.kernels)-1 {
			softmaxInPlace(a)
		} else {
			for i := range a {
				if a[i] < 0 {
					a[i] = 0
				}
			}
		}
		act = append(act, a)
	}
	return pre, act
}

// Grad implements Model.
func (m *MLP) Grad(batch dataset.Batch) (tensor.Weights, float64) {
	grad := tensor.ZerosLike(m.Weights())
	loss := 0.0
	scale := 1.0 / float64(len(batch))
	numLayers := len(m.kernels)

	for _, ex := range batch {
		pre, act := m.forward(ex.Features)
		p := act[numLayers]
		loss += nll(p[ex.Label]) * scale

		// delta starts as the softmax cross-entropy gradient and is propagated backwards.
		delta := make([]float64, len(p))
		copy(delta, p)
		delta[ex.Label] -= 1

		for l := numLayers - 1; l >= 0; l-- {
			in := act[l]
			gradKernel := grad[2*l]
			gradBias := grad[2*l+1]
			for o, d := range delta {
				d *= scale
				gradBias[o] += d
				row := gradKernel[o*m.dims[l] : (o+1)*m.dims[l]]
				for i, x := range in {
					row[i] += d * x
				}
			}
			if l == 0 {
				break
			}
			next := make([]float64, m.dims[l])
			for i := range next {
				s := 0.0
				for o, d := range delta {
					s += m.kernels[l][o*m.dims[l]+i] * d
				}
				if pre[l-1][i] <= 0 {
					s = 0
				}
				next[i] = s
			}
			delta = next
		}
	}
	return grad, loss
}

// Eval implements Model.
func (m *MLP) Eval(ds dataset.Dataset) metrics.Report {
	var loss metrics.Mean
	var acc metrics.Accuracy
	for _, ex := range ds {
		_, act := m.forward(ex.Features)
		p := act[len(act)-1]
		loss.Update(nll(p[ex.Label]), 1)
		acc.Update(p, ex.Label)
	}
	return metrics.Report{"loss": loss.Result(), "accuracy": acc.Result()}
}
