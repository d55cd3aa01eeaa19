package model

import (
	"math"

	"github.com/AbdulmoneamAli/federated/pkg/dataset"
	"github.com/AbdulmoneamAli/federated/pkg/metrics"
	"github.com/AbdulmoneamAli/federated/pkg/nprand"
	"github.com/AbdulmoneamAli/federated/pkg/tensor"
)

// Autoencoder reconstructs its input through a tanh bottleneck, trained with mean squared error.
// This is the EMNIST autoencoding task's model.
type Autoencoder struct {
	dim        int
	bottleneck int

	// encoder is (bottleneck x dim) row-major, decoder is (dim x bottleneck) row-major.
	encoder  tensor.Vector
	encoderB tensor.Vector
	decoder  tensor.Vector
	decoderB tensor.Vector
}

// NewAutoencoder builds an autoencoder with the given input dimension and bottleneck width.
func NewAutoencoder(dim, bottleneck int, rng *nprand.State) *Autoencoder {
	return &Autoencoder{
		dim:        dim,
		bottleneck: bottleneck,
		encoder:    initVector(bottleneck*dim, rng),
		encoderB:   tensor.Zeros(bottleneck),
		decoder:    initVector(dim*bottleneck, rng),
		decoderB:   tensor.Zeros(dim),
	}
}

// Specs implements Model.
func (m *Autoencoder) Specs() []tensor.Spec {
	return []tensor.Spec{
		{Name: "encoder/kernel", Shape: []int{m.bottleneck, m.dim}},
		{Name: "encoder/bias", Shape: []int{m.bottleneck}},
		{Name: "decoder/kernel", Shape: []int{m.dim, m.bottleneck}},
		{Name: "decoder/bias", Shape: []int{m.dim}},
	}
}

// Weights implements Model.
func (m *Autoencoder) Weights() tensor.Weights {
	return tensor.Weights{m.encoder, m.encoderB, m.decoder, m.decoderB}
}

// SetWeights implements Model.
func (m *Autoencoder) SetWeights(w tensor.Weights) {
	copy(m.encoder, w[0])
	copy(m.encoderB, w[1])
	copy(m.decoder, w[2])
	copy(m.decoderB, w[3])
}

// forward returns the hidden activation and the reconstruction.
func (m *Autoencoder) forward(x []float64) (hidden, recon []float64) {
	hidden = make([]float64, m.bottleneck)
	for h := range hidden {
		s := m.encoderB[h]
		row := m.encoder[h*m.dim : (h+1)*m.dim]
		for d, v := range x {
			s += row[d] * v
		}
		hidden[h] = math.Tanh(s)
	}
	recon = make([]float64, m.dim)
	for o := range recon {
		s := m.decoderB[o]
		row := m.decoder[o*m.bottleneck : (o+1)*m.bottleneck]
		for h, v := range hidden {
			s += row[h] * v
		}
		recon[o] = s
	}
	return hidden, recon
}

func (m *Autoencoder) mse(x, recon []float64) float64 {
	s := 0.0
	for d := range x {
		diff := recon[d] - x[d]
		s += diff * diff
	}
	return s / float64(m.dim)
}

// Grad implements Model.
func (m *Autoencoder) Grad(batch dataset.Batch) (tensor.Weights, float64) {
	grad := tensor.ZerosLike(m.Weights())
	gradEnc, gradEncB, gradDec, gradDecB := grad[0], grad[1], grad[2], grad[3]
	loss := 0.0
	scale := 1.0 / float64(len(batch))

	for _, ex := range batch {
		x := ex.Features
		hidden, recon := m.forward(x)
		loss += m.mse(x, recon) * scale

		// Output layer: d(mse)/d(recon_o) = 2 (recon_o - x_o) / dim.
		outErr := make([]float64, m.dim)
		for o := range outErr {
			outErr[o] = 2 * (recon[o] - x[o]) / float64(m.dim) * scale
			gradDecB[o] += outErr[o]
			row := gradDec[o*m.bottleneck : (o+1)*m.bottleneck]
			for h, v := range hidden {
				row[h] += outErr[o] * v
			}
		}

		// Hidden layer through tanh'.
		for h := 0; h < m.bottleneck; h++ {
			s := 0.0
			for o := 0; o < m.dim; o++ {
				s += m.decoder[o*m.bottleneck+h] * outErr[o]
			}
			s *= 1 - hidden[h]*hidden[h]
			gradEncB[h] += s
			row := gradEnc[h*m.dim : (h+1)*m.dim]
			for d, v := range x {
				row[d] += s * v
			}
		}
	}
	return grad, loss
}

// Eval implements Model.
func (m *Autoencoder) Eval(ds dataset.Dataset) metrics.Report {
	var loss metrics.Mean
	for _, ex := range ds {
		_, recon := m.forward(ex.Features)
		loss.Update(m.mse(ex.Features, recon), 1)
	}
	return metrics.Report{"loss": loss.Result(), "mean_squared_error": loss.Result()}
}
