// Package optimizer implements the first-order optimizers and learning-rate schedules the
// federated averaging core plugs in on both the server and the client side. Optimizers carry
// their slot variables (momentum, preconditioners) as tensor.Weights so that client-side slot
// state can be aggregated across a cohort.
package optimizer

import (
	"math"

	"github.com/pkg/errors"

	"github.com/AbdulmoneamAli/federated/pkg/check"
	"github.com/AbdulmoneamAli/federated/pkg/tensor"
)

// Names of the supported optimizers.
const (
	SGD      = "sgd"
	Momentum = "momentum"
	Adagrad  = "adagrad"
	Adam     = "adam"
	Yogi     = "yogi"
)

// Optimizers lists the valid optimizer names.
var Optimizers = []string{SGD, Momentum, Adagrad, Adam, Yogi}

// Config selects and parameterizes an optimizer.
type Config struct {
	Optimizer    string  `json:"optimizer"`
	LearningRate float64 `json:"learning_rate"`

	// Momentum applies to the momentum optimizer only.
	Momentum float64 `json:"momentum"`
	// Beta1/Beta2/Epsilon apply to adam and yogi; Epsilon also to adagrad.
	Beta1   float64 `json:"beta1"`
	Beta2   float64 `json:"beta2"`
	Epsilon float64 `json:"epsilon"`

	Schedule ScheduleConfig `json:"schedule"`
}

// DefaultConfig returns a plain SGD configuration with the given base learning rate.
func DefaultConfig(lr float64) Config {
	return Config{
		Optimizer:    SGD,
		LearningRate: lr,
		Momentum:     0.9,
		Beta1:        0.9,
		Beta2:        0.99,
		Epsilon:      1e-3,
		Schedule:     ScheduleConfig{Kind: ScheduleConstant},
	}
}

// Validate implements the check.Validatable interface.
func (c Config) Validate() []error {
	return []error{
		check.In(c.Optimizer, Optimizers, "optimizer"),
		check.GreaterThan(c.LearningRate, 0.0, "learning_rate"),
	}
}

// New builds the configured optimizer.
func New(c Config) (Optimizer, error) {
	switch c.Optimizer {
	case SGD:
		return &sgd{}, nil
	case Momentum:
		return &momentum{decay: c.Momentum}, nil
	case Adagrad:
		return &adagrad{epsilon: c.Epsilon}, nil
	case Adam:
		return &adaptive{beta1: c.Beta1, beta2: c.Beta2, epsilon: c.Epsilon, yogi: false}, nil
	case Yogi:
		return &adaptive{beta1: c.Beta1, beta2: c.Beta2, epsilon: c.Epsilon, yogi: true}, nil
	default:
		return nil, errors.Errorf("unknown optimizer %q, must be one of %v", c.Optimizer, Optimizers)
	}
}

// Optimizer applies gradient steps to a set of weights. Slot state is exposed as tensor.Weights
// so it can be serialized and aggregated; a fresh optimizer has empty state until its first Step.
type Optimizer interface {
	// Step updates w in place using grad at learning rate lr.
	Step(w, grad tensor.Weights, lr float64)
	// State returns the slot variables. Plain SGD returns nil.
	State() tensor.Weights
	// Restore replaces the slot variables. Restoring nil resets the slots.
	Restore(state tensor.Weights)
}

type sgd struct{}

func (o *sgd) Step(w, grad tensor.Weights, lr float64) {
	tensor.AXPY(w, -lr, grad)
}

func (o *sgd) State() tensor.Weights        { return nil }
func (o *sgd) Restore(state tensor.Weights) {}

type momentum struct {
	decay    float64
	velocity tensor.Weights
}

func (o *momentum) Step(w, grad tensor.Weights, lr float64) {
	if o.velocity == nil {
		o.velocity = tensor.ZerosLike(w)
	}
	tensor.Scale(o.velocity, o.decay)
	tensor.Add(o.velocity, grad)
	tensor.AXPY(w, -lr, o.velocity)
}

func (o *momentum) State() tensor.Weights { return o.velocity }

func (o *momentum) Restore(state tensor.Weights) {
	if state == nil {
		o.velocity = nil
		return
	}
	o.velocity = tensor.Clone(state)
}

type adagrad struct {
	epsilon float64
	accum   tensor.Weights
}

func (o *adagrad) Step(w, grad tensor.Weights, lr float64) {
	if o.accum == nil {
		o.accum = tensor.ZerosLike(w)
	}
	for i := range w {
		for j := range w[i] {
			g := grad[i][j]
			o.accum[i][j] += g * g
			w[i][j] -= lr * g / (math.Sqrt(o.accum[i][j]) + o.epsilon)
		}
	}
}

func (o *adagrad) State() tensor.Weights { return o.accum }

func (o *adagrad) Restore(state tensor.Weights) {
	if state == nil {
		o.accum = nil
		return
	}
	o.accum = tensor.Clone(state)
}

// adaptive covers adam and yogi, which differ only in the second-moment update rule.
type adaptive struct {
	beta1   float64
	beta2   float64
	epsilon float64
	yogi    bool

	step int
	m    tensor.Weights
	v    tensor.Weights
}

func (o *adaptive) Step(w, grad tensor.Weights, lr float64) {
	if o.m == nil {
		o.m = tensor.ZerosLike(w)
		o.v = tensor.ZerosLike(w)
	}
	o.step++
	bc1 := 1 - math.Pow(o.beta1, float64(o.step))
	bc2 := 1 - math.Pow(o.beta2, float64(o.step))
	for i := range w {
		for j := range w[i] {
			g := grad[i][j]
			g2 := g * g
			o.m[i][j] = o.beta1*o.m[i][j] + (1-o.beta1)*g
			if o.yogi {
				sign := 1.0
				if o.v[i][j] > g2 {
					sign = -1.0
				}
				o.v[i][j] += (1 - o.beta2) * sign * g2
			} else {
				o.v[i][j] = o.beta2*o.v[i][j] + (1-o.beta2)*g2
			}
			mHat := o.m[i][j] / bc1
			vHat := o.v[i][j] / bc2
			w[i][j] -= lr * mHat / (math.Sqrt(vHat) + o.epsilon)
		}
	}
}

// State lays out the slots as m vectors, v vectors, then a one-element vector holding the step
// count. The step must round-trip with the moments or bias correction restarts from step 1.
func (o *adaptive) State() tensor.Weights {
	if o.m == nil {
		return nil
	}
	state := make(tensor.Weights, 0, len(o.m)+len(o.v)+1)
	state = append(state, o.m...)
	state = append(state, o.v...)
	state = append(state, []float64{float64(o.step)})
	return state
}

func (o *adaptive) Restore(state tensor.Weights) {
	if state == nil {
		o.m, o.v, o.step = nil, nil, 0
		return
	}
	half := (len(state) - 1) / 2
	o.m = tensor.Clone(state[:half])
	o.v = tensor.Clone(state[half : 2*half])
	o.step = int(state[len(state)-1][0])
}
