package optimizer

import (
	"math"

	"github.com/pkg/errors"

	"github.com/AbdulmoneamAli/federated/pkg/check"
	"github.com/AbdulmoneamAli/federated/pkg/mmath"
)

// Names of the supported learning-rate schedules. Round numbers are 0-based.
const (
	ScheduleConstant     = "constant"
	ScheduleExpDecay     = "exp_decay"
	ScheduleInvLinDecay  = "inv_lin_decay"
	ScheduleInvSqrtDecay = "inv_sqrt_decay"
)

// Schedules lists the valid schedule names.
var Schedules = []string{
	ScheduleConstant, ScheduleExpDecay, ScheduleInvLinDecay, ScheduleInvSqrtDecay,
}

// ScheduleConfig parameterizes a per-round learning-rate schedule.
type ScheduleConfig struct {
	Kind string `json:"kind"`
	// DecayRate and DecaySteps parameterize the non-constant schedules; Staircase makes the
	// decay exponent integral as in the usual exponential-decay staircase mode.
	DecayRate  float64 `json:"decay_rate"`
	DecaySteps int     `json:"decay_steps"`
	Staircase  bool    `json:"staircase"`
	// MinLearningRate floors the decayed rate.
	MinLearningRate float64 `json:"min_learning_rate"`
}

// Validate implements the check.Validatable interface. An empty kind means constant, matching
// NewSchedule.
func (c ScheduleConfig) Validate() []error {
	if c.Kind == "" {
		return nil
	}
	errs := []error{check.In(c.Kind, Schedules, "schedule kind")}
	if c.Kind != ScheduleConstant {
		errs = append(errs,
			check.GreaterThan(c.DecayRate, 0.0, "decay_rate"),
			check.GreaterThan(c.DecaySteps, 0, "decay_steps"),
		)
	}
	return errs
}

// Schedule maps a 0-based round number to a learning rate.
type Schedule func(round int) float64

// NewSchedule builds the schedule for c, decaying from the config's base learning rate.
func NewSchedule(c Config) (Schedule, error) {
	base := c.LearningRate
	sc := c.Schedule
	progress := func(round int) float64 {
		p := float64(round) / float64(sc.DecaySteps)
		if sc.Staircase {
			p = math.Floor(p)
		}
		return p
	}
	floor := func(lr float64) float64 {
		return mmath.Max(lr, sc.MinLearningRate)
	}

	switch sc.Kind {
	case ScheduleConstant, "":
		return func(int) float64 { return base }, nil
	case ScheduleExpDecay:
		return func(round int) float64 {
			return floor(base * math.Pow(sc.DecayRate, progress(round)))
		}, nil
	case ScheduleInvLinDecay:
		return func(round int) float64 {
			return floor(base / (1 + sc.DecayRate*progress(round)))
		}, nil
	case ScheduleInvSqrtDecay:
		return func(round int) float64 {
			return floor(base / math.Sqrt(1+sc.DecayRate*progress(round)))
		}, nil
	default:
		return nil, errors.Errorf("unknown schedule %q, must be one of %v", sc.Kind, Schedules)
	}
}
