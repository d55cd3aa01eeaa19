// Package fedavg implements the federated averaging iterative process: per round, a cohort of
// clients each runs local optimization from the current global weights, and the server folds the
// weighted client deltas through its own optimizer. Both the plain schedule variant (server and
// client learning rates decay per round) and the client-optimizer variant (client slot state is
// federated along with the weights) live here.
package fedavg

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/AbdulmoneamAli/federated/internal/aggregator"
	"github.com/AbdulmoneamAli/federated/pkg/check"
	"github.com/AbdulmoneamAli/federated/pkg/dataset"
	"github.com/AbdulmoneamAli/federated/pkg/metrics"
	"github.com/AbdulmoneamAli/federated/pkg/mmath"
	"github.com/AbdulmoneamAli/federated/pkg/model"
	"github.com/AbdulmoneamAli/federated/pkg/nprand"
	"github.com/AbdulmoneamAli/federated/pkg/optimizer"
	"github.com/AbdulmoneamAli/federated/pkg/tensor"
)

// ClientStateAggregation policies for the client-optimizer variant's slot variables.
const (
	ClientStateMean = "mean"
	ClientStateSum  = "sum"
	ClientStateZero = "zero"
)

// ServerState is the full state of a federated training run, serializable into checkpoints.
type ServerState struct {
	// Round is the number of completed rounds; Next increments it exactly once.
	Round   int            `json:"round"`
	Weights tensor.Weights `json:"weights"`
	// OptimizerState holds the server optimizer's slot variables.
	OptimizerState tensor.Weights `json:"optimizer_state,omitempty"`
	// ClientOptimizerState holds the federated client slot variables; nil outside the
	// client-optimizer variant.
	ClientOptimizerState tensor.Weights `json:"client_optimizer_state,omitempty"`
}

// ClientDataset pairs a sampled client with its local data for one round.
type ClientDataset struct {
	ID   string
	Data dataset.Dataset
}

// ClientOutput is the result of one client's local training pass.
type ClientOutput struct {
	ClientID string
	// Delta is initialWeights - finalWeights, so it points along the aggregate gradient.
	Delta tensor.Weights
	// OptimizerState is the client optimizer's slot state after the pass; nil outside the
	// client-optimizer variant.
	OptimizerState tensor.Weights
	// NumExamples weights this client's contribution. Zero when the update was discarded.
	NumExamples int
	Loss        float64
}

// RoundMetrics summarizes one completed round.
type RoundMetrics struct {
	Round         int
	NumClients    int
	FailedClients int
	NumExamples   int
	Loss          float64
	ClientLR      float64
	ServerLR      float64
}

// Options configures a Process.
type Options struct {
	ModelBuilder    model.Builder
	ClientOptimizer optimizer.Config
	ServerOptimizer optimizer.Config
	Preprocess      dataset.Preprocess
	Aggregator      aggregator.Aggregator

	// ClientStateAggregation selects the client-optimizer variant when non-empty.
	ClientStateAggregation string

	// Parallelism bounds concurrent client updates; <= 0 means sequential.
	Parallelism int
	Seed        uint32
}

// Validate implements the check.Validatable interface.
func (o Options) Validate() []error {
	var errs []error
	if o.ClientStateAggregation != "" {
		errs = append(errs, check.In(o.ClientStateAggregation,
			[]string{ClientStateMean, ClientStateSum, ClientStateZero},
			"client state aggregation"))
	}
	return errs
}

// Process runs federated averaging rounds. It is stateless between rounds apart from its RNG;
// all training state lives in ServerState, which keeps checkpoint resume exact.
type Process struct {
	builder     model.Builder
	clientOpt   optimizer.Config
	serverOpt   optimizer.Config
	clientLR    optimizer.Schedule
	serverLR    optimizer.Schedule
	pre         dataset.Preprocess
	agg         aggregator.Aggregator
	clientState string
	parallelism int
	seed        uint32
}

// NewProcess builds a Process for the given options.
func NewProcess(opts Options) (*Process, error) {
	if opts.ModelBuilder == nil {
		return nil, errors.New("fedavg: a model builder is required")
	}
	if err := check.Validate(opts); err != nil {
		return nil, err
	}
	clientLR, err := optimizer.NewSchedule(opts.ClientOptimizer)
	if err != nil {
		return nil, errors.Wrap(err, "client learning rate schedule")
	}
	serverLR, err := optimizer.NewSchedule(opts.ServerOptimizer)
	if err != nil {
		return nil, errors.Wrap(err, "server learning rate schedule")
	}
	agg := opts.Aggregator
	if agg == nil {
		agg, err = aggregator.New(aggregator.Config{})
		if err != nil {
			return nil, err
		}
	}
	return &Process{
		builder:     opts.ModelBuilder,
		clientOpt:   opts.ClientOptimizer,
		serverOpt:   opts.ServerOptimizer,
		clientLR:    clientLR,
		serverLR:    serverLR,
		pre:         opts.Preprocess,
		agg:         agg,
		clientState: opts.ClientStateAggregation,
		parallelism: opts.Parallelism,
		seed:        opts.Seed,
	}, nil
}

// InitialState returns the starting server state: freshly initialized model weights, empty
// optimizer slots, round 0.
func (p *Process) InitialState() ServerState {
	m := p.builder()
	return ServerState{Weights: tensor.Clone(m.Weights())}
}

// Next runs one federated averaging round over the given client datasets and returns the new
// server state. The input state is not mutated. A round in which every client fails is an error;
// partial failures are logged and the round proceeds with the surviving cohort.
func (p *Process) Next(ctx context.Context, state ServerState,
	clients []ClientDataset,
) (ServerState, RoundMetrics, error) {
	if len(clients) == 0 {
		return state, RoundMetrics{}, errors.New("fedavg: empty cohort")
	}

	clientLR := p.clientLR(state.Round)
	outputs := make([]ClientOutput, len(clients))
	failures := make([]error, len(clients))

	g, ctx := errgroup.WithContext(ctx)
	if p.parallelism > 0 {
		g.SetLimit(p.parallelism)
	} else {
		g.SetLimit(1)
	}
	for i, cd := range clients {
		i, cd := i, cd
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := p.clientUpdate(state, cd, clientLR)
			if err != nil {
				failures[i] = errors.Wrapf(err, "client %s", cd.ID)
				return nil
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return state, RoundMetrics{}, err
	}

	var updates []aggregator.Update
	var slotUpdates []aggregator.Update
	var roundErr *multierror.Error
	var lossAgg metrics.Mean
	numExamples, failed := 0, 0
	for i := range outputs {
		if failures[i] != nil {
			roundErr = multierror.Append(roundErr, failures[i])
			failed++
			continue
		}
		out := outputs[i]
		updates = append(updates, aggregator.Update{
			Delta:  out.Delta,
			Weight: float64(out.NumExamples),
		})
		if p.clientState != "" && out.OptimizerState != nil {
			slotUpdates = append(slotUpdates, aggregator.Update{
				Delta:  out.OptimizerState,
				Weight: float64(out.NumExamples),
			})
		}
		lossAgg.Update(out.Loss, float64(out.NumExamples))
		numExamples += out.NumExamples
	}
	if len(updates) == 0 {
		return state, RoundMetrics{}, errors.Wrap(roundErr.ErrorOrNil(),
			"fedavg: no client update survived the round")
	}
	if err := roundErr.ErrorOrNil(); err != nil {
		log.WithError(err).WithField("round", state.Round).Warn("some client updates failed")
	}

	next, err := p.serverUpdate(state, updates, slotUpdates)
	if err != nil {
		return state, RoundMetrics{}, err
	}

	return next, RoundMetrics{
		Round:         state.Round,
		NumClients:    len(updates),
		FailedClients: failed,
		NumExamples:   numExamples,
		Loss:          lossAgg.Result(),
		ClientLR:      clientLR,
		ServerLR:      p.serverLR(state.Round),
	}, nil
}

// clientUpdate runs one client's local training pass at the given learning rate.
func (p *Process) clientUpdate(state ServerState, cd ClientDataset,
	lr float64,
) (ClientOutput, error) {
	if len(cd.Data) == 0 {
		return ClientOutput{}, errors.New("empty client dataset")
	}

	m := p.builder()
	m.SetWeights(state.Weights)
	initial := tensor.Clone(m.Weights())

	opt, err := optimizer.New(p.clientOpt)
	if err != nil {
		return ClientOutput{}, err
	}
	if p.clientState != "" && state.ClientOptimizerState != nil {
		opt.Restore(state.ClientOptimizerState)
	}

	rng := nprand.New(p.clientSeed(state.Round, cd.ID))
	var lossAgg metrics.Mean
	numExamples := 0
	for _, batch := range p.pre.Apply(cd.Data, rng) {
		grad, loss := m.Grad(batch)
		opt.Step(m.Weights(), grad, lr)
		lossAgg.Update(loss, float64(len(batch)))
		numExamples += len(batch)
	}

	delta := tensor.Sub(initial, m.Weights())
	out := ClientOutput{
		ClientID:       cd.ID,
		Delta:          delta,
		OptimizerState: opt.State(),
		NumExamples:    numExamples,
		Loss:           lossAgg.Result(),
	}
	// Non-finite updates are zeroed out rather than poisoning the aggregate.
	if !tensor.AllFinite(delta) {
		log.WithField("client", cd.ID).Warn("discarding non-finite client update")
		out.Delta = tensor.ZerosLike(state.Weights)
		out.OptimizerState = nil
		out.NumExamples = 0
		out.Loss = 0
	}
	return out, nil
}

// clientSeed derives a deterministic per-client, per-round shuffle seed.
func (p *Process) clientSeed(round int, clientID string) uint32 {
	h := p.seed ^ uint32(round)*2654435761
	for _, c := range clientID {
		h = h*16777619 ^ uint32(c)
	}
	return h
}

// serverUpdate aggregates client deltas and applies the server optimizer, treating the aggregate
// delta as a pseudo-gradient. With a plain SGD server optimizer at learning rate 1 this reduces
// to classic FedAvg: the new weights are the example-weighted mean of client models.
func (p *Process) serverUpdate(state ServerState, updates []aggregator.Update,
	slotUpdates []aggregator.Update,
) (ServerState, error) {
	aggDelta, err := p.agg.Aggregate(state.Weights, updates)
	if err != nil {
		return state, errors.Wrap(err, "aggregating client deltas")
	}

	weights := tensor.Clone(state.Weights)
	opt, err := optimizer.New(p.serverOpt)
	if err != nil {
		return state, err
	}
	if state.OptimizerState != nil {
		opt.Restore(state.OptimizerState)
	}
	opt.Step(weights, aggDelta, p.serverLR(state.Round))

	next := ServerState{
		Round:          state.Round + 1,
		Weights:        weights,
		OptimizerState: cloneOrNil(opt.State()),
	}
	if p.clientState != "" {
		next.ClientOptimizerState, err = p.aggregateClientState(state, slotUpdates)
		if err != nil {
			return state, err
		}
	}
	return next, nil
}

// aggregateClientState folds the cohort's client optimizer slots per the configured policy.
func (p *Process) aggregateClientState(state ServerState,
	slotUpdates []aggregator.Update,
) (tensor.Weights, error) {
	switch p.clientState {
	case ClientStateZero:
		return nil, nil
	case ClientStateMean:
		if len(slotUpdates) == 0 {
			return cloneOrNil(state.ClientOptimizerState), nil
		}
		sum := tensor.ZerosLike(slotUpdates[0].Delta)
		total := 0.0
		for _, u := range slotUpdates {
			if len(u.Delta) != len(sum) {
				return nil, errors.New("inconsistent client optimizer state structure")
			}
			tensor.AXPY(sum, u.Weight, u.Delta)
			total += u.Weight
		}
		if total == 0 {
			return cloneOrNil(state.ClientOptimizerState), nil
		}
		tensor.Scale(sum, 1/total)
		if !tensor.AllFinite(sum) {
			return nil, errors.New("non-finite aggregated client optimizer state")
		}
		return sum, nil
	case ClientStateSum:
		if len(slotUpdates) == 0 {
			return cloneOrNil(state.ClientOptimizerState), nil
		}
		sum := tensor.ZerosLike(slotUpdates[0].Delta)
		for _, u := range slotUpdates {
			if len(u.Delta) != len(sum) {
				return nil, errors.New("inconsistent client optimizer state structure")
			}
			tensor.Add(sum, u.Delta)
		}
		if !tensor.AllFinite(sum) {
			return nil, errors.New("non-finite aggregated client optimizer state")
		}
		return sum, nil
	default:
		return nil, errors.Errorf("unknown client state aggregation %q", p.clientState)
	}
}

func cloneOrNil(w tensor.Weights) tensor.Weights {
	if w == nil {
		return nil
	}
	return tensor.Clone(w)
}

// Progress returns training progress in [0, 1] given the total configured rounds.
func Progress(state ServerState, totalRounds int) float64 {
	if totalRounds <= 0 {
		return 0
	}
	return mmath.Min(1, float64(state.Round)/float64(totalRounds))
}
