// Package dataset provides the federated dataset abstraction: a ClientData maps client IDs to
// their local examples, and Preprocess turns a client's examples into the shuffled, repeated,
// batched stream a local training pass consumes.
package dataset

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/AbdulmoneamAli/federated/pkg/check"
	"github.com/AbdulmoneamAli/federated/pkg/nprand"
)

// Example is a single training example. Label is the sparse target for classification and
// next-word tasks; Labels holds the positive set for multi-label tag prediction. Autoencoding
// tasks ignore both and reconstruct Features.
type Example struct {
	Features []float64
	Label    int
	Labels   []int
}

// Batch is a slice of examples presented to the model in one step.
type Batch []Example

// Dataset is an in-memory client dataset.
type Dataset []Example

// ClientData maps client IDs to their local datasets.
type ClientData interface {
	// ClientIDs returns all client IDs in a stable order.
	ClientIDs() []string
	// ClientDataset returns the dataset of one client.
	ClientDataset(id string) (Dataset, error)
}

// InMemory is a ClientData backed by a map.
type InMemory struct {
	clients map[string]Dataset
	ids     []string
}

// NewInMemory builds an InMemory ClientData. Client IDs are sorted for stable iteration.
func NewInMemory(clients map[string]Dataset) *InMemory {
	ids := make([]string, 0, len(clients))
	for id := range clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &InMemory{clients: clients, ids: ids}
}

// ClientIDs implements ClientData.
func (m *InMemory) ClientIDs() []string { return m.ids }

// ClientDataset implements ClientData.
func (m *InMemory) ClientDataset(id string) (Dataset, error) {
	ds, ok := m.clients[id]
	if !ok {
		return nil, errors.Errorf("unknown client id %q", id)
	}
	return ds, nil
}

// Centralized concatenates every client's dataset into one, the centralized evaluation set.
func Centralized(cd ClientData) (Dataset, error) {
	var out Dataset
	for _, id := range cd.ClientIDs() {
		ds, err := cd.ClientDataset(id)
		if err != nil {
			return nil, errors.Wrapf(err, "loading client %q", id)
		}
		out = append(out, ds...)
	}
	return out, nil
}

// Preprocess configures the shuffle -> repeat -> batch pipeline applied to a client dataset
// before local training. A shuffle buffer of size <= 1 disables shuffling; the final batch keeps
// its remainder rather than being dropped.
type Preprocess struct {
	NumEpochs         int `json:"num_epochs"`
	BatchSize         int `json:"batch_size"`
	ShuffleBufferSize int `json:"shuffle_buffer_size"`
	// MaxElements caps the number of examples taken per epoch; 0 means no cap. Large-cohort
	// experiments cap per-client data so cohort size, not client size, dominates round cost.
	MaxElements int `json:"max_elements"`
}

// Validate implements the check.Validatable interface.
func (p Preprocess) Validate() []error {
	return []error{
		check.GreaterThan(p.NumEpochs, 0, "num_epochs"),
		check.GreaterThan(p.BatchSize, 0, "batch_size"),
		check.GreaterThanOrEqualTo(p.MaxElements, 0, "max_elements"),
	}
}

// Apply runs the pipeline over ds, drawing shuffle order from rng.
func (p Preprocess) Apply(ds Dataset, rng *nprand.State) []Batch {
	var stream Dataset
	for epoch := 0; epoch < p.NumEpochs; epoch++ {
		pass := shuffled(ds, p.ShuffleBufferSize, rng)
		if p.MaxElements > 0 && len(pass) > p.MaxElements {
			pass = pass[:p.MaxElements]
		}
		stream = append(stream, pass...)
	}

	var batches []Batch
	for start := 0; start < len(stream); start += p.BatchSize {
		end := start + p.BatchSize
		if end > len(stream) {
			end = len(stream)
		}
		batches = append(batches, Batch(stream[start:end]))
	}
	return batches
}

// shuffled emulates a streaming windowed shuffle with the given buffer size, the same semantics
// as a tf.data shuffle: elements leave a buffer of bounded size in random order.
func shuffled(ds Dataset, buffer int, rng *nprand.State) Dataset {
	if buffer <= 1 || rng == nil {
		return ds
	}
	if buffer > len(ds) {
		buffer = len(ds)
	}
	out := make(Dataset, 0, len(ds))
	window := make(Dataset, 0, buffer)
	for _, ex := range ds {
		window = append(window, ex)
		if len(window) == buffer {
			i := rng.Intn(len(window))
			out = append(out, window[i])
			window[i] = window[len(window)-1]
			window = window[:len(window)-1]
		}
	}
	for len(window) > 0 {
		i := rng.Intn(len(window))
		out = append(out, window[i])
		window[i] = window[len(window)-1]
		window = window[:len(window)-1]
	}
	return out
}
