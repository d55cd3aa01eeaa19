package dataset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AbdulmoneamAli/federated/pkg/check"
	"github.com/AbdulmoneamAli/federated/pkg/nprand"
)

func mkDataset(n int) Dataset {
	ds := make(Dataset, n)
	for i := range ds {
		ds[i] = Example{Features: []float64{float64(i)}, Label: i}
	}
	return ds
}

func labels(batches []Batch) []int {
	var out []int
	for _, b := range batches {
		for _, ex := range b {
			out = append(out, ex.Label)
		}
	}
	return out
}

func TestInMemory(t *testing.T) {
	cd := NewInMemory(map[string]Dataset{
		"b": mkDataset(2),
		"a": mkDataset(3),
	})
	require.Equal(t, []string{"a", "b"}, cd.ClientIDs())

	ds, err := cd.ClientDataset("a")
	require.NoError(t, err)
	require.Len(t, ds, 3)

	_, err = cd.ClientDataset("missing")
	require.ErrorContains(t, err, "unknown client id")
}

func TestCentralized(t *testing.T) {
	cd := NewInMemory(map[string]Dataset{
		"a": mkDataset(3),
		"b": mkDataset(2),
	})
	all, err := Centralized(cd)
	require.NoError(t, err)
	require.Len(t, all, 5)
}

func TestPreprocessValidate(t *testing.T) {
	require.NoError(t, check.Validate(Preprocess{NumEpochs: 1, BatchSize: 10}))
	require.Error(t, check.Validate(Preprocess{NumEpochs: 0, BatchSize: 10}))
	require.Error(t, check.Validate(Preprocess{NumEpochs: 1, BatchSize: 0}))
	require.Error(t, check.Validate(Preprocess{NumEpochs: 1, BatchSize: 1, MaxElements: -1}))
}

func TestPreprocessBatching(t *testing.T) {
	p := Preprocess{NumEpochs: 1, BatchSize: 4}
	batches := p.Apply(mkDataset(10), nil)
	require.Len(t, batches, 3)
	require.Len(t, batches[0], 4)
	require.Len(t, batches[1], 4)
	// The final partial batch is kept.
	require.Len(t, batches[2], 2)
	// Buffer size <= 1 means no shuffling.
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, labels(batches))
}

func TestPreprocessRepeats(t *testing.T) {
	p := Preprocess{NumEpochs: 3, BatchSize: 5}
	batches := p.Apply(mkDataset(5), nil)
	require.Len(t, batches, 3)
	for _, b := range batches {
		require.Equal(t, []int{0, 1, 2, 3, 4}, labels([]Batch{b}))
	}
}

func TestPreprocessMaxElements(t *testing.T) {
	p := Preprocess{NumEpochs: 2, BatchSize: 3, MaxElements: 3}
	batches := p.Apply(mkDataset(10), nil)
	require.Equal(t, []int{0, 1, 2, 0, 1, 2}, labels(batches))
}

func TestPreprocessShuffle(t *testing.T) {
	p := Preprocess{NumEpochs: 1, BatchSize: 100, ShuffleBufferSize: 50}
	got := labels(p.Apply(mkDataset(100), nprand.New(1)))
	require.Len(t, got, 100)
	require.NotEqual(t, labels(Preprocess{NumEpochs: 1, BatchSize: 100}.Apply(mkDataset(100), nil)), got)

	// Every element still appears exactly once.
	seen := map[int]int{}
	for _, l := range got {
		seen[l]++
	}
	for i := 0; i < 100; i++ {
		require.Equal(t, 1, seen[i])
	}

	// Same seed, same order.
	again := labels(p.Apply(mkDataset(100), nprand.New(1)))
	require.Equal(t, got, again)
}

func TestPreprocessWindowedShuffleIsLocal(t *testing.T) {
	// With a buffer much smaller than the dataset, the element emitted at output position p
	// comes from input index at most p+buffer-1, mirroring streaming shuffle semantics.
	p := Preprocess{NumEpochs: 1, BatchSize: 1000, ShuffleBufferSize: 10}
	got := labels(p.Apply(mkDataset(1000), nprand.New(7)))
	for pos, l := range got {
		require.LessOrEqual(t, l-pos, 9, "element %d surfaced too early at %d", l, pos)
	}
}

type countingClientData struct {
	inner ClientData
	loads map[string]int
}

func (c *countingClientData) ClientIDs() []string { return c.inner.ClientIDs() }

func (c *countingClientData) ClientDataset(id string) (Dataset, error) {
	c.loads[id]++
	return c.inner.ClientDataset(id)
}

func TestCached(t *testing.T) {
	counting := &countingClientData{
		inner: NewInMemory(map[string]Dataset{
			"a": mkDataset(1),
			"b": mkDataset(2),
			"c": mkDataset(3),
		}),
		loads: map[string]int{},
	}
	cached, err := NewCached(counting, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, cached.ClientIDs())

	for i := 0; i < 3; i++ {
		ds, err := cached.ClientDataset("a")
		require.NoError(t, err)
		require.Len(t, ds, 1)
	}
	require.Equal(t, 1, counting.loads["a"])

	// Touching two more clients evicts "a" from a size-2 cache.
	_, err = cached.ClientDataset("b")
	require.NoError(t, err)
	_, err = cached.ClientDataset("c")
	require.NoError(t, err)
	_, err = cached.ClientDataset("a")
	require.NoError(t, err)
	require.Equal(t, 2, counting.loads["a"])

	_, err = cached.ClientDataset("missing")
	require.Error(t, err)
}
