package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMean(t *testing.T) {
	var m Mean
	require.Equal(t, 0.0, m.Result())

	m.Update(1, 2)
	m.Update(4, 1)
	require.InDelta(t, 2.0, m.Result(), 1e-12)
	require.InDelta(t, 3.0, m.Weight(), 1e-12)
}

func TestAccuracy(t *testing.T) {
	var a Accuracy
	a.Update([]float64{0.1, 0.7, 0.2}, 1)
	a.Update([]float64{0.9, 0.05, 0.05}, 2)
	a.Update([]float64{0.0, 0.0, 1.0}, 2)
	require.InDelta(t, 2.0/3.0, a.Result(), 1e-12)
}

func TestArgmax(t *testing.T) {
	require.Equal(t, -1, Argmax(nil))
	require.Equal(t, 0, Argmax([]float64{5}))
	require.Equal(t, 2, Argmax([]float64{1, 2, 3}))
	// Ties resolve to the first maximum.
	require.Equal(t, 1, Argmax([]float64{0, 4, 4}))
}

func TestTopK(t *testing.T) {
	scores := []float64{0.1, 0.9, 0.5, 0.7}
	require.Equal(t, []int{1, 3}, TopK(scores, 2))
	require.Equal(t, []int{1, 3, 2, 0}, TopK(scores, 10))
}

func TestRecallAtK(t *testing.T) {
	r := RecallAtK{K: 2}
	// Positives {1, 2} against top-2 {1, 3}: one of two recalled.
	r.Update([]float64{0.1, 0.9, 0.5, 0.7}, []int{1, 2})
	require.InDelta(t, 0.5, r.Result(), 1e-12)

	// An example with no positive labels is skipped.
	r.Update([]float64{1, 0, 0, 0}, nil)
	require.InDelta(t, 0.5, r.Result(), 1e-12)

	r.Update([]float64{1, 0, 0, 0}, []int{0})
	require.InDelta(t, 0.75, r.Result(), 1e-12)
}

func TestReportMergeOverwrites(t *testing.T) {
	r := Report{"loss": 2.0, "accuracy": 0.5}
	r.Merge(Report{"loss": 3.0, "recall_at_5": 0.1})
	require.Equal(t, Report{"loss": 3.0, "accuracy": 0.5, "recall_at_5": 0.1}, r)
}

func TestWeighted(t *testing.T) {
	var w Weighted
	w.Update(Report{"loss": 2.0, "accuracy": 1.0}, 10)
	w.Update(Report{"loss": 4.0, "accuracy": 0.5}, 30)
	got := w.Result()
	require.InDelta(t, 3.5, got["loss"], 1e-12)
	require.InDelta(t, 0.625, got["accuracy"], 1e-12)
}
