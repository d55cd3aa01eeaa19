// Package metrics provides the streaming metric accumulators tasks report during training and
// evaluation. Accumulators follow the usual (value, weight) update scheme so that client-level
// results can be merged into example-weighted aggregates.
package metrics

import "sort"

// Mean accumulates a weighted mean.
type Mean struct {
	sum    float64
	weight float64
}

// Update adds value with the given weight.
func (m *Mean) Update(value, weight float64) {
	m.sum += value * weight
	m.weight += weight
}

// Result returns the weighted mean, or 0 if nothing has been accumulated.
func (m *Mean) Result() float64 {
	if m.weight == 0 {
		return 0
	}
	return m.sum / m.weight
}

// Weight returns the total weight accumulated so far.
func (m *Mean) Weight() float64 {
	return m.weight
}

// Accuracy accumulates sparse categorical accuracy: the fraction of examples whose argmax
// prediction equals the label.
type Accuracy struct {
	mean Mean
}

// Update records one prediction.
func (a *Accuracy) Update(scores []float64, label int) {
	pred := Argmax(scores)
	if pred == label {
		a.mean.Update(1, 1)
	} else {
		a.mean.Update(0, 1)
	}
}

// Result returns the accuracy so far.
func (a *Accuracy) Result() float64 {
	return a.mean.Result()
}

// RecallAtK accumulates recall of the top-K scored classes against a set of positive labels,
// the tag-prediction metric.
type RecallAtK struct {
	K    int
	mean Mean
}

// Update records one multi-label prediction.
func (r *RecallAtK) Update(scores []float64, positives []int) {
	if len(positives) == 0 {
		return
	}
	top := TopK(scores, r.K)
	inTop := make(map[int]bool, len(top))
	for _, i := range top {
		inTop[i] = true
	}
	hits := 0
	for _, p := range positives {
		if inTop[p] {
			hits++
		}
	}
	r.mean.Update(float64(hits)/float64(len(positives)), 1)
}

// Result returns the mean recall so far.
func (r *RecallAtK) Result() float64 {
	return r.mean.Result()
}

// Argmax returns the index of the largest score, -1 for an empty slice.
func Argmax(scores []float64) int {
	best := -1
	for i, s := range scores {
		if best == -1 || s > scores[best] {
			best = i
		}
	}
	return best
}

// TopK returns the indices of the k largest scores in descending score order.
func TopK(scores []float64, k int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if k > len(idx) {
		k = len(idx)
	}
	return idx[:k]
}

// Report is a named bundle of scalar metrics.
type Report map[string]float64

// Merge copies other's entries into r, overwriting keys present in both. Callers that need
// weighted merging should use Weighted.
func (r Report) Merge(other Report) {
	for k, v := range other {
		r[k] = v
	}
}

// Weighted accumulates example-weighted means over several Reports.
type Weighted struct {
	means map[string]*Mean
}

// Update adds a report with the given weight.
func (w *Weighted) Update(rep Report, weight float64) {
	if w.means == nil {
		w.means = map[string]*Mean{}
	}
	for k, v := range rep {
		if w.means[k] == nil {
			w.means[k] = &Mean{}
		}
		w.means[k].Update(v, weight)
	}
}

// Result returns the merged report.
func (w *Weighted) Result() Report {
	out := Report{}
	for k, m := range w.means {
		out[k] = m.Result()
	}
	return out
}
