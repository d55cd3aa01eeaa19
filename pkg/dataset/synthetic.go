package dataset

import (
	"fmt"

	"github.com/AbdulmoneamAli/federated/pkg/nprand"
)

// syntheticClassification generates a deterministic federated classification problem: each class
// gets a gaussian center, and each client holds examples from a small subset of classes, giving
// the label-skewed non-IID structure federated benchmarks exhibit.
type syntheticClassification struct {
	prefix            string
	numClients        int
	examplesPerClient int
	numClasses        int
	featureDim        int
	classesPerClient  int
	noise             float64
	seed              uint32
}

func (s syntheticClassification) generate() *InMemory {
	rng := nprand.New(s.seed)

	centers := make([][]float64, s.numClasses)
	for c := range centers {
		centers[c] = make([]float64, s.featureDim)
		for d := range centers[c] {
			centers[c][d] = rng.Gaussian()
		}
	}

	clients := make(map[string]Dataset, s.numClients)
	for i := 0; i < s.numClients; i++ {
		classes := rng.Perm(s.numClasses)[:s.classesPerClient]
		ds := make(Dataset, 0, s.examplesPerClient)
		for j := 0; j < s.examplesPerClient; j++ {
			label := classes[rng.Intn(len(classes))]
			features := make([]float64, s.featureDim)
			for d := range features {
				features[d] = centers[label][d] + s.noise*rng.Gaussian()
			}
			ds = append(ds, Example{Features: features, Label: label})
		}
		clients[fmt.Sprintf("%s_%04d", s.prefix, i)] = ds
	}
	return NewInMemory(clients)
}
