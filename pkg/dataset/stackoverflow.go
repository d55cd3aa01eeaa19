package dataset

import (
	"fmt"

	"github.com/AbdulmoneamAli/federated/pkg/mmath"
	"github.com/AbdulmoneamAli/federated/pkg/nprand"
)

// StackOverflow is modeled as bag-of-words posts: next-word prediction consumes a context bag and
// predicts the following word; tag prediction consumes a whole post bag and predicts its tag set.
const (
	DefaultStackOverflowVocab    = 10000
	DefaultStackOverflowTagVocab = 500
	stackOverflowContextLen      = 10
)

// StackOverflowConfig configures the synthetic StackOverflow stand-in.
type StackOverflowConfig struct {
	VocabSize     int  `json:"vocab_size"`
	TagVocabSize  int  `json:"tag_vocab_size"`
	TagPrediction bool `json:"tag_prediction"`

	NumClients     int    `json:"num_clients"`
	PostsPerClient int    `json:"posts_per_client"`
	WordsPerPost   int    `json:"words_per_post"`
	Seed           uint32 `json:"seed"`
}

func (c *StackOverflowConfig) fillDefaults() {
	if c.VocabSize <= 0 {
		c.VocabSize = DefaultStackOverflowVocab
	}
	if c.TagVocabSize <= 0 {
		c.TagVocabSize = DefaultStackOverflowTagVocab
	}
	if c.NumClients <= 0 {
		c.NumClients = 100
	}
	if c.PostsPerClient <= 0 {
		c.PostsPerClient = 20
	}
	if c.WordsPerPost <= 0 {
		c.WordsPerPost = 20
	}
}

// LoadStackOverflow returns the federated train split and the held-out test split. Each client is
// a user; users have topic-skewed vocabularies and, for tag prediction, topic-correlated tags.
func LoadStackOverflow(cfg StackOverflowConfig) (train, test ClientData, err error) {
	cfg.fillDefaults()
	train = generateStackOverflow(cfg, "stackoverflow", cfg.NumClients, cfg.Seed)
	test = generateStackOverflow(cfg, "stackoverflow_test", mmath.Max(1, cfg.NumClients/10), cfg.Seed+1)
	return train, test, nil
}

func generateStackOverflow(cfg StackOverflowConfig, prefix string, numClients int,
	seed uint32,
) *InMemory {
	rng := nprand.New(seed)
	clients := make(map[string]Dataset, numClients)
	for i := 0; i < numClients; i++ {
		// Each user writes from a preferred slice of the vocabulary.
		topicWords := rng.Perm(cfg.VocabSize)[:mmath.Max(2, cfg.VocabSize/20)]
		topicTags := rng.Perm(cfg.TagVocabSize)[:mmath.Max(1, cfg.TagVocabSize/50)]

		var ds Dataset
		for p := 0; p < cfg.PostsPerClient; p++ {
			words := make([]int, cfg.WordsPerPost)
			for w := range words {
				if rng.UnitInterval() < 0.7 {
					words[w] = topicWords[rng.Intn(len(topicWords))]
				} else {
					words[w] = rng.Intn(cfg.VocabSize)
				}
			}
			if cfg.TagPrediction {
				ds = append(ds, tagExample(cfg, words, topicTags, rng))
			} else {
				ds = append(ds, nextWordExamples(cfg, words)...)
			}
		}
		clients[fmt.Sprintf("%s_%04d", prefix, i)] = ds
	}
	return NewInMemory(clients)
}

func nextWordExamples(cfg StackOverflowConfig, words []int) Dataset {
	var ds Dataset
	for i := 1; i < len(words); i++ {
		start := i - stackOverflowContextLen
		if start < 0 {
			start = 0
		}
		features := make([]float64, cfg.VocabSize)
		for _, w := range words[start:i] {
			features[w]++
		}
		ds = append(ds, Example{Features: features, Label: words[i]})
	}
	return ds
}

func tagExample(cfg StackOverflowConfig, words []int, topicTags []int,
	rng *nprand.State,
) Example {
	features := make([]float64, cfg.VocabSize)
	for _, w := range words {
		features[w]++
	}
	numTags := 1 + rng.Intn(mmath.Min(3, len(topicTags)))
	seen := map[int]bool{}
	var tags []int
	for len(tags) < numTags {
		t := topicTags[rng.Intn(len(topicTags))]
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	return Example{Features: features, Labels: tags}
}
