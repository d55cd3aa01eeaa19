package dataset

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/AbdulmoneamAli/federated/pkg/mmath"
	"github.com/AbdulmoneamAli/federated/pkg/nprand"
)

// Shakespeare is a character-level next-character task where each speaking role is one client.
// Characters outside the vocabulary map to index 0.
const (
	shakespeareVocab      = " abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789.,:;!?'\"-()[]"
	ShakespeareVocabSize  = 1 + len(shakespeareVocab)
	ShakespeareContextLen = 10
)

// ShakespeareCharIndex maps a character to its vocabulary index, 0 for out-of-vocabulary.
func ShakespeareCharIndex(r rune) int {
	if i := strings.IndexRune(shakespeareVocab, r); i >= 0 {
		return i + 1
	}
	return 0
}

// ShakespeareConfig configures Shakespeare loading. When DataFile is set it must contain lines of
// the form "SPEAKER: text"; each speaker becomes a client. Otherwise synthetic dialogue with the
// same shapes is generated.
type ShakespeareConfig struct {
	DataFile string `json:"data_file"`

	NumClients        int    `json:"num_clients"`
	ExamplesPerClient int    `json:"examples_per_client"`
	Seed              uint32 `json:"seed"`
}

// LoadShakespeare returns the federated train split and the held-out test split.
func LoadShakespeare(cfg ShakespeareConfig) (train, test ClientData, err error) {
	if cfg.NumClients <= 0 {
		cfg.NumClients = 100
	}
	if cfg.ExamplesPerClient <= 0 {
		cfg.ExamplesPerClient = 100
	}

	var lines map[string][]string
	if cfg.DataFile != "" {
		lines, err = readSpeakerLines(cfg.DataFile)
		if err != nil {
			return nil, nil, err
		}
	} else {
		lines = syntheticDialogue(cfg)
	}

	trainClients := make(map[string]Dataset, len(lines))
	testClients := make(map[string]Dataset, len(lines))
	for speaker, spoken := range lines {
		var ds Dataset
		for _, line := range spoken {
			ds = append(ds, charWindows(line)...)
		}
		if len(ds) == 0 {
			continue
		}
		// Last tenth of each client's stream is held out for evaluation.
		cut := len(ds) - len(ds)/10
		trainClients[speaker] = ds[:cut]
		if cut < len(ds) {
			testClients[speaker] = ds[cut:]
		}
	}
	return NewInMemory(trainClients), NewInMemory(testClients), nil
}

// charWindows turns a line into sliding-window examples: a bag-of-characters context of the
// previous ShakespeareContextLen characters predicting the next character.
func charWindows(line string) Dataset {
	chars := []rune(line)
	var ds Dataset
	for i := 1; i < len(chars); i++ {
		start := i - ShakespeareContextLen
		if start < 0 {
			start = 0
		}
		features := make([]float64, ShakespeareVocabSize)
		for _, r := range chars[start:i] {
			features[ShakespeareCharIndex(r)]++
		}
		ds = append(ds, Example{Features: features, Label: ShakespeareCharIndex(chars[i])})
	}
	return ds
}

func readSpeakerLines(path string) (map[string][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening shakespeare data file")
	}
	defer f.Close()

	lines := map[string][]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		speaker, text, found := strings.Cut(line, ":")
		if !found || speaker == "" || strings.ContainsRune(speaker, ' ') {
			continue
		}
		lines[speaker] = append(lines[speaker], strings.TrimSpace(text))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading shakespeare data file")
	}
	if len(lines) == 0 {
		return nil, errors.Errorf("no \"SPEAKER: text\" lines found in %s", path)
	}
	return lines, nil
}

// syntheticDialogue generates per-speaker character streams with speaker-specific letter
// preferences, so clients are distinguishable the way real speaking roles are.
func syntheticDialogue(cfg ShakespeareConfig) map[string][]string {
	rng := nprand.New(cfg.Seed)
	letters := "abcdefghijklmnopqrstuvwxyz"
	lines := make(map[string][]string, cfg.NumClients)
	for i := 0; i < cfg.NumClients; i++ {
		preferred := rng.Perm(len(letters))[:6]
		var sb strings.Builder
		lineLen := ShakespeareContextLen + 2
		numLines := mmath.Max(1, cfg.ExamplesPerClient/(lineLen-1))
		var spoken []string
		for l := 0; l < numLines; l++ {
			sb.Reset()
			for c := 0; c < lineLen; c++ {
				if rng.UnitInterval() < 0.15 {
					sb.WriteByte(' ')
				} else if rng.UnitInterval() < 0.7 {
					sb.WriteByte(letters[preferred[rng.Intn(len(preferred))]])
				} else {
					sb.WriteByte(letters[rng.Intn(len(letters))])
				}
			}
			spoken = append(spoken, sb.String())
		}
		lines[fmt.Sprintf("speaker_%04d", i)] = spoken
	}
	return lines
}
