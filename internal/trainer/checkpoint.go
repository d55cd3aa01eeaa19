package trainer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/AbdulmoneamAli/federated/internal/fedavg"
)

// Checkpoint is the serialized form of a training run at a round boundary.
type Checkpoint struct {
	RunID string             `json:"run_id"`
	State fedavg.ServerState `json:"state"`
}

var checkpointPattern = regexp.MustCompile(`^ckpt_(\d+)\.snappy$`)

func checkpointPath(dir string, round int) string {
	return filepath.Join(dir, fmt.Sprintf("ckpt_%06d.snappy", round))
}

// SaveCheckpoint writes ck into dir, snappy-compressed, with an atomic rename so a crashed write
// never leaves a half checkpoint behind. It returns the final path.
func SaveCheckpoint(dir string, ck Checkpoint) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating checkpoint dir")
	}
	raw, err := json.Marshal(ck)
	if err != nil {
		return "", errors.Wrap(err, "encoding checkpoint")
	}
	compressed := snappy.Encode(nil, raw)

	path := checkpointPath(dir, ck.State.Round)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return "", errors.Wrap(err, "writing checkpoint")
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", errors.Wrap(err, "renaming checkpoint")
	}
	return path, nil
}

// LoadCheckpoint reads one checkpoint file.
func LoadCheckpoint(path string) (Checkpoint, error) {
	var ck Checkpoint
	compressed, err := os.ReadFile(path)
	if err != nil {
		return ck, errors.Wrap(err, "reading checkpoint")
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return ck, errors.Wrapf(err, "decompressing checkpoint %s", path)
	}
	if err := json.Unmarshal(raw, &ck); err != nil {
		return ck, errors.Wrapf(err, "decoding checkpoint %s", path)
	}
	return ck, nil
}

// LatestCheckpoint finds the highest-round checkpoint in dir. It returns ok=false when the
// directory holds none.
func LatestCheckpoint(dir string) (path string, ok bool, err error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "listing checkpoint dir")
	}
	best := -1
	for _, entry := range entries {
		m := checkpointPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		round, err := strconv.Atoi(m[1])
		if err != nil || round <= best {
			continue
		}
		best = round
		path = filepath.Join(dir, entry.Name())
	}
	return path, best >= 0, nil
}

// PruneCheckpoints removes all but the keep highest-round checkpoints in dir.
func PruneCheckpoints(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "listing checkpoint dir")
	}
	var rounds []int
	for _, entry := range entries {
		if m := checkpointPattern.FindStringSubmatch(entry.Name()); m != nil {
			round, err := strconv.Atoi(m[1])
			if err == nil {
				rounds = append(rounds, round)
			}
		}
	}
	if len(rounds) <= keep {
		return nil
	}
	sort.Sort(sort.Reverse(sort.IntSlice(rounds)))
	for _, round := range rounds[keep:] {
		if err := os.Remove(checkpointPath(dir, round)); err != nil {
			return errors.Wrap(err, "pruning checkpoint")
		}
	}
	return nil
}
