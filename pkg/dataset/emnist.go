package dataset

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/AbdulmoneamAli/federated/pkg/mmath"
)

// EMNIST dataset constants.
const (
	EMNISTImageSize  = 28
	EMNISTFeatureDim = EMNISTImageSize * EMNISTImageSize
	// EMNIST-10 holds digits only; EMNIST-62 adds upper and lower case letters.
	EMNISTDigitClasses = 10
	EMNISTFullClasses  = 62
)

// EMNISTConfig configures EMNIST loading. When DataDir is set, IDX-format image/label files are
// read from it and partitioned into label-skewed shards; otherwise a deterministic synthetic
// stand-in with the same shapes is generated.
type EMNISTConfig struct {
	OnlyDigits bool   `json:"only_digits"`
	DataDir    string `json:"data_dir"`

	NumClients        int    `json:"num_clients"`
	ExamplesPerClient int    `json:"examples_per_client"`
	Seed              uint32 `json:"seed"`
}

// NumClasses returns the label count for the configured EMNIST variant.
func (c EMNISTConfig) NumClasses() int {
	if c.OnlyDigits {
		return EMNISTDigitClasses
	}
	return EMNISTFullClasses
}

// LoadEMNIST returns the federated train split and the held-out test split.
func LoadEMNIST(cfg EMNISTConfig) (train, test ClientData, err error) {
	if cfg.NumClients <= 0 {
		cfg.NumClients = 100
	}
	if cfg.ExamplesPerClient <= 0 {
		cfg.ExamplesPerClient = 100
	}

	if cfg.DataDir != "" {
		return loadEMNISTFromIDX(cfg)
	}

	gen := syntheticClassification{
		prefix:            "emnist",
		numClients:        cfg.NumClients,
		examplesPerClient: cfg.ExamplesPerClient,
		numClasses:        cfg.NumClasses(),
		featureDim:        EMNISTFeatureDim,
		classesPerClient:  mmath.Min(5, cfg.NumClasses()),
		noise:             0.5,
		seed:              cfg.Seed,
	}
	train = gen.generate()
	gen.prefix = "emnist_test"
	gen.numClients = mmath.Max(1, cfg.NumClients/10)
	gen.seed = cfg.Seed + 1
	test = gen.generate()
	return train, test, nil
}

func loadEMNISTFromIDX(cfg EMNISTConfig) (train, test ClientData, err error) {
	trainDS, err := readIDXPair(cfg.DataDir, "train-images-idx3-ubyte", "train-labels-idx1-ubyte")
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading EMNIST train split")
	}
	testDS, err := readIDXPair(cfg.DataDir, "t10k-images-idx3-ubyte", "t10k-labels-idx1-ubyte")
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading EMNIST test split")
	}
	if cfg.OnlyDigits {
		trainDS = filterLabels(trainDS, EMNISTDigitClasses)
		testDS = filterLabels(testDS, EMNISTDigitClasses)
	}
	return partitionByLabelShards(trainDS, cfg.NumClients, "emnist"),
		partitionByLabelShards(testDS, mmath.Max(1, cfg.NumClients/10), "emnist_test"),
		nil
}

func filterLabels(ds Dataset, numClasses int) Dataset {
	out := ds[:0:0]
	for _, ex := range ds {
		if ex.Label < numClasses {
			out = append(out, ex)
		}
	}
	return out
}

// partitionByLabelShards sorts by label and deals contiguous shards to clients, two shards each,
// the classic non-IID partitioning of centrally stored image benchmarks.
func partitionByLabelShards(ds Dataset, numClients int, prefix string) *InMemory {
	sorted := append(Dataset(nil), ds...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Label < sorted[j].Label })

	numShards := numClients * 2
	shardSize := mmath.Max(1, len(sorted)/numShards)
	clients := make(map[string]Dataset, numClients)
	for i := 0; i < numClients; i++ {
		var ds Dataset
		for _, shard := range []int{i, i + numClients} {
			start := shard * shardSize
			if start >= len(sorted) {
				continue
			}
			end := mmath.Min(start+shardSize, len(sorted))
			ds = append(ds, sorted[start:end]...)
		}
		clients[clientID(prefix, i)] = ds
	}
	return NewInMemory(clients)
}

func clientID(prefix string, i int) string {
	return fmt.Sprintf("%s_%04d", prefix, i)
}

const (
	idxImagesMagic = 2051
	idxLabelsMagic = 2049
)

// readIDXPair reads an IDX image file and its label file, accepting either plain or .gz names.
func readIDXPair(dir, images, labels string) (Dataset, error) {
	imgData, rows, cols, err := readIDXImages(filepath.Join(dir, images))
	if err != nil {
		return nil, err
	}
	labelData, err := readIDXLabels(filepath.Join(dir, labels))
	if err != nil {
		return nil, err
	}
	if len(imgData) != len(labelData) {
		return nil, errors.Errorf("IDX pair mismatch: %d images vs %d labels",
			len(imgData), len(labelData))
	}
	dim := rows * cols
	ds := make(Dataset, len(imgData))
	for i, img := range imgData {
		features := make([]float64, dim)
		for j, px := range img {
			features[j] = float64(px) / 255.0
		}
		ds[i] = Example{Features: features, Label: int(labelData[i])}
	}
	return ds, nil
}

func openMaybeGzip(path string) (io.ReadCloser, error) {
	for _, candidate := range []string{path, path + ".gz"} {
		f, err := os.Open(candidate)
		if err != nil {
			continue
		}
		if strings.HasSuffix(candidate, ".gz") {
			gz, err := gzip.NewReader(f)
			if err != nil {
				f.Close()
				return nil, errors.Wrapf(err, "opening %s", candidate)
			}
			return struct {
				io.Reader
				io.Closer
			}{gz, f}, nil
		}
		return f, nil
	}
	return nil, errors.Errorf("no IDX file found at %s[.gz]", path)
}

func readIDXImages(path string) (images [][]byte, rows, cols int, err error) {
	r, err := openMaybeGzip(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer r.Close()

	var header [4]uint32
	for i := range header {
		if err := binary.Read(r, binary.BigEndian, &header[i]); err != nil {
			return nil, 0, 0, errors.Wrapf(err, "reading IDX header of %s", path)
		}
	}
	if header[0] != idxImagesMagic {
		return nil, 0, 0, errors.Errorf("bad IDX image magic %d in %s", header[0], path)
	}
	count, rows, cols := int(header[1]), int(header[2]), int(header[3])
	images = make([][]byte, count)
	for i := range images {
		images[i] = make([]byte, rows*cols)
		if _, err := io.ReadFull(r, images[i]); err != nil {
			return nil, 0, 0, errors.Wrapf(err, "reading image %d of %s", i, path)
		}
	}
	return images, rows, cols, nil
}

func readIDXLabels(path string) ([]byte, error) {
	r, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var header [2]uint32
	for i := range header {
		if err := binary.Read(r, binary.BigEndian, &header[i]); err != nil {
			return nil, errors.Wrapf(err, "reading IDX header of %s", path)
		}
	}
	if header[0] != idxLabelsMagic {
		return nil, errors.Errorf("bad IDX label magic %d in %s", header[0], path)
	}
	labels := make([]byte, int(header[1]))
	if _, err := io.ReadFull(r, labels); err != nil {
		return nil, errors.Wrapf(err, "reading labels of %s", path)
	}
	return labels, nil
}
