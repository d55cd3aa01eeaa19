package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShakespeareCharIndex(t *testing.T) {
	require.Equal(t, 1, ShakespeareCharIndex(' '))
	require.Equal(t, 2, ShakespeareCharIndex('a'))
	// Out-of-vocabulary characters map to 0.
	require.Equal(t, 0, ShakespeareCharIndex('é'))
	require.Equal(t, 0, ShakespeareCharIndex('\n'))
}

func TestCharWindows(t *testing.T) {
	ds := charWindows("abc")
	require.Len(t, ds, 2)

	// First example: context "a" predicting 'b'.
	require.Equal(t, ShakespeareCharIndex('b'), ds[0].Label)
	require.InDelta(t, 1.0, ds[0].Features[ShakespeareCharIndex('a')], 1e-12)

	// Second example: context "ab" predicting 'c'.
	require.Equal(t, ShakespeareCharIndex('c'), ds[1].Label)
	require.InDelta(t, 1.0, ds[1].Features[ShakespeareCharIndex('a')], 1e-12)
	require.InDelta(t, 1.0, ds[1].Features[ShakespeareCharIndex('b')], 1e-12)

	require.Empty(t, charWindows(""))
	require.Empty(t, charWindows("x"))
}

func TestCharWindowsContextIsBounded(t *testing.T) {
	long := "aaaaaaaaaaaaaaaaaaaaaaaab"
	ds := charWindows(long)
	last := ds[len(ds)-1]
	sum := 0.0
	for _, v := range last.Features {
		sum += v
	}
	require.InDelta(t, float64(ShakespeareContextLen), sum, 1e-12)
}

func TestLoadShakespeareFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plays.txt")
	content := "HAMLET: to be or not to be\n" +
		"OPHELIA: my lord\n" +
		"HAMLET: that is the question\n" +
		"Stage direction without speaker\n" +
		"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	train, test, err := LoadShakespeare(ShakespeareConfig{DataFile: path})
	require.NoError(t, err)
	require.Equal(t, []string{"HAMLET", "OPHELIA"}, train.ClientIDs())

	hamlet, err := train.ClientDataset("HAMLET")
	require.NoError(t, err)
	require.NotEmpty(t, hamlet)

	// The held-out split is roughly a tenth of each client's stream.
	hamletTest, err := test.ClientDataset("HAMLET")
	require.NoError(t, err)
	require.Less(t, len(hamletTest), len(hamlet))
}

func TestLoadShakespeareEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("no speakers here\n"), 0o644))
	_, _, err := LoadShakespeare(ShakespeareConfig{DataFile: path})
	require.ErrorContains(t, err, "no \"SPEAKER: text\" lines")
}

func TestLoadShakespeareSynthetic(t *testing.T) {
	train, test, err := LoadShakespeare(ShakespeareConfig{
		NumClients: 5, ExamplesPerClient: 50, Seed: 1,
	})
	require.NoError(t, err)
	require.Len(t, train.ClientIDs(), 5)
	require.NotEmpty(t, test.ClientIDs())

	for _, id := range train.ClientIDs() {
		ds, err := train.ClientDataset(id)
		require.NoError(t, err)
		require.NotEmpty(t, ds)
		for _, ex := range ds {
			require.Len(t, ex.Features, ShakespeareVocabSize)
			require.GreaterOrEqual(t, ex.Label, 0)
			require.Less(t, ex.Label, ShakespeareVocabSize)
		}
	}
}
