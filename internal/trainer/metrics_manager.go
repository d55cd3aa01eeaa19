package trainer

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

const roundColumn = "round"

// CSVMetricsManager accumulates per-round scalar metrics into a CSV file keyed by round number.
// Columns grow as new metric names appear; the file is rewritten with the widened header when
// they do, so sparse metrics (eval rounds, the final test pass) stay in one table.
type CSVMetricsManager struct {
	path    string
	columns []string
	rows    []map[string]float64
}

// NewCSVMetricsManager opens or creates the metrics file at path, loading any existing rows so a
// resumed run can continue the table.
func NewCSVMetricsManager(path string) (*CSVMetricsManager, error) {
	m := &CSVMetricsManager{path: path}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *CSVMetricsManager) load() error {
	f, err := os.Open(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "opening metrics file")
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return errors.Wrap(err, "parsing metrics file")
	}
	if len(records) == 0 {
		return nil
	}
	m.columns = records[0]
	for _, rec := range records[1:] {
		row := map[string]float64{}
		for i, cell := range rec {
			if cell == "" || i >= len(m.columns) {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return errors.Wrapf(err, "bad metric value %q", cell)
			}
			row[m.columns[i]] = v
		}
		m.rows = append(m.rows, row)
	}
	return nil
}

// Save records metrics for one round and flushes the file.
func (m *CSVMetricsManager) Save(round int, values map[string]float64) error {
	row := map[string]float64{roundColumn: float64(round)}
	for k, v := range values {
		row[k] = v
	}
	m.rows = append(m.rows, row)
	m.mergeColumns(row)
	return m.flush()
}

// ClearRoundsAfter drops every recorded row at or beyond round, the resume semantics: a restored
// run re-records the rounds it replays.
func (m *CSVMetricsManager) ClearRoundsAfter(round int) error {
	kept := m.rows[:0]
	for _, row := range m.rows {
		if int(row[roundColumn]) < round {
			kept = append(kept, row)
		}
	}
	m.rows = kept
	return m.flush()
}

func (m *CSVMetricsManager) mergeColumns(row map[string]float64) {
	have := map[string]bool{}
	for _, c := range m.columns {
		have[c] = true
	}
	var added []string
	for k := range row {
		if !have[k] {
			added = append(added, k)
		}
	}
	if len(m.columns) == 0 {
		m.columns = []string{roundColumn}
		have[roundColumn] = true
		for i, c := range added {
			if c == roundColumn {
				added = append(added[:i], added[i+1:]...)
				break
			}
		}
	}
	sort.Strings(added)
	m.columns = append(m.columns, added...)
}

func (m *CSVMetricsManager) flush() error {
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "writing metrics file")
	}
	w := csv.NewWriter(f)
	if err := w.Write(m.columns); err != nil {
		f.Close()
		return errors.Wrap(err, "writing metrics header")
	}
	for _, row := range m.rows {
		rec := make([]string, len(m.columns))
		for i, c := range m.columns {
			if v, ok := row[c]; ok {
				rec[i] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			return errors.Wrap(err, "writing metrics row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}

// Rounds returns the recorded round numbers in file order.
func (m *CSVMetricsManager) Rounds() []int {
	out := make([]int, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, int(row[roundColumn]))
	}
	return out
}
