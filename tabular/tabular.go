// Package tabular reads and writes the CSV tables the benchmark persists:
// ground-truth outputs, target predictions and metric reports. Column order
// is preserved on round-trip and a prompt column is mandatory so tables stay
// correlated with the prompt set.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// PromptColumn must be present in every persisted table.
const PromptColumn = "prompt"

// Table is an ordered two-dimensional table.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Column returns the index of the named column.
func (t *Table) Column(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

// Values returns the named column's values in row order.
func (t *Table) Values(name string) ([]string, bool) {
	idx, ok := t.Column(name)
	if !ok {
		return nil, false
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, true
}

// Write persists t to path as CSV, header first, column order preserved.
func Write(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create table %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Columns); err != nil {
		return fmt.Errorf("write table header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write table rows: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush table %s: %w", path, err)
	}
	return nil
}

// Read loads a CSV table written by Write. A missing prompt column is an
// error because downstream consumers key rows by prompt order.
func Read(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table %s: %w", path, err)
	}
	defer f.Close()

	t, err := ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", path, err)
	}
	if _, ok := t.Column(PromptColumn); !ok {
		return nil, fmt.Errorf("table %s has no %q column", path, PromptColumn)
	}
	return t, nil
}

// ReadFrom parses CSV from r without requiring a prompt column. Used for
// foreign dataset files whose schema the benchmark does not control. Every
// row must have as many fields as the header; ragged rows are an error so
// column accessors never index past a short row.
func ReadFrom(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("table is empty")
	}
	return &Table{Columns: records[0], Rows: records[1:]}, nil
}

// FormatFloat renders a metric value so that ParseFloat recovers it exactly.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseFloat parses a metric value written by FormatFloat.
func ParseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
