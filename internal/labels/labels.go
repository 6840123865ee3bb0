// Package labels reads and writes the cleaned label table, a CSV file with a
// header row and one row per image.
package labels

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Column names shared by the built-in processors and the run report.
const (
	ColumnSiteID     = "site_id"
	ColumnPatientID  = "patient_id"
	ColumnImageID    = "image_id"
	ColumnLaterality = "laterality"
	ColumnView       = "view"
	ColumnCancer     = "cancer"
)

var (
	// ErrEmptyTable is returned when a label file has no header row.
	ErrEmptyTable = errors.New("label table is empty")

	// ErrMissingColumn is returned by Column for names not in the header.
	ErrMissingColumn = errors.New("label table column not found")
)

// Table is an in-memory label table.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of name in the header.
func (t *Table) Column(name string) (int, error) {
	for i, h := range t.Header {
		if h == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrMissingColumn, name)
}

// Values returns the values of column name, one per row.
func (t *Table) Values(name string) ([]string, error) {
	idx, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			values[i] = row[idx]
		}
	}
	return values, nil
}

// Read loads the label table at path.
func Read(path string) (*Table, error) {
	f, err := os.Open(path) //nolint:gosec // Path is derived from the run configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open label table: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse label table %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTable, path)
	}

	return &Table{Header: records[0], Rows: records[1:]}, nil
}

// Write stores t at path, creating parent directories as needed.
// The file is written to a temporary name first and renamed into place.
func Write(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create label directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".labels-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create label table: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // Removed only if rename did not happen

	w := csv.NewWriter(tmp)
	if err := w.Write(t.Header); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write label header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write label rows: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close label table: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move label table into place: %w", err)
	}
	return nil
}

// CountRows returns the number of data rows in the label table at path.
func CountRows(path string) (int, error) {
	t, err := Read(path)
	if err != nil {
		return 0, err
	}
	return len(t.Rows), nil
}
