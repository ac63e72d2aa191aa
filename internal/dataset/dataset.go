package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// Kind is the inferred scalar type of a column.
type Kind string

const (
	KindNumeric  Kind = "numeric"
	KindText     Kind = "text"
	KindDatetime Kind = "datetime"
	KindBoolean  Kind = "boolean"
)

// DefaultPreviewRows is used when Preview is called with n <= 0.
const DefaultPreviewRows = 5

// Column describes one named column and its inferred kind.
type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Options controls how tabular input is read.
type Options struct {
	// Delimiter for delimited text. If 0, sniffed from the header line among ',', ';', '\t', '|'.
	Delimiter rune
	// MaxRows limits rows kept in memory; 0 means unlimited.
	MaxRows int
	// Sheet selects an XLSX sheet by name; empty means the first sheet.
	Sheet string
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
}

// DefaultOptions returns reasonable defaults for uploads.
func DefaultOptions() Options {
	return Options{MaxRows: 200000}
}

// Dataset is an immutable in-memory table. Rows are aligned by position and
// every cell is kept as its trimmed source text; numeric columns additionally
// carry parsed values (NaN for missing).
type Dataset struct {
	name     string
	cols     []Column
	cells    [][]string  // row-major
	nums     [][]float64 // column-major, nil for non-numeric columns
	total    int
	warnings []string
}

// Field is one cell of a previewed row.
type Field struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// Record is an ordered row of fields.
type Record []Field

// Get returns the value of the named column in the record.
func (r Record) Get(column string) (string, bool) {
	for _, f := range r {
		if f.Column == column {
			return f.Value, true
		}
	}
	return "", false
}

// Name returns the source file name.
func (d *Dataset) Name() string { return d.name }

// Len returns the number of rows held in memory.
func (d *Dataset) Len() int { return len(d.cells) }

// TotalRows returns the number of data rows seen in the source, which may exceed Len when MaxRows applied.
func (d *Dataset) TotalRows() int { return d.total }

// Columns returns a copy of the column schema.
func (d *Dataset) Columns() []Column {
	out := make([]Column, len(d.cols))
	copy(out, d.cols)
	return out
}

// Warnings returns notes recorded while loading.
func (d *Dataset) Warnings() []string {
	out := make([]string, len(d.warnings))
	copy(out, d.warnings)
	return out
}

// ColumnIndex resolves a column by exact name, falling back to a case-insensitive match.
func (d *Dataset) ColumnIndex(name string) (int, bool) {
	for i, c := range d.cols {
		if c.Name == name {
			return i, true
		}
	}
	for i, c := range d.cols {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return i, true
		}
	}
	return -1, false
}

// Column returns the schema entry for the named column.
func (d *Dataset) Column(name string) (Column, bool) {
	i, ok := d.ColumnIndex(name)
	if !ok {
		return Column{}, false
	}
	return d.cols[i], true
}

// Value returns the raw cell text at (row, col).
func (d *Dataset) Value(row, col int) string {
	if row < 0 || row >= len(d.cells) || col < 0 || col >= len(d.cols) {
		return ""
	}
	return d.cells[row][col]
}

// Float returns the parsed numeric value at (row, col). ok is false for
// non-numeric columns and missing or unparseable cells.
func (d *Dataset) Float(row, col int) (float64, bool) {
	if col < 0 || col >= len(d.nums) || d.nums[col] == nil || row < 0 || row >= len(d.cells) {
		return 0, false
	}
	v := d.nums[col][row]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Strings returns a copy of the raw values of one column.
func (d *Dataset) Strings(col int) []string {
	if col < 0 || col >= len(d.cols) {
		return nil
	}
	out := make([]string, len(d.cells))
	for i, row := range d.cells {
		out[i] = row[col]
	}
	return out
}

// Preview returns the first min(n, Len()) rows. n <= 0 selects DefaultPreviewRows.
func (d *Dataset) Preview(n int) []Record {
	if n <= 0 {
		n = DefaultPreviewRows
	}
	if n > len(d.cells) {
		n = len(d.cells)
	}
	out := make([]Record, n)
	for i := 0; i < n; i++ {
		rec := make(Record, len(d.cols))
		for j, c := range d.cols {
			rec[j] = Field{Column: c.Name, Value: d.cells[i][j]}
		}
		out[i] = rec
	}
	return out
}

// Fingerprint returns a content hash over schema and cells.
func (d *Dataset) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x1e", d.name)
	for _, c := range d.cols {
		fmt.Fprintf(h, "%s\x1f%s\x1f", c.Name, c.Kind)
	}
	h.Write([]byte{0x1e})
	for _, row := range d.cells {
		for _, v := range row {
			h.Write([]byte(v))
			h.Write([]byte{0x1f})
		}
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}
