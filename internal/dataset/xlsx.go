package dataset

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// LoadXLSX reads the selected sheet of a workbook, treating its first row as the header.
func LoadXLSX(r io.Reader, name string, opt Options) (*Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ParseError{Name: name, Err: fmt.Errorf("open xlsx: %w", err)}
	}
	defer f.Close()

	sheet := opt.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, &ParseError{Name: name, Err: errors.New("workbook has no sheets")}
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &ParseError{Name: name, Err: fmt.Errorf("read sheet %q: %w", sheet, err)}
	}
	if len(rows) == 0 {
		return nil, &ParseError{Name: name, Err: fmt.Errorf("sheet %q is empty", sheet)}
	}
	header := rows[0]
	for i, rec := range rows[1:] {
		if len(rec) > len(header) {
			return nil, &ParseError{Name: name, Line: i + 2, Err: fmt.Errorf("expected %d fields, got %d", len(header), len(rec))}
		}
	}
	return fromRecords(name, header, rows[1:], opt)
}
