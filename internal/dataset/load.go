package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Load reads delimited text with a header row into a Dataset.
func Load(r io.Reader, name string, opt Options) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Name: name, Err: fmt.Errorf("read: %w", err)}
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Name: name, Err: errors.New("file is empty")}
	}

	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(firstLine(data))
	}
	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, &ParseError{Name: name, Line: 1, Err: fmt.Errorf("read header: %w", err)}
	}
	var records [][]string
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &ParseError{Name: name, Line: pe.Line, Err: pe.Err}
			}
			return nil, &ParseError{Name: name, Err: err}
		}
		if len(rec) > len(header) {
			line, _ := cr.FieldPos(0)
			return nil, &ParseError{Name: name, Line: line, Err: fmt.Errorf("expected %d fields, got %d", len(header), len(rec))}
		}
		row := make([]string, len(rec))
		copy(row, rec)
		records = append(records, row)
	}
	if opt.DecimalSeparator == 0 && delim == ';' {
		opt.DecimalSeparator = ','
	}
	return fromRecords(name, header, records, opt)
}

// LoadFile opens path and dispatches on its extension.
func LoadFile(path string, opt Options) (*Dataset, error) {
	name := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()
	return LoadNamed(f, name, opt)
}

// LoadNamed dispatches on the extension of name: .csv, .tsv and .txt are read
// as delimited text and .xlsx as a workbook.
func LoadNamed(r io.Reader, name string, opt Options) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", "":
		return Load(r, name, opt)
	case ".tsv":
		if opt.Delimiter == 0 {
			opt.Delimiter = '\t'
		}
		return Load(r, name, opt)
	case ".xlsx":
		return LoadXLSX(r, name, opt)
	default:
		return nil, &ParseError{Name: name, Err: fmt.Errorf("unsupported file type %q (use .csv, .tsv or .xlsx)", filepath.Ext(name))}
	}
}

func fromRecords(name string, header []string, records [][]string, opt Options) (*Dataset, error) {
	if len(header) == 0 || (len(header) == 1 && strings.TrimSpace(header[0]) == "") {
		return nil, &ParseError{Name: name, Line: 1, Err: errors.New("missing header row")}
	}
	ncol := len(header)
	d := &Dataset{name: name, cols: make([]Column, ncol)}
	seen := map[string]int{}
	for i, h := range header {
		n := strings.TrimSpace(h)
		if n == "" {
			n = fmt.Sprintf("column_%d", i+1)
		}
		if c, dup := seen[n]; dup {
			base := n
			for {
				n = fmt.Sprintf("%s.%d", base, c)
				c++
				if _, taken := seen[n]; !taken && !laterHeader(header[i+1:], n) {
					break
				}
			}
			seen[base] = c
		}
		seen[n] = 1
		d.cols[i] = Column{Name: n}
	}

	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = math.MaxInt
	}
	for _, rec := range records {
		d.total++
		if len(d.cells) >= maxRows {
			continue
		}
		row := make([]string, ncol)
		for j := 0; j < ncol && j < len(rec); j++ {
			row[j] = strings.TrimSpace(rec[j])
		}
		d.cells = append(d.cells, row)
	}
	if d.total > len(d.cells) {
		d.warnings = append(d.warnings, fmt.Sprintf("kept only %d/%d rows due to MaxRows", len(d.cells), d.total))
	}

	d.nums = make([][]float64, ncol)
	for j := range d.cols {
		kind, nums := inferColumn(d.cells, j, opt)
		d.cols[j].Kind = kind
		d.nums[j] = nums
	}
	return d, nil
}

// inferColumn decides a column kind by the predominant parsed type among non-missing cells.
func inferColumn(cells [][]string, j int, opt Options) (Kind, []float64) {
	var numCnt, dtCnt, boolCnt, txtCnt int
	vals := make([]float64, len(cells))
	for i, row := range cells {
		v := row[j]
		vals[i] = math.NaN()
		if IsMissing(v) {
			continue
		}
		if _, ok := parseBool(v); ok {
			boolCnt++
			continue
		}
		if x, ok := parseNumeric(v, opt); ok {
			numCnt++
			vals[i] = x
			continue
		}
		if _, ok := ParseTime(v); ok {
			dtCnt++
			continue
		}
		txtCnt++
	}
	switch {
	case numCnt > 0 && numCnt >= dtCnt && numCnt >= txtCnt && numCnt >= boolCnt:
		return KindNumeric, vals
	case dtCnt > 0 && dtCnt >= txtCnt && dtCnt >= boolCnt:
		return KindDatetime, nil
	case boolCnt > 0 && boolCnt >= txtCnt:
		return KindBoolean, nil
	default:
		return KindText, nil
	}
}

var missingTokens = map[string]struct{}{
	"": {}, "na": {}, "n/a": {}, "nan": {}, "-nan": {}, "null": {}, "none": {}, "#n/a": {}, "<na>": {},
}

// laterHeader reports whether name appears verbatim among the remaining headers.
func laterHeader(rest []string, name string) bool {
	for _, h := range rest {
		if strings.TrimSpace(h) == name {
			return true
		}
	}
	return false
}

// IsMissing reports whether a cell is treated as a missing value.
func IsMissing(v string) bool {
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

func sniffDelimiter(line string) rune {
	best, bestN := ',', 0
	for _, c := range []rune{',', ';', '\t', '|'} {
		n := countOutsideQuotes(line, c)
		if n > bestN {
			best, bestN = c, n
		}
	}
	return best
}

func countOutsideQuotes(s string, c rune) int {
	n := 0
	inQ := false
	for _, r := range s {
		switch {
		case r == '"':
			inQ = !inQ
		case r == c && !inQ:
			n++
		}
	}
	return n
}

func firstLine(b []byte) string {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return strings.TrimRight(string(b[:i]), "\r")
	}
	return string(b)
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes":
		return true, true
	case "false", "no":
		return false, true
	}
	return false, false
}

var timeLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	"2006-01", "Jan 2006", "January 2006",
}

// ParseTime parses s against the datetime layouts used for inference.
func ParseTime(s string) (time.Time, bool) {
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var (
	groupedDot   = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d*)?$`)
	groupedComma = regexp.MustCompile(`^[+-]?\d{1,3}(\.\d{3})+(,\d*)?$`)
)

func parseNumeric(s string, opt Options) (float64, bool) {
	raw := strings.TrimSpace(s)
	raw = strings.ReplaceAll(raw, " ", "")
	raw = strings.TrimSuffix(raw, "%")
	raw = strings.TrimPrefix(raw, "$")
	if raw == "" {
		return 0, false
	}
	dec := opt.DecimalSeparator
	if dec == 0 {
		dec = '.'
	}
	thou := opt.ThousandsSeparator
	switch {
	case thou != 0 && thou != dec:
		raw = strings.ReplaceAll(raw, string(thou), "")
	case dec == '.' && groupedDot.MatchString(raw):
		raw = strings.ReplaceAll(raw, ",", "")
	case dec == ',' && groupedComma.MatchString(raw):
		raw = strings.ReplaceAll(raw, ".", "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
