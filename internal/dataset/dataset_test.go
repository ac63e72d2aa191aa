package dataset

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const salesCSV = "region,units,price,launched,active\n" +
	"north,10,2.5,2024-01-05,true\n" +
	"south,20,3.0,2024-02-10,false\n" +
	"north,30,,2024-03-15,yes\n" +
	"east,40,4.5,2024-04-20,no\n"

func mustLoad(t *testing.T, body string) *Dataset {
	t.Helper()
	ds, err := Load(strings.NewReader(body), "sales.csv", DefaultOptions())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return ds
}

func TestLoadInfersKinds(t *testing.T) {
	ds := mustLoad(t, salesCSV)
	if ds.Len() != 4 {
		t.Fatalf("rows = %d, want 4", ds.Len())
	}
	want := []Column{
		{Name: "region", Kind: KindText},
		{Name: "units", Kind: KindNumeric},
		{Name: "price", Kind: KindNumeric},
		{Name: "launched", Kind: KindDatetime},
		{Name: "active", Kind: KindBoolean},
	}
	if got := ds.Columns(); !reflect.DeepEqual(got, want) {
		t.Fatalf("columns = %+v, want %+v", got, want)
	}
	if _, ok := ds.Float(2, 2); ok {
		t.Fatalf("missing price should not parse")
	}
	if v, ok := ds.Float(3, 1); !ok || v != 40 {
		t.Fatalf("units[3] = %v,%v", v, ok)
	}
}

func TestLoadSemicolonDecimalComma(t *testing.T) {
	ds := mustLoad(t, "g;amount\nA;1.000,5\nB;0,25\n")
	c, ok := ds.Column("amount")
	if !ok || c.Kind != KindNumeric {
		t.Fatalf("amount kind = %+v", c)
	}
	if v, _ := ds.Float(0, 1); math.Abs(v-1000.5) > 1e-9 {
		t.Fatalf("amount[0] = %v", v)
	}
}

func TestLoadHeaderNormalization(t *testing.T) {
	ds := mustLoad(t, "a,,a\n1,2,3\n")
	var names []string
	for _, c := range ds.Columns() {
		names = append(names, c.Name)
	}
	if strings.Join(names, ",") != "a,column_2,a.1" {
		t.Fatalf("names = %v", names)
	}

	for body, want := range map[string]string{
		"a,a,a.1\n1,2,3\n":     "a,a.2,a.1",
		"a,a.1,a\n1,2,3\n":     "a,a.1,a.2",
		"x,x,x,x.1\n1,2,3,4\n": "x,x.2,x.3,x.1",
	} {
		ds := mustLoad(t, body)
		names = names[:0]
		for i, c := range ds.Columns() {
			names = append(names, c.Name)
			if j, ok := ds.ColumnIndex(c.Name); !ok || j != i {
				t.Fatalf("%q: column %q resolves to %d", body, c.Name, j)
			}
		}
		if got := strings.Join(names, ","); got != want {
			t.Fatalf("%q: names = %s, want %s", body, got, want)
		}
	}
}

func TestLoadShortRowsArePadded(t *testing.T) {
	ds := mustLoad(t, "a,b,c\n1,2\n")
	if got := ds.Value(0, 2); got != "" {
		t.Fatalf("padded cell = %q", got)
	}
}

func TestLoadParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":  "",
		"blank":  "   \n\n",
		"ragged": "a,b\n1,2\n1,2,3\n",
		"quote":  "a,b\n\"1,2\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			ds, err := Load(strings.NewReader(body), "bad.csv", DefaultOptions())
			if ds != nil {
				t.Fatalf("dataset should be unset on error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("want *ParseError, got %T %v", err, err)
			}
		})
	}
}

func TestRaggedRowReportsLine(t *testing.T) {
	_, err := Load(strings.NewReader("a,b\n1,2\n1,2,3\n"), "bad.csv", DefaultOptions())
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Line != 3 {
		t.Fatalf("want line 3, got %v", err)
	}
}

// Scenario A: 10 rows, 3 columns, preview of 5.
func TestPreviewCount(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,name,score\n")
	for i := 0; i < 10; i++ {
		b.WriteString(string(rune('0'+i)) + ",n" + string(rune('a'+i)) + "," + string(rune('0'+i)) + ".5\n")
	}
	ds := mustLoad(t, b.String())
	rows := ds.Preview(5)
	if len(rows) != 5 {
		t.Fatalf("preview rows = %d, want 5", len(rows))
	}
	if v, _ := rows[2].Get("name"); v != "nc" {
		t.Fatalf("row 2 name = %q", v)
	}
	if len(rows[0]) != 3 {
		t.Fatalf("record width = %d", len(rows[0]))
	}
	if n := len(ds.Preview(0)); n != DefaultPreviewRows {
		t.Fatalf("default preview = %d", n)
	}
	if n := len(ds.Preview(100)); n != 10 {
		t.Fatalf("preview(100) = %d", n)
	}
	if len(ds.Summary().Columns) != 3 {
		t.Fatalf("summary columns")
	}
}

func TestSummaryStats(t *testing.T) {
	ds := mustLoad(t, salesCSV)
	s := ds.Summary()
	units := s.Columns[1]
	if units.Count != 4 || units.Mean != 25 || units.Min != 10 || units.Max != 40 {
		t.Fatalf("units = %+v", units)
	}
	if math.Abs(units.Std-12.909944487358056) > 1e-9 {
		t.Fatalf("std = %v", units.Std)
	}
	if units.P25 != 17.5 || units.P50 != 25 || units.P75 != 32.5 {
		t.Fatalf("quartiles = %v %v %v", units.P25, units.P50, units.P75)
	}
	price := s.Columns[2]
	if price.Count != 3 || price.Missing != 1 {
		t.Fatalf("price = %+v", price)
	}
	region := s.Columns[0]
	if region.Unique != 3 || region.Top != "north" || region.Freq != 2 {
		t.Fatalf("region = %+v", region)
	}
	launched := s.Columns[3]
	if launched.First != "2024-01-05" || launched.Last != "2024-04-20" {
		t.Fatalf("launched range = %s..%s", launched.First, launched.Last)
	}
	d := s.Describe()
	if d["units"]["50%"] != 25.0 || d["region"]["top"] != "north" {
		t.Fatalf("describe = %v", d)
	}
}

func TestSummaryIdempotent(t *testing.T) {
	ds := mustLoad(t, salesCSV)
	before := ds.Fingerprint()
	a, b := ds.Summary(), ds.Summary()
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("summaries differ")
	}
	if a.Markdown() != b.Markdown() {
		t.Fatalf("markdown differs")
	}
	if ds.Fingerprint() != before {
		t.Fatalf("summary mutated dataset")
	}
}

func TestMarkdownSections(t *testing.T) {
	md := mustLoad(t, salesCSV).Summary().Markdown()
	for _, want := range []string{"[DATASET SUMMARY]", "[SCHEMA]", "- units: numeric", "top north (2)", "range 2024-01-05 to 2024-04-20"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestMaxRowsWarning(t *testing.T) {
	opt := DefaultOptions()
	opt.MaxRows = 2
	ds, err := Load(strings.NewReader(salesCSV), "sales.csv", opt)
	if err != nil {
		t.Fatal(err)
	}
	if ds.Len() != 2 || ds.TotalRows() != 4 {
		t.Fatalf("len=%d total=%d", ds.Len(), ds.TotalRows())
	}
	if w := ds.Summary().Warnings; len(w) != 1 {
		t.Fatalf("warnings = %v", w)
	}
}

func TestLoadFileDispatch(t *testing.T) {
	dir := t.TempDir()
	tsv := filepath.Join(dir, "data.tsv")
	if err := os.WriteFile(tsv, []byte("a\tb\n1\t2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ds, err := LoadFile(tsv, DefaultOptions())
	if err != nil || len(ds.Columns()) != 2 {
		t.Fatalf("tsv: %v", err)
	}
	bad := filepath.Join(dir, "data.json")
	if err := os.WriteFile(bad, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	var pe *ParseError
	if _, err := LoadFile(bad, DefaultOptions()); !errors.As(err, &pe) {
		t.Fatalf("want ParseError for .json, got %v", err)
	}
}

func TestLoadXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows := [][]any{{"city", "temp"}, {"Oslo", 3.5}, {"Rome", 18}}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	ds, err := LoadNamed(buf, "weather.xlsx", DefaultOptions())
	if err != nil {
		t.Fatalf("xlsx: %v", err)
	}
	if c, _ := ds.Column("temp"); c.Kind != KindNumeric {
		t.Fatalf("temp kind = %s", c.Kind)
	}
	if v, ok := ds.Float(1, 1); !ok || v != 18 {
		t.Fatalf("temp[1] = %v", v)
	}
}

func TestColumnIndexCaseInsensitive(t *testing.T) {
	ds := mustLoad(t, salesCSV)
	if i, ok := ds.ColumnIndex("Units"); !ok || i != 1 {
		t.Fatalf("ColumnIndex(Units) = %d,%v", i, ok)
	}
}

func TestSummaryJSONKeepsZeroStats(t *testing.T) {
	ds := mustLoad(t, "v,label\n-1,a\n1,b\n")
	b, err := json.Marshal(ds.Summary())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Summary
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var raw struct {
		Columns []map[string]any `json:"columns"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"mean", "std", "min", "p25", "p50", "p75", "max"} {
		if _, ok := raw.Columns[0][k]; !ok {
			t.Fatalf("numeric column lost %q: %s", k, b)
		}
		if _, ok := raw.Columns[1][k]; ok {
			t.Fatalf("text column carries %q: %s", k, b)
		}
	}
	if back.Columns[0].Mean != 0 || back.Columns[0].P50 != 0 || back.Columns[0].Min != -1 {
		t.Fatalf("round trip = %+v", back.Columns[0])
	}
}

func TestMarkdownTableTruncatesOnRunes(t *testing.T) {
	long := strings.Repeat("é", 100)
	ds := mustLoad(t, "note\n"+long+"\n")
	md := MarkdownTable(ds.Columns(), ds.Preview(1))
	if !utf8.ValidString(md) {
		t.Fatalf("invalid UTF-8 in %q", md)
	}
	if !strings.Contains(md, strings.Repeat("é", 77)+"...") || strings.Contains(md, strings.Repeat("é", 78)) {
		t.Fatalf("unexpected truncation: %s", md)
	}
}
