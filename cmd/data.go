package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insightcopilot/internal/app"
	"github.com/KaramelBytes/insightcopilot/internal/dataset"
	"github.com/KaramelBytes/insightcopilot/internal/session"
)

// set when the service streamed at least one chunk to stdout
var streamed bool

// datasetFlags are the parsing options shared by every command that reads a file.
type datasetFlags struct {
	delimiter string
	decimal   string
	thousands string
	sheet     string
	maxRows   int
}

func (f *datasetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "", "field delimiter: ',', ';', 'tab' or '|' (default sniffed)")
	cmd.Flags().StringVar(&f.decimal, "decimal", "", "decimal separator: '.' or 'comma' (default auto)")
	cmd.Flags().StringVar(&f.thousands, "thousands", "", "thousands separator: ',', '.' or 'space'")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "XLSX sheet name (default first sheet)")
	cmd.Flags().IntVar(&f.maxRows, "max-rows", 0, "maximum rows to load (overrides config)")
}

func (f datasetFlags) options(cfgMaxRows int) (dataset.Options, error) {
	opt := dataset.DefaultOptions()
	if cfgMaxRows > 0 {
		opt.MaxRows = cfgMaxRows
	}
	if f.maxRows > 0 {
		opt.MaxRows = f.maxRows
	}
	opt.Sheet = f.sheet
	switch f.delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	case "|":
		opt.Delimiter = '|'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", f.delimiter)
	}
	// Locale separators
	switch strings.ToLower(strings.TrimSpace(f.decimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "":
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", f.decimal)
	}
	switch strings.ToLower(f.thousands) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", f.thousands)
	}
	return opt, nil
}

// openSession uploads path into a fresh session, printing any load warnings.
func openSession(ctx context.Context, svc *app.Service, path string) (*session.Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	sess := session.New()
	res := svc.Upload(ctx, sess, filepath.Base(path), f)
	if res.Notice != nil && res.Notice.Level == app.LevelError {
		return nil, fmt.Errorf("%s", res.Notice.Message)
	}
	for _, w := range res.Warnings {
		printNotice(&app.Notice{Level: app.LevelWarning, Message: w})
	}
	return sess, nil
}

// printNotice writes a user-facing notice to stderr, colored by level.
func printNotice(n *app.Notice) {
	if n == nil {
		return
	}
	switch n.Level {
	case app.LevelError:
		color.New(color.FgRed).Fprintln(os.Stderr, "✗", n.Message)
	case app.LevelWarning:
		color.New(color.FgYellow).Fprintln(os.Stderr, "⚠", n.Message)
	default:
		color.New(color.FgCyan).Fprintln(os.Stderr, "ℹ", n.Message)
	}
}

// printText prints a model answer unless it was already streamed.
func printText(res *app.TextResult) {
	if res.Notice != nil {
		printNotice(res.Notice)
		return
	}
	if streamed {
		fmt.Println()
		streamed = false
		return
	}
	fmt.Println(res.Text)
}
