package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insightcopilot/internal/app"
	"github.com/KaramelBytes/insightcopilot/internal/chart"
	"github.com/KaramelBytes/insightcopilot/internal/utils"
)

var (
	chartFlags    datasetFlags
	chartOutput   string
	chartShowCode bool
	chartWidth    int
	chartHeight   int
)

var chartCmd = &cobra.Command{
	Use:   "chart <file> [description...]",
	Short: "Turn a plain-language request into a chart",
	Long: `Ask the model for a chart of the dataset. Without a description the model
first suggests one. The chart is written as SVG or as a standalone HTML page
depending on the --output extension.`,
	Args: cobra.MinimumNArgs(1),
	Example: `  insightcopilot chart sales.csv units by region as a bar chart -o units.svg
  insightcopilot chart sales.csv --chart-mode code --show-code -o trend.html`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(chartFlags)
		if err != nil {
			return err
		}
		sess, err := openSession(cmd.Context(), svc, args[0])
		if err != nil {
			return err
		}
		desc := strings.Join(args[1:], " ")
		if desc == "" {
			sug := svc.SuggestChart(cmd.Context(), sess)
			if sug.Notice != nil {
				printNotice(sug.Notice)
				return nil
			}
			streamed = false
			color.New(color.FgCyan).Fprintln(os.Stderr, "ℹ Suggested:", sug.Text)
		}
		res := svc.GenerateChart(cmd.Context(), sess, desc)
		if chartShowCode && res.Code != "" {
			fmt.Fprintf(os.Stderr, "--- %s ---\n%s\n", formName(res.Form), res.Code)
		}
		if res.Notice != nil {
			printNotice(res.Notice)
			return nil
		}
		return writeChart(res.Figure, chartOutput, chartWidth, chartHeight)
	},
}

var suggestFlags datasetFlags

var chartSuggestCmd = &cobra.Command{
	Use:   "suggest <file>",
	Short: "Suggest one useful chart for a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(suggestFlags)
		if err != nil {
			return err
		}
		sess, err := openSession(cmd.Context(), svc, args[0])
		if err != nil {
			return err
		}
		printText(svc.SuggestChart(cmd.Context(), sess))
		return nil
	},
}

func formName(form string) string {
	if form == "" {
		return "model output"
	}
	return form
}

// writeChart renders fig to path (.svg, .html) or SVG on stdout when path is empty.
func writeChart(fig *chart.Figure, path string, width, height int) error {
	if fig == nil {
		printNotice(&app.Notice{Level: app.LevelWarning, Message: app.NoChartMessage})
		return nil
	}
	if path == "" {
		fmt.Println(fig.SVG(width, height))
		return nil
	}
	var out string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".svg":
		out = fig.SVG(width, height)
	case ".html", ".htm":
		out = fig.HTML()
	default:
		return fmt.Errorf("unsupported output %q (use .svg or .html)", filepath.Ext(path))
	}
	if err := utils.SafeWriteFile(path, []byte(out)); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	fmt.Printf("✓ Wrote %s chart (%d points) to %s\n", fig.Kind, fig.Points(), path)
	return nil
}

func init() {
	rootCmd.AddCommand(chartCmd)
	chartCmd.AddCommand(chartSuggestCmd)

	chartFlags.register(chartCmd)
	chartCmd.Flags().StringVarP(&chartOutput, "output", "o", "", "write the chart to a .svg or .html file (default SVG on stdout)")
	chartCmd.Flags().BoolVar(&chartShowCode, "show-code", false, "print the chart artifact the model wrote")
	chartCmd.Flags().IntVar(&chartWidth, "width", chart.DefaultWidth, "SVG width in pixels")
	chartCmd.Flags().IntVar(&chartHeight, "height", chart.DefaultHeight, "SVG height in pixels")

	suggestFlags.register(chartSuggestCmd)
}
