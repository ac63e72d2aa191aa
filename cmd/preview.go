package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insightcopilot/internal/dataset"
	"github.com/KaramelBytes/insightcopilot/internal/utils"
)

var (
	previewFlags datasetFlags
	previewRows  int
)

var previewCmd = &cobra.Command{
	Use:   "preview <file>",
	Short: "Show the first rows of a dataset",
	Args:  cobra.ExactArgs(1),
	Example: `  insightcopilot preview sales.csv
  insightcopilot preview sales.csv -n 20 --delimiter ';'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(previewFlags)
		if err != nil {
			return err
		}
		sess, err := openSession(cmd.Context(), svc, args[0])
		if err != nil {
			return err
		}
		res := svc.Preview(sess, previewRows)
		if res.Notice != nil {
			printNotice(res.Notice)
			return nil
		}
		ds := sess.Dataset()
		fmt.Printf("%s: %d rows × %d columns\n\n", ds.Name(), ds.Len(), len(res.Columns))
		fmt.Print(dataset.MarkdownTable(res.Columns, res.Rows))
		return nil
	},
}

var (
	describeFlags datasetFlags
	describeJSON  bool
	describeOut   string
)

var describeCmd = &cobra.Command{
	Use:     "describe <file>",
	Aliases: []string{"analyze"},
	Short:   "Summarize every column of a dataset",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(describeFlags)
		if err != nil {
			return err
		}
		sess, err := openSession(cmd.Context(), svc, args[0])
		if err != nil {
			return err
		}
		res := svc.Describe(sess)
		if res.Notice != nil {
			printNotice(res.Notice)
			return nil
		}
		out := res.Markdown
		if describeJSON {
			b, err := utils.PrettyJSON(res.Summary.Describe())
			if err != nil {
				return err
			}
			out = string(b) + "\n"
		}
		if describeOut != "" {
			if err := utils.SafeWriteFile(describeOut, []byte(out)); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("✓ Wrote summary to %s\n", describeOut)
			return nil
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(describeCmd)

	previewFlags.register(previewCmd)
	previewCmd.Flags().IntVarP(&previewRows, "rows", "n", 0, "number of rows to show (default from config)")

	describeFlags.register(describeCmd)
	describeCmd.Flags().BoolVar(&describeJSON, "json", false, "print the per-column statistics as JSON")
	describeCmd.Flags().StringVarP(&describeOut, "output", "o", "", "write the summary to a file instead of stdout")
}
