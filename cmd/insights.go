package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var insightsFlags datasetFlags

var insightsCmd = &cobra.Command{
	Use:   "insights <file>",
	Short: "Ask the model for business insights about a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(insightsFlags)
		if err != nil {
			return err
		}
		sess, err := openSession(cmd.Context(), svc, args[0])
		if err != nil {
			return err
		}
		printText(svc.Insights(cmd.Context(), sess))
		return nil
	},
}

var askFlags datasetFlags

var askCmd = &cobra.Command{
	Use:   "ask <file> <question...>",
	Short: "Answer a question about a dataset",
	Args:  cobra.MinimumNArgs(2),
	Example: `  insightcopilot ask sales.csv "Which region sells the most units?"
  insightcopilot ask sales.csv what is the average price --stream`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(askFlags)
		if err != nil {
			return err
		}
		sess, err := openSession(cmd.Context(), svc, args[0])
		if err != nil {
			return err
		}
		printText(svc.Ask(cmd.Context(), sess, strings.Join(args[1:], " ")))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(askCmd)
	insightsFlags.register(insightsCmd)
	askFlags.register(askCmd)
}
