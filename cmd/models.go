package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insightcopilot/internal/ai"
	"github.com/KaramelBytes/insightcopilot/internal/utils"
)

var modelsCmd = &cobra.Command{
	Use:         "models",
	Short:       "Inspect or replace the model catalog used for prompt sizing",
	Annotations: map[string]string{skipStartup: "true"},
	Example: `  insightcopilot models show
  insightcopilot models sync --file ./models.json --merge
  insightcopilot models fetch --url https://example.com/models.json`,
}

var modelsJSON bool

var modelsShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show current model catalog",
	Annotations: map[string]string{skipStartup: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := ai.Catalog()
		if modelsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cat)
		}
		keys := make([]string, 0, len(cat))
		for k := range cat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "MODEL\tCONTEXT\tUSD/1K IN\tUSD/1K OUT")
		for _, k := range keys {
			m := cat[k]
			fmt.Fprintf(tw, "%s\t%d\t%.5f\t%.5f\n", k, m.ContextTokens, m.InputPerK, m.OutputPerK)
		}
		return tw.Flush()
	},
}

var (
	syncPath  string
	syncMerge bool
)

var modelsSyncCmd = &cobra.Command{
	Use:         "sync",
	Short:       "Load model catalog/pricing from a JSON file",
	Annotations: map[string]string{skipStartup: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncPath == "" {
			return fmt.Errorf("--file is required")
		}
		m, err := ai.LoadCatalogFromJSON(syncPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		applyCatalog(m, syncMerge)
		return nil
	},
}

var (
	fetchURL    string
	fetchOutput string
	fetchMerge  bool
)

var modelsFetchCmd = &cobra.Command{
	Use:         "fetch",
	Short:       "Fetch model catalog/pricing JSON from a URL and apply it",
	Annotations: map[string]string{skipStartup: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if fetchURL == "" {
			return fmt.Errorf("--url is required")
		}
		m, err := fetchCatalog(fetchURL)
		if err != nil {
			return err
		}
		// Optionally write to file
		if fetchOutput != "" {
			data, err := utils.PrettyJSON(m)
			if err != nil {
				return err
			}
			if err := utils.SafeWriteFile(fetchOutput, data); err != nil {
				return fmt.Errorf("write file: %w", err)
			}
			fmt.Printf("✓ Saved catalog to %s\n", fetchOutput)
		}
		applyCatalog(m, fetchMerge)
		return nil
	},
}

func applyCatalog(m map[string]ai.ModelInfo, merge bool) {
	if merge {
		ai.MergeCatalog(m)
		fmt.Printf("✓ Merged %d models into the catalog\n", len(m))
		return
	}
	ai.OverrideCatalog(m)
	fmt.Printf("✓ Replaced the catalog with %d models\n", len(m))
}

// fetchCatalog downloads a JSON catalog.
func fetchCatalog(url string) (map[string]ai.ModelInfo, error) {
	client := &http.Client{Timeout: 20 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("fetch: unexpected status %s: %s", resp.Status, string(b))
	}
	var m map[string]ai.ModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return m, nil
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsSyncCmd)
	modelsCmd.AddCommand(modelsFetchCmd)

	modelsShowCmd.Flags().BoolVar(&modelsJSON, "json", false, "print the catalog as JSON")

	modelsSyncCmd.Flags().StringVar(&syncPath, "file", "", "path to JSON catalog file")
	modelsSyncCmd.Flags().BoolVar(&syncMerge, "merge", false, "merge into existing catalog instead of replacing")

	modelsFetchCmd.Flags().StringVar(&fetchURL, "url", "", "URL to JSON catalog file")
	modelsFetchCmd.Flags().StringVar(&fetchOutput, "output", "", "optional path to save the fetched JSON")
	modelsFetchCmd.Flags().BoolVar(&fetchMerge, "merge", false, "merge into existing catalog instead of replacing")
}
