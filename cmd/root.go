package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insightcopilot/internal/ai"
	"github.com/KaramelBytes/insightcopilot/internal/app"
	cfgpkg "github.com/KaramelBytes/insightcopilot/internal/config"
	"github.com/KaramelBytes/insightcopilot/internal/logger"
	"github.com/KaramelBytes/insightcopilot/internal/tracer"
)

// Commands annotated with skipStartup run without a validated LLM configuration.
const skipStartup = "skip-startup"

var (
	// Global flags
	cfgFile string
	envFile string
	debug   bool
	stream  bool

	flagProvider  string
	flagModel     string
	flagChartMode string
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration
	cfg *cfgpkg.Global
	log logger.ILogger = logger.NewNop()

	stopTracer tracer.Shutdown
)

var rootCmd = &cobra.Command{
	Use:   "insightcopilot",
	Short: "InsightCopilot: explore a CSV with an LLM",
	Long: `InsightCopilot loads a CSV (or XLSX) dataset, previews and summarizes it,
asks an LLM for business insights, answers questions about the data and turns
plain-language chart requests into charts through a restricted chart language.

Run "insightcopilot serve" for the browser UI.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPostRunE: teardown,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var se *cfgpkg.StartupError
		if errors.As(err, &se) {
			color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, "✗ Cannot start:", se.Reason)
			os.Exit(2)
		}
		color.New(color.FgRed).Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Assigned here rather than in the literal to avoid an initialization cycle
	// (startup -> loadConfig -> rootCmd).
	rootCmd.PersistentPreRunE = startup

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ~/.insightcopilot/config.yaml)")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file read at startup; existing variables win")
	pf.BoolVar(&debug, "debug", false, "enable debug logging")
	pf.BoolVar(&stream, "stream", false, "stream model output as it arrives")
	pf.StringVar(&flagProvider, "provider", "", "LLM provider: "+providersHelp())
	pf.StringVar(&flagModel, "model", "", "model name (overrides config)")
	pf.StringVar(&flagChartMode, "chart-mode", "", "chart artifact the model writes: spec or code")
	pf.IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	pf.IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max retry attempts on 429/5xx (overrides config)")
	pf.IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	pf.IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func providersHelp() string {
	return fmt.Sprintf("%v", ai.Providers())
}

// startup loads configuration and refuses to continue when it is unusable.
func startup(cmd *cobra.Command, _ []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}
	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	log = logger.NewZapLogger(logger.Options{FilePath: cfg.LogFile, Level: level, Quiet: !debug && cfg.LogFile != ""})

	if !needsStartup(cmd) {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	shutdown, err := tracer.Init(cmd.Context(), cfg.OtelEnabled, cfg.OtelEndpoint)
	if err != nil {
		log.Warn("cmd", "tracing disabled", map[string]any{"error": err})
	}
	stopTracer = shutdown
	return nil
}

// needsStartup reports whether cmd talks to a model and so needs a valid configuration.
func needsStartup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipStartup] != "" || c.Name() == "help" || c.Name() == "completion" || c.Name() == cobra.ShellCompRequestCmd {
			return false
		}
	}
	return cmd.Runnable()
}

func teardown(cmd *cobra.Command, _ []string) error {
	if stopTracer != nil {
		_ = stopTracer(context.Background())
	}
	_ = log.Sync()
	return nil
}

func loadConfig(cmd *cobra.Command) error {
	cfgpkg.LoadDotEnv(envFile)
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return &cfgpkg.StartupError{Reason: err.Error()}
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("provider") {
		cfg.Provider = flagProvider
		if !f.Changed("model") {
			cfg.Model = ai.DefaultModel(flagProvider)
		}
	}
	if f.Changed("model") && flagModel != "" {
		cfg.Model = flagModel
	}
	if f.Changed("chart-mode") {
		cfg.ChartMode = flagChartMode
	}
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
	return nil
}

// newService builds the application service for the configured provider.
func newService(load datasetFlags) (*app.Service, error) {
	rt, ok := ai.GetRuntime(cfg.Provider, cfg.RuntimeConfig())
	if !ok {
		return nil, &cfgpkg.StartupError{Reason: fmt.Sprintf("unknown provider %q", cfg.Provider)}
	}
	opt, err := load.options(cfg.MaxRows)
	if err != nil {
		return nil, err
	}
	svcOpt := app.Options{
		Model:          cfg.Model,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		RequestTimeout: cfg.RequestTimeout(),
		PreviewRows:    cfg.PreviewRows,
		InsightsCount:  cfg.InsightsCount,
		ChartMode:      cfg.ChartMode,
		Load:           opt,
	}
	if stream {
		svcOpt.Stream = func(delta string) {
			streamed = true
			fmt.Print(delta)
		}
	}
	return app.NewService(rt, log, svcOpt), nil
}
