package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/insightcopilot/internal/ai"
	"github.com/KaramelBytes/insightcopilot/internal/app"
	cfgpkg "github.com/KaramelBytes/insightcopilot/internal/config"
)

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "View or set InsightCopilot configuration",
	Annotations: map[string]string{skipStartup: "true"},
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show effective configuration (API key redacted)",
	Annotations: map[string]string{skipStartup: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		b, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		fmt.Print(string(b))
		if err := cfg.Validate(); err != nil {
			printNotice(&app.Notice{Level: app.LevelWarning, Message: err.Error()})
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:         "set <key> <value>",
	Short:       "Set a config value and save to disk",
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{skipStartup: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setConfigValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Println("✓ Saved config")
		return nil
	},
}

// setConfigValue applies one key=value pair to c.
func setConfigValue(c *cfgpkg.Global, key, val string) error {
	atoi := func() (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return 0, fmt.Errorf("invalid int for %s: %v", key, val)
		}
		return i, nil
	}
	var err error
	switch key {
	case "api_key":
		c.APIKey = val
	case "provider":
		p := strings.ToLower(strings.TrimSpace(val))
		known := false
		for _, name := range ai.Providers() {
			known = known || name == p
		}
		if !known {
			return fmt.Errorf("invalid provider: %s (use one of %v)", val, ai.Providers())
		}
		c.Provider = p
	case "model":
		c.Model = val
	case "base_url":
		c.BaseURL = val
	case "ollama_host":
		c.OllamaHost = val
	case "chart_mode":
		if val != "spec" && val != "code" {
			return fmt.Errorf("invalid chart_mode: %s (use spec or code)", val)
		}
		c.ChartMode = val
	case "temperature":
		f, perr := strconv.ParseFloat(val, 64)
		if perr != nil || f < 0 || f > 2 {
			return fmt.Errorf("invalid float for temperature: %v", val)
		}
		c.Temperature = f
	case "max_tokens":
		c.MaxTokens, err = atoi()
	case "preview_rows":
		c.PreviewRows, err = atoi()
	case "insights_count":
		c.InsightsCount, err = atoi()
	case "max_rows":
		c.MaxRows, err = atoi()
	case "server_addr":
		c.ServerAddr = val
	case "session_ttl_min":
		c.SessionTTLMin, err = atoi()
	case "upload_limit_mb":
		c.UploadLimitMB, err = atoi()
	case "log_file":
		c.LogFile = val
	case "log_level":
		c.LogLevel = val
	case "otel_enabled":
		c.OtelEnabled, err = strconv.ParseBool(val)
	case "otel_endpoint":
		c.OtelEndpoint = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return err
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
