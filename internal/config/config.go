package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/insightcopilot/internal/ai"
)

// EnvPrefix is prepended to every environment override, e.g. INSIGHTCOPILOT_MODEL.
const EnvPrefix = "INSIGHTCOPILOT"

// Global configuration structure.
type Global struct {
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	Provider    string  `mapstructure:"provider" yaml:"provider"`
	Model       string  `mapstructure:"model" yaml:"model"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`

	// HTTP/Retry configuration
	HTTPTimeoutSec    int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RequestTimeoutSec int `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec"`
	RetryMaxAttempts  int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs  int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs   int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host"`

	// Dataset and prompt shaping
	PreviewRows   int    `mapstructure:"preview_rows" yaml:"preview_rows"`
	InsightsCount int    `mapstructure:"insights_count" yaml:"insights_count"`
	MaxRows       int    `mapstructure:"max_rows" yaml:"max_rows"`
	ChartMode     string `mapstructure:"chart_mode" yaml:"chart_mode"`

	// Web server
	ServerAddr    string `mapstructure:"server_addr" yaml:"server_addr"`
	SessionTTLMin int    `mapstructure:"session_ttl_min" yaml:"session_ttl_min"`
	UploadLimitMB int    `mapstructure:"upload_limit_mb" yaml:"upload_limit_mb"`

	// Observability
	LogFile      string `mapstructure:"log_file" yaml:"log_file"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`
	OtelEnabled  bool   `mapstructure:"otel_enabled" yaml:"otel_enabled"`
	OtelEndpoint string `mapstructure:"otel_endpoint" yaml:"otel_endpoint"`
}

// StartupError is fatal: nothing else may run when configuration is invalid.
type StartupError struct {
	Reason string
}

func (e *StartupError) Error() string { return "startup: " + e.Reason }

// Dir returns ~/.insightcopilot.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".insightcopilot"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.insightcopilot/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	// the file may hold an API key
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LoadDotEnv loads KEY=value pairs from the given files (default ".env") into
// the process environment without overriding variables already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (applied by the caller) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("api_key", "")
	v.SetDefault("provider", ai.ProviderOpenAI)
	v.SetDefault("model", "")
	v.SetDefault("base_url", "")
	v.SetDefault("temperature", 0.2)
	v.SetDefault("max_tokens", 1024)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("request_timeout_sec", 120)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("ollama_host", ai.DefaultOllamaHost)
	v.SetDefault("preview_rows", 5)
	v.SetDefault("insights_count", 5)
	v.SetDefault("max_rows", 200000)
	v.SetDefault("chart_mode", "spec")
	v.SetDefault("server_addr", "127.0.0.1:8501")
	v.SetDefault("session_ttl_min", 60)
	v.SetDefault("upload_limit_mb", 50)
	v.SetDefault("log_file", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "localhost:4318")

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.APIKey == "" {
		c.APIKey = providerKeyFromEnv(c.Provider)
	}
	if c.Model == "" {
		c.Model = ai.DefaultModel(c.Provider)
	}
	return &c, nil
}

// providerKeyFromEnv falls back to the conventional variable of each hosted provider.
func providerKeyFromEnv(provider string) string {
	var names []string
	switch provider {
	case ai.ProviderOpenRouter:
		names = []string{"OPENROUTER_API_KEY", "OPENAI_API_KEY"}
	default:
		names = []string{"OPENAI_API_KEY", "OPENROUTER_API_KEY"}
	}
	for _, n := range names {
		if k := strings.TrimSpace(os.Getenv(n)); k != "" {
			return k
		}
	}
	return ""
}

// Validate returns a *StartupError when the configuration cannot serve requests.
func (c *Global) Validate() error {
	if !slices.Contains(ai.Providers(), c.Provider) {
		return &StartupError{Reason: fmt.Sprintf("unknown provider %q (available: %s)", c.Provider, strings.Join(ai.Providers(), ", "))}
	}
	if ai.NeedsAPIKey(c.Provider) && strings.TrimSpace(c.APIKey) == "" {
		return &StartupError{Reason: fmt.Sprintf("no API key configured for provider %q; set %s_API_KEY or OPENAI_API_KEY (a .env file is read at startup)", c.Provider, EnvPrefix)}
	}
	if c.ChartMode != "spec" && c.ChartMode != "code" {
		return &StartupError{Reason: fmt.Sprintf("chart_mode must be spec or code, got %q", c.ChartMode)}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return &StartupError{Reason: fmt.Sprintf("temperature %.2f out of range [0, 2]", c.Temperature)}
	}
	return nil
}

// RuntimeConfig maps the configuration onto an LLM runtime configuration.
func (c *Global) RuntimeConfig() ai.RuntimeConfig {
	return ai.RuntimeConfig{
		HTTPTimeout: time.Duration(c.HTTPTimeoutSec) * time.Second,
		RetryMax:    c.RetryMaxAttempts,
		BaseDelay:   time.Duration(c.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.RetryMaxDelayMs) * time.Millisecond,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		Host:        c.OllamaHost,
	}
}

// RequestTimeout bounds one LLM action.
func (c *Global) RequestTimeout() time.Duration {
	if c.RequestTimeoutSec <= 0 {
		return ai.DefaultRequestTimeout
	}
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// SessionTTL is the idle lifetime of a web session.
func (c *Global) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMin) * time.Minute
}

// Redacted returns a copy safe to print.
func (c *Global) Redacted() Global {
	out := *c
	if k := out.APIKey; k != "" {
		if len(k) > 8 {
			out.APIKey = k[:4] + "…" + k[len(k)-4:]
		} else {
			out.APIKey = "****"
		}
	}
	return out
}
