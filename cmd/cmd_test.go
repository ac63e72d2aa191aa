package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/insightcopilot/internal/chart"
	cfgpkg "github.com/KaramelBytes/insightcopilot/internal/config"
	"github.com/KaramelBytes/insightcopilot/internal/dataset"
)

func TestDatasetFlagsOptions(t *testing.T) {
	opt, err := datasetFlags{delimiter: "tab", decimal: "comma", thousands: "space", sheet: "Q1"}.options(1000)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opt.Delimiter != '\t' || opt.DecimalSeparator != ',' || opt.ThousandsSeparator != ' ' || opt.Sheet != "Q1" || opt.MaxRows != 1000 {
		t.Fatalf("unexpected options: %+v", opt)
	}
	opt, _ = datasetFlags{maxRows: 10}.options(1000)
	if opt.MaxRows != 10 {
		t.Fatalf("flag should win over config, got %d", opt.MaxRows)
	}
	for _, f := range []datasetFlags{{delimiter: "#"}, {decimal: "x"}, {thousands: "_"}} {
		if _, err := f.options(0); err == nil {
			t.Fatalf("expected error for %+v", f)
		}
	}
}

func TestSetConfigValue(t *testing.T) {
	c := &cfgpkg.Global{}
	for k, v := range map[string]string{
		"provider":        "Ollama",
		"chart_mode":      "code",
		"temperature":     "0.5",
		"session_ttl_min": "15",
		"otel_enabled":    "true",
	} {
		if err := setConfigValue(c, k, v); err != nil {
			t.Fatalf("%s=%s: %v", k, v, err)
		}
	}
	if c.Provider != "ollama" || c.ChartMode != "code" || c.Temperature != 0.5 || c.SessionTTLMin != 15 || !c.OtelEnabled {
		t.Fatalf("unexpected config: %+v", c)
	}
	for k, v := range map[string]string{
		"provider":    "acme",
		"chart_mode":  "python",
		"temperature": "3",
		"max_tokens":  "-1",
		"nope":        "1",
	} {
		if err := setConfigValue(c, k, v); err == nil {
			t.Fatalf("%s=%s: expected error", k, v)
		}
	}
}

func TestWriteChart(t *testing.T) {
	ds, err := dataset.Load(strings.NewReader("region,units\nnorth,10\nsouth,20\n"), "s.csv", dataset.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	fig, err := chart.NewExecutor().Execute(context.Background(), "fig = px.bar(df, x='region', y='units')", ds)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	for _, name := range []string{"c.svg", "c.html"} {
		path := filepath.Join(dir, name)
		if err := writeChart(fig, path, 400, 300); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		b, _ := os.ReadFile(path)
		if !strings.Contains(string(b), "<svg") {
			t.Fatalf("%s: no svg in output", name)
		}
	}
	if err := writeChart(fig, filepath.Join(dir, "c.png"), 0, 0); err == nil {
		t.Fatalf("expected error for .png")
	}
}

func TestFetchCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models.json" {
			http.Error(w, "missing", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"tiny": {"Name": "tiny", "ContextTokens": 512}}`))
	}))
	defer srv.Close()

	m, err := fetchCatalog(srv.URL + "/models.json")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if m["tiny"].ContextTokens != 512 {
		t.Fatalf("unexpected catalog: %+v", m)
	}
	if _, err := fetchCatalog(srv.URL + "/other"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestNeedsStartup(t *testing.T) {
	if !needsStartup(askCmd) || !needsStartup(serveCmd) {
		t.Fatalf("model commands must validate configuration")
	}
	if needsStartup(configShowCmd) || needsStartup(modelsSyncCmd) || needsStartup(rootCmd) {
		t.Fatalf("config, models and the bare root must not require an API key")
	}
}
