package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate clears every variable Load consults and points HOME at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"INSIGHTCOPILOT_API_KEY", "INSIGHTCOPILOT_PROVIDER", "INSIGHTCOPILOT_MODEL", "OPENAI_API_KEY", "OPENROUTER_API_KEY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return home
}

func TestMissingKeyIsStartupError(t *testing.T) {
	isolate(t)
	c, err := Load("")
	require.NoError(t, err)
	err = c.Validate()
	var se *StartupError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Contains(t, se.Error(), "no API key")
}

func TestOllamaNeedsNoKey(t *testing.T) {
	isolate(t)
	t.Setenv("INSIGHTCOPILOT_PROVIDER", "ollama")
	c, err := Load("")
	require.NoError(t, err)
	assert.NoError(t, c.Validate())
	assert.Equal(t, "llama3.1:8b-instruct", c.Model)
}

func TestKeyFallbacks(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-openai", c.APIKey)
	assert.NoError(t, c.Validate())

	t.Setenv("INSIGHTCOPILOT_API_KEY", "sk-own")
	c, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-own", c.APIKey)
}

func TestUnknownProvider(t *testing.T) {
	isolate(t)
	t.Setenv("INSIGHTCOPILOT_PROVIDER", "carrier-pigeon")
	t.Setenv("INSIGHTCOPILOT_API_KEY", "k")
	c, err := Load("")
	require.NoError(t, err)
	var se *StartupError
	assert.True(t, errors.As(c.Validate(), &se))
}

func TestDotEnvDoesNotOverride(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte("INSIGHTCOPILOT_API_KEY=from-dotenv\nINSIGHTCOPILOT_MODEL=gpt-4o\n"), 0o600))
	t.Setenv("INSIGHTCOPILOT_MODEL", "gpt-4o-mini")
	LoadDotEnv(env, filepath.Join(dir, "missing.env"))
	t.Cleanup(func() { os.Unsetenv("INSIGHTCOPILOT_API_KEY") })

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", c.APIKey)
	assert.Equal(t, "gpt-4o-mini", c.Model)
}

func TestSaveAndLoadFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	in := &Global{APIKey: "sk-file", Provider: "openrouter", Model: "openai/gpt-4o", Temperature: 0.5, PreviewRows: 7}
	require.NoError(t, Save(in, path))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-file", c.APIKey)
	assert.Equal(t, "openrouter", c.Provider)
	assert.Equal(t, 7, c.PreviewRows)
	assert.Equal(t, 0.5, c.Temperature)

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRedacted(t *testing.T) {
	c := &Global{APIKey: "sk-1234567890abcd"}
	r := c.Redacted()
	assert.NotContains(t, r.APIKey, "567890")
	assert.Equal(t, "sk-1234567890abcd", c.APIKey)
}
