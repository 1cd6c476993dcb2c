package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestDefaults(t *testing.T) {
	cfg := New()
	assert.Equal(t, 4, cfg.GetWorkers())
	assert.Equal(t, 15*time.Minute, cfg.GetMaxWait())
	assert.Equal(t, 5, cfg.GetMaxRetries())
	assert.Equal(t, 40, cfg.GetCallsPerRepository())
	assert.Equal(t, 100, cfg.GetMaxCommitDetails())
	assert.Equal(t, time.Hour, cfg.GetMinOpenDuration())
	assert.Equal(t, 30*time.Second, cfg.GetOracleTimeout())
	assert.Equal(t, "gpt-4o-mini", cfg.GetOracleModel())
	assert.Equal(t, "agile-maturity.md", cfg.GetOutput())
	assert.Equal(t, "agilemeter", cfg.GetServiceName())
}

func TestEnvAndFlags(t *testing.T) {
	t.Setenv("WORKERS", "8")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "gh-token")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("MAX_WAIT", "2m")

	cfg := New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("workers", 4, "")
	fs.Duration("max-wait", 15*time.Minute, "")
	fs.StringSlice("users", nil, "")
	fs.Bool("disable-ai", false, "")
	require.NoError(t, cfg.BindFlags(fs))
	require.NoError(t, fs.Parse([]string{"--workers", "2", "--users", "Alice,bob", "--users", "carol"}))

	assert.Equal(t, 2, cfg.GetWorkers(), "flags win over the environment")
	assert.Equal(t, 2*time.Minute, cfg.GetMaxWait(), "environment wins over flag defaults")
	assert.Equal(t, "gh-token", cfg.GetGitHubToken())
	assert.Equal(t, []string{"Alice", "bob", "carol"}, cfg.GetUsers())
	assert.True(t, cfg.GetDisableAI(), "no API key disables the oracle")
}

func TestLoadEnvFile(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("SINCE", "")
	cfg := New()
	path := writeFile(t, ".env", "GITHUB_TOKEN=from-file\nOPENAI_API_KEY=sk-test\nSINCE=2024-07-01\n")
	require.NoError(t, cfg.LoadEnvFile(path, true))

	assert.Equal(t, "from-file", cfg.GetGitHubToken())
	assert.False(t, cfg.GetDisableAI())
	since, err := cfg.GetSince()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), since)

	assert.NoError(t, New().LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"), false))
	assert.Error(t, New().LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"), true))
}

func TestDates(t *testing.T) {
	cfg := New()
	_, err := cfg.GetSince()
	assert.Error(t, err)

	cfg.Set("since", "2024-07-01T12:00:00+02:00")
	since, err := cfg.GetSince()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC), since)

	cfg.Set("until", "2024-07-31")
	until, err := cfg.GetUntil()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 7, 31, 23, 59, 59, 0, time.UTC), until)

	cfg.Set("until", "last tuesday")
	_, err = cfg.GetUntil()
	assert.Error(t, err)
}

func TestLoadWeights(t *testing.T) {
	path := writeFile(t, "weights.yaml", "weights:\n  weekly_commits: 0.5\n  review_engagement: 0.25\n")
	w, err := LoadWeights(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"weekly_commits": 0.5, "review_engagement": 0.25}, w)

	_, err = LoadWeights(writeFile(t, "other.json", `{"levels": {}}`))
	assert.Error(t, err)
}

func TestSetupLog(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	cfg := New()
	cfg.Set("log_level", "warn")
	cfg.Set("log_format", "json")
	var buf bytes.Buffer
	lv := setupLog(cfg, &buf)
	assert.Equal(t, slog.LevelWarn, lv.Level())

	slog.Info("hidden")
	slog.Warn("shown", "repo", "api")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"repo":"api"`)
}

func TestUserIgnoresShellLogin(t *testing.T) {
	t.Setenv("USER", "root")
	assert.Empty(t, New().GetUser())

	t.Setenv("AGILEMETER_USER", "alice")
	assert.Equal(t, "alice", New().GetUser())
}

func TestSetupTelemetryDisabled(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
	cfg := New()
	require.False(t, cfg.GetTelemetryEnabled())

	shutdown, err := SetupTelemetry(context.Background(), cfg, "test")
	require.NoError(t, err)
	assert.NotPanics(t, shutdown)
}
