package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultEnvFile is loaded when present and no other env file is given.
const DefaultEnvFile = ".env"

type Config struct{ v *viper.Viper }

// New returns a Config reading the environment. Keys are snake_case and map to
// the upper-case environment variable of the same name.
func New() *Config {
	vv := viper.New()
	vv.AutomaticEnv()
	// USER is the shell login, never a contributor.
	_ = vv.BindEnv("user", "AGILEMETER_USER")
	_ = vv.BindEnv("users", "AGILEMETER_USERS")
	return &Config{v: vv}
}

// BindFlags binds every flag of fs, so a flag set on the command line wins over
// the environment. Flag names are kebab-case versions of the keys.
func (c *Config) BindFlags(fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := c.v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil {
			errs = append(errs, fmt.Errorf("failed to bind flag %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// LoadEnvFile merges a dotenv file. A missing file is an error only when required.
func (c *Config) LoadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	c.v.SetConfigFile(path)
	c.v.SetConfigType("env")
	if err := c.v.MergeInConfig(); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	slog.Debug("Loaded env file", "path", path)
	return nil
}

// LoadWeights reads the "weights" table of a YAML, JSON or TOML file.
func LoadWeights(path string) (map[string]float64, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read weights file %s: %w", path, err)
	}
	if !v.IsSet("weights") {
		return nil, fmt.Errorf("weights file %s has no weights table", path)
	}
	var weights map[string]float64
	if err := v.UnmarshalKey("weights", &weights); err != nil {
		return nil, fmt.Errorf("invalid weights in %s: %w", path, err)
	}
	return weights, nil
}

func (c *Config) Set(key string, value any) { c.v.Set(key, value) }

func (c *Config) GetGitHubToken() string {
	if t := c.v.GetString("github_token"); t != "" {
		return t
	}
	return c.v.GetString("gh_token")
}

// GetGitHubBaseURL returns the API root from GITHUB_API_URL, empty for github.com.
func (c *Config) GetGitHubBaseURL() string { return c.v.GetString("github_api_url") }

// GetOpenAIBaseURL returns the OpenAI API base URL from env var OPENAI_BASE_URL.
func (c *Config) GetOpenAIBaseURL() string { return c.v.GetString("openai_base_url") }

// GetOpenAIAPIKey returns the OpenAI API key from env var OPENAI_API_KEY.
func (c *Config) GetOpenAIAPIKey() string { return c.v.GetString("openai_api_key") }

// GetOracleModel returns the chat model used to assess texts. Defaults to gpt-4o-mini.
func (c *Config) GetOracleModel() string {
	if m := c.v.GetString("oracle_model"); m != "" {
		return m
	}
	return "gpt-4o-mini"
}

// GetOracleTimeout bounds the assessment of one contributor. Defaults to 30s.
func (c *Config) GetOracleTimeout() time.Duration { return c.duration("oracle_timeout", 30*time.Second) }

// GetOracleRequestsPerMinute returns the oracle request rate. Defaults to 60.
func (c *Config) GetOracleRequestsPerMinute() int { return c.positiveInt("oracle_rpm", 60) }

// GetDisableAI reports whether the quality oracle is disabled, either
// explicitly or because no API key is configured.
func (c *Config) GetDisableAI() bool {
	return c.v.GetBool("disable_ai") || c.GetOpenAIAPIKey() == ""
}

func (c *Config) GetOrganization() string { return c.v.GetString("org") }
func (c *Config) GetRepository() string   { return c.v.GetString("repo") }
func (c *Config) GetUser() string         { return c.v.GetString("user") }

// GetUsers returns the allow-list of logins, empty when every contributor is scored.
func (c *Config) GetUsers() []string {
	var out []string
	for _, u := range c.v.GetStringSlice("users") {
		for _, p := range strings.Split(u, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// GetSince returns the start of the analysis window. It is required.
func (c *Config) GetSince() (time.Time, error) {
	s := c.v.GetString("since")
	if s == "" {
		return time.Time{}, errors.New("since is required (YYYY-MM-DD)")
	}
	return parseDate(s, false)
}

// GetUntil returns the end of the analysis window, now when unset. A bare date
// covers the whole day.
func (c *Config) GetUntil() (time.Time, error) {
	s := c.v.GetString("until")
	if s == "" {
		return time.Now().UTC(), nil
	}
	return parseDate(s, true)
}

func parseDate(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		if endOfDay {
			return t.Add(24*time.Hour - time.Second), nil
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or RFC 3339", s)
	}
	return t.UTC(), nil
}

// GetOutput returns the report path. Its extension selects the format.
func (c *Config) GetOutput() string {
	if o := c.v.GetString("out"); o != "" {
		return o
	}
	return "agile-maturity.md"
}

func (c *Config) GetWeightsFile() string { return c.v.GetString("weights") }

func (c *Config) GetWorkers() int { return c.positiveInt("workers", 4) }

// GetTimeout returns the run timeout; zero means none.
func (c *Config) GetTimeout() time.Duration { return c.duration("timeout", 0) }

func (c *Config) GetMaxWait() time.Duration { return c.duration("max_wait", 15*time.Minute) }

func (c *Config) GetMaxRetries() int {
	if !c.v.IsSet("max_retries") {
		return 5
	}
	return max(0, c.v.GetInt("max_retries"))
}

// GetCallsPerRepository estimates the API calls one repository costs, used to size concurrency.
func (c *Config) GetCallsPerRepository() int { return c.positiveInt("calls_per_repository", 40) }

func (c *Config) GetMaxCommitDetails() int { return c.positiveInt("max_commit_details", 100) }

func (c *Config) GetFetchTimeout() time.Duration { return c.duration("fetch_timeout", 10*time.Minute) }

// GetMinOpenDuration is the minimum time an issue or pull request stays open to count as mature.
func (c *Config) GetMinOpenDuration() time.Duration { return c.duration("min_open", time.Hour) }

// GetStalenessWindow is how recent a push must be past the window start for --only-recent.
func (c *Config) GetStalenessWindow() time.Duration {
	return c.duration("staleness_window", 30*24*time.Hour)
}

func (c *Config) GetSkipForks() bool       { return c.v.GetBool("skip_forks") }
func (c *Config) GetOnlyRecent() bool      { return c.v.GetBool("only_recent") }
func (c *Config) GetIncludeNewRepos() bool { return c.v.GetBool("include_new_repos") }
func (c *Config) GetOnlyNew() bool         { return c.v.GetBool("only_new") }
func (c *Config) GetSearchCoAuthors() bool { return c.v.GetBool("search_coauthors") }

// GetServiceName returns the service name reported with traces.
func (c *Config) GetServiceName() string {
	if n := c.v.GetString("otel_service_name"); n != "" {
		return n
	}
	return "agilemeter"
}

// GetTelemetryEnabled reports whether an OTLP endpoint is configured.
func (c *Config) GetTelemetryEnabled() bool {
	return c.v.GetString("otel_exporter_otlp_endpoint") != "" ||
		c.v.GetString("otel_exporter_otlp_traces_endpoint") != ""
}

// GetLogFormat returns "json" or "text" (default) from LOG_FORMAT.
func (c *Config) GetLogFormat() string {
	if strings.EqualFold(c.v.GetString("log_format"), "json") {
		return "json"
	}
	return "text"
}

// GetLogLevel returns the log level from env var LOG_LEVEL mapped to slog.Level.
// Recognized values: debug, info (default), warn|warning, error.
func (c *Config) GetLogLevel() slog.Level {
	switch strings.ToLower(c.v.GetString("log_level")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OnLogLevelChange calls fn with the slog.Level whenever it changes.
// The initial call is made immediately.
func (c *Config) OnLogLevelChange(fn func(slog.Level)) {
	apply := func() { fn(c.GetLogLevel()) }
	apply()
	c.v.OnConfigChange(func(e fsnotify.Event) { apply() })
}

// Watch reloads the env file when it changes.
func (c *Config) Watch() {
	if c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.WatchConfig()
}

func (c *Config) duration(key string, def time.Duration) time.Duration {
	if v := c.v.GetString(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		slog.Warn("Ignoring invalid duration", "key", key, "value", v, "default", def)
	}
	return def
}

func (c *Config) positiveInt(key string, def int) int {
	if n := c.v.GetInt(key); n > 0 {
		return n
	}
	return def
}
