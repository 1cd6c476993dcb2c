package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"agilemeter.shikanime.studio/internal/agent"
	"agilemeter.shikanime.studio/internal/config"
	"agilemeter.shikanime.studio/internal/maturity"
	"agilemeter.shikanime.studio/internal/maturity/core"
	"agilemeter.shikanime.studio/internal/maturity/github"
	"agilemeter.shikanime.studio/internal/maturity/score"
	"agilemeter.shikanime.studio/internal/report"
)

// ErrUsage reports missing or conflicting command line parameters.
var ErrUsage = errors.New("invalid usage")

// Weights returns the default weights overridden by the configured weights file.
func Weights(cfg *config.Config) (score.Weights, error) {
	path := cfg.GetWeightsFile()
	if path == "" {
		return score.DefaultWeights(), nil
	}
	m, err := config.LoadWeights(path)
	if err != nil {
		return nil, err
	}
	return score.FromMap(m)
}

// EffectiveWeights returns the normalized weights a run with cfg applies when
// every criterion is active.
func EffectiveWeights(cfg *config.Config) (score.Weights, error) {
	w, err := Weights(cfg)
	if err != nil {
		return nil, err
	}
	return score.NewAggregator(w, !cfg.GetDisableAI()).Effective(), nil
}

// NewEngineForConfig wires the GitHub client, collector, quality oracle and
// weights described by cfg.
func NewEngineForConfig(cfg *config.Config, opts ...github.GitHubClientOption) (*core.Engine, error) {
	w, err := Weights(cfg)
	if err != nil {
		return nil, err
	}
	since, err := cfg.GetSince()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}

	token := cfg.GetGitHubToken()
	copts := []github.GitHubClientOption{
		github.WithToken(token),
		github.WithMaxWait(cfg.GetMaxWait()),
		github.WithMaxRetries(cfg.GetMaxRetries()),
	}
	if u := cfg.GetGitHubBaseURL(); u != "" {
		copts = append(copts, github.WithBaseURL(u))
	}
	c, err := github.NewClient(append(copts, opts...)...)
	if err != nil {
		return nil, err
	}
	collector := github.NewCollector(c, github.CollectorOptions{
		MaxCommitDetails: cfg.GetMaxCommitDetails(),
		FetchTimeout:     cfg.GetFetchTimeout(),
		SearchCoAuthors:  cfg.GetSearchCoAuthors(),
	})

	oracle := agent.NewQualityForConfig(cfg)
	if !oracle.Enabled() {
		slog.Info("Quality oracle disabled")
	}
	return core.NewEngine(c, collector, oracle, w, core.Options{
		Workers:            cfg.GetWorkers(),
		CallsPerRepository: cfg.GetCallsPerRepository(),
		MinOpen:            cfg.GetMinOpenDuration(),
		Timeout:            cfg.GetTimeout(),
		OracleTimeout:      cfg.GetOracleTimeout(),
		Verify:             token != "",
		Discovery: github.DiscoveryOptions{
			Since:           since,
			SkipForks:       cfg.GetSkipForks(),
			OnlyRecent:      cfg.GetOnlyRecent(),
			IncludeNewRepos: cfg.GetIncludeNewRepos(),
			OnlyNew:         cfg.GetOnlyNew(),
			StalenessWindow: cfg.GetStalenessWindow(),
		},
	}), nil
}

func period(cfg *config.Config) (since, until time.Time, err error) {
	if since, err = cfg.GetSince(); err != nil {
		return since, until, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if until, err = cfg.GetUntil(); err != nil {
		return since, until, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if until.Before(since) {
		return since, until, fmt.Errorf("%w: until %s is before since %s", ErrUsage,
			until.Format(time.DateOnly), since.Format(time.DateOnly))
	}
	return since, until, nil
}

// Score runs an organization or repository assessment and writes the report.
// A partial result is still written when ctx is cancelled.
func Score(ctx context.Context, cfg *config.Config, opts ...github.GitHubClientOption) error {
	org, repo := cfg.GetOrganization(), cfg.GetRepository()
	if org == "" && repo == "" {
		return fmt.Errorf("%w: --org or --repo is required", ErrUsage)
	}
	out := cfg.GetOutput()
	if _, err := report.FormatFor(out); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	since, until, err := period(cfg)
	if err != nil {
		return err
	}
	e, err := NewEngineForConfig(cfg, opts...)
	if err != nil {
		return err
	}

	res, err := e.Run(ctx, core.Request{
		Organization: org,
		Repository:   repo,
		Since:        since,
		Until:        until,
		Users:        maturity.NewLoginSet(cfg.GetUsers()...),
	})
	if err != nil {
		return err
	}
	for _, w := range res.Provenance.Warnings {
		slog.WarnContext(ctx, "Run warning", "warning", w)
	}
	if err := report.WriteFile(out, res); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Assessment complete",
		"users", len(res.Users),
		"repositories", len(res.Repositories),
		"cancelled", res.Provenance.Cancelled,
		"out", out)
	return nil
}

// User runs a detailed assessment of one contributor in one repository.
func User(ctx context.Context, cfg *config.Config, opts ...github.GitHubClientOption) error {
	repo, login := cfg.GetRepository(), maturity.NewLogin(cfg.GetUser())
	if repo == "" || login == "" {
		return fmt.Errorf("%w: --repo and --user are required", ErrUsage)
	}
	out := cfg.GetOutput()
	if _, err := report.FormatFor(out); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	since, until, err := period(cfg)
	if err != nil {
		return err
	}
	e, err := NewEngineForConfig(cfg, opts...)
	if err != nil {
		return err
	}

	d, err := e.User(ctx, repo, login, since, until)
	if err != nil {
		return err
	}
	if err := report.WriteUserFile(out, d); err != nil {
		return err
	}
	slog.InfoContext(ctx, "User assessment complete",
		"user", login,
		"repo", repo,
		"commits", len(d.Commits),
		"frequency", d.Frequency.Level,
		"out", out)
	return nil
}
