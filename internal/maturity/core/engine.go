// Package core runs the collection, extraction, assessment and scoring
// pipeline over an organization or a single repository.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"k8s.io/utils/ptr"

	"agilemeter.shikanime.studio/internal/agent"
	"agilemeter.shikanime.studio/internal/maturity"
	"agilemeter.shikanime.studio/internal/maturity/github"
	"agilemeter.shikanime.studio/internal/maturity/score"
	"agilemeter.shikanime.studio/internal/maturity/signals"
)

const (
	DefaultWorkers            = 4
	DefaultCallsPerRepository = 40
	DefaultOracleTimeout      = 30 * time.Second
	DefaultOracleSamples      = 10
)

// ErrInvalidRequest reports unusable run parameters.
var ErrInvalidRequest = errors.New("invalid request")

// Options tunes an Engine.
type Options struct {
	Workers            int
	CallsPerRepository int
	MinOpen            time.Duration
	// Timeout bounds the whole run. Zero means no limit.
	Timeout       time.Duration
	OracleTimeout time.Duration
	// OracleSamples is the number of newest texts per category sent to the oracle for each contributor.
	OracleSamples int
	// Verify checks the credentials before anything else.
	Verify    bool
	Discovery github.DiscoveryOptions
}

// Request selects what a run covers. Repository, as owner/name, bypasses
// organization discovery.
type Request struct {
	Organization string
	Repository   string
	Since        time.Time
	Until        time.Time
	Users        maturity.LoginSet
}

// Engine wires the pipeline stages together.
type Engine struct {
	c         *github.Client
	collector *github.Collector
	oracle    agent.QualityOracle
	agg       *score.Aggregator
	opts      Options
}

// NewEngine returns an Engine scoring with weights. A nil oracle disables
// quality assessment.
func NewEngine(c *github.Client, collector *github.Collector, oracle agent.QualityOracle, weights score.Weights, opts Options) *Engine {
	if oracle == nil {
		oracle = agent.Disabled{}
	}
	agg := score.NewAggregator(weights, oracle.Enabled())
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.CallsPerRepository <= 0 {
		opts.CallsPerRepository = DefaultCallsPerRepository
	}
	if opts.MinOpen == 0 {
		opts.MinOpen = signals.DefaultMinOpen
	}
	if opts.OracleTimeout <= 0 {
		opts.OracleTimeout = DefaultOracleTimeout
	}
	if opts.OracleSamples <= 0 {
		opts.OracleSamples = DefaultOracleSamples
	}
	return &Engine{c: c, collector: collector, oracle: oracle, agg: agg, opts: opts}
}

// Run collects, assesses and scores the contributions selected by req.
// Partial collections are scored with what was gathered. Only authentication
// failures, invalid requests and a failed discovery abort the run. When ctx is
// cancelled, the repositories not yet collected are reported as cancelled.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	tracer := otel.Tracer("agilemeter/core")
	ctx, span := tracer.Start(ctx, "Engine.Run")
	span.SetAttributes(
		attribute.String("org", req.Organization),
		attribute.String("repo", req.Repository),
		attribute.String("since", req.Since.Format(time.DateOnly)),
	)
	defer span.End()
	fail := func(err error) (*Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := validate(req); err != nil {
		return fail(err)
	}
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	res := &Result{Provenance: Provenance{
		Organization:  req.Organization,
		Repository:    req.Repository,
		Since:         req.Since,
		Until:         req.Until,
		Users:         req.Users.Sorted(),
		Workers:       e.opts.Workers,
		OracleEnabled: e.oracle.Enabled(),
		Weights:       e.agg.Effective(),
	}}

	if e.opts.Verify {
		viewer, err := e.c.Verify(ctx)
		switch {
		case github.IsAuthentication(err):
			return fail(err)
		case err != nil:
			slog.WarnContext(ctx, "Failed to verify GitHub credentials", "error", err)
			res.Provenance.Warnings = append(res.Provenance.Warnings, fmt.Sprintf("credential check failed: %v", err))
		default:
			res.Provenance.Viewer = viewer
		}
	}

	repos, warnings, err := e.repositories(ctx, req)
	if err != nil {
		return fail(err)
	}
	res.Provenance.Warnings = append(res.Provenance.Warnings, warnings...)

	collections, bundles, err := e.collectAll(ctx, repos, req)
	if err != nil {
		return fail(err)
	}
	res.collections = collections

	oracle, warnings := e.assess(ctx, collections, req.Users)
	res.Provenance.Warnings = append(res.Provenance.Warnings, warnings...)

	scored := e.agg.Aggregate(bundles, oracle)
	res.Users, res.Rows = scored.Users, scored.Rows
	res.Repositories = statuses(collections, oracle)
	res.Gaps = gaps(bundles)

	if ctx.Err() != nil {
		res.Provenance.Cancelled = true
		res.Provenance.Warnings = append(res.Provenance.Warnings, fmt.Sprintf("run interrupted: %v", context.Cause(ctx)))
	}
	res.Provenance.GeneratedAt = time.Now().UTC()

	span.SetAttributes(
		attribute.Int("repositories", len(res.Repositories)),
		attribute.Int("users", len(res.Users)),
	)
	slog.InfoContext(ctx, "Run finished",
		"org", req.Organization, "repositories", len(res.Repositories), "users", len(res.Users),
		"warnings", len(res.Provenance.Warnings))
	return res, nil
}

func validate(req Request) error {
	switch {
	case req.Organization == "" && req.Repository == "":
		return fmt.Errorf("%w: an organization or a repository is required", ErrInvalidRequest)
	case req.Since.IsZero():
		return fmt.Errorf("%w: a start date is required", ErrInvalidRequest)
	case req.Until.Before(req.Since):
		return fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidRequest,
			req.Until.Format(time.DateOnly), req.Since.Format(time.DateOnly))
	}
	return nil
}

func (e *Engine) repositories(ctx context.Context, req Request) ([]maturity.Repository, []string, error) {
	if req.Repository != "" {
		owner, name, err := github.ParseRepositoryRef(req.Repository)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		repo, err := github.GetRepository(ctx, e.c, owner, name)
		if err != nil {
			return nil, nil, err
		}
		return []maturity.Repository{repo}, nil, nil
	}

	opts := e.opts.Discovery
	opts.Since = req.Since
	d, err := github.Discover(ctx, e.c, req.Organization, opts)
	if err != nil {
		return nil, nil, err
	}
	return d.Organization.Repositories, d.Warnings, nil
}

// collectAll runs one worker per repository. Each repository also acquires a
// share of a semaphore sized to the worker count, so fewer repositories are
// collected at once when the remaining quota is low.
func (e *Engine) collectAll(ctx context.Context, repos []maturity.Repository, req Request) ([]*maturity.Collection, []maturity.SignalBundle, error) {
	workers := e.opts.Workers
	sem := semaphore.NewWeighted(int64(workers))
	collections := make([]*maturity.Collection, len(repos))
	bundles := make([][]maturity.SignalBundle, len(repos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, repo := range repos {
		g.Go(func() error {
			conc := e.c.Quota().Concurrency(e.opts.CallsPerRepository, workers)
			weight := int64((workers + conc - 1) / conc)
			if err := sem.Acquire(gctx, weight); err == nil {
				defer sem.Release(weight)
			}
			col, err := e.collect(gctx, repo, req)
			if err != nil {
				return err
			}
			collections[i] = col
			bundles[i] = signals.Extract(col, signals.WithMinOpen(e.opts.MinOpen), signals.WithAllowList(req.Users))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var all []maturity.SignalBundle
	for _, b := range bundles {
		all = append(all, b...)
	}
	return collections, all, nil
}

func (e *Engine) collect(ctx context.Context, repo maturity.Repository, req Request) (*maturity.Collection, error) {
	tracer := otel.Tracer("agilemeter/core")
	ctx, span := tracer.Start(ctx, "Engine.collect")
	span.SetAttributes(attribute.String("repo", repo.FullName))
	defer span.End()

	slog.DebugContext(ctx, "Collecting repository", "repo", repo.FullName)
	col, err := e.collector.Collect(ctx, repo, req.Since, req.Until, req.Users)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if col.Incomplete() {
		span.SetStatus(codes.Error, "incomplete collection")
	}
	return col, nil
}

// assess sends the newest texts of every contributor to the oracle and
// returns the mean scores per contributor, repository and oracle criterion.
func (e *Engine) assess(ctx context.Context, collections []*maturity.Collection, allow maturity.LoginSet) (score.OracleValues, []string) {
	if !e.oracle.Enabled() {
		return nil, nil
	}
	picked := sample(collections, allow, e.opts.OracleSamples)
	logins := make([]maturity.Login, 0, len(picked))
	for l := range picked {
		logins = append(logins, l)
	}
	sort.Slice(logins, func(i, j int) bool { return logins[i] < logins[j] })

	var (
		mu       sync.Mutex
		values   = make(score.OracleValues)
		failures []maturity.Login
	)
	g := new(errgroup.Group)
	g.SetLimit(e.opts.Workers)
	for _, login := range logins {
		g.Go(func() error {
			actx, cancel := context.WithTimeout(ctx, e.opts.OracleTimeout)
			defer cancel()
			arts := picked[login]
			assessments, err := e.oracle.Assess(actx, arts.artifacts)
			if err != nil {
				slog.WarnContext(ctx, "Quality assessment incomplete", "user", login, "error", err)
			}
			mean := arts.mean(assessments)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, login)
			}
			for k, v := range mean {
				values[k] = v
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) == 0 {
		return values, nil
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i] < failures[j] })
	return values, []string{fmt.Sprintf("quality oracle unavailable for %d contributors, their unscored texts were left out: %v", len(failures), failures)}
}

// samples holds the artifacts of one contributor with their origin.
type samples struct {
	artifacts []agent.Artifact
	origin    map[string]score.Key
}

var oracleCriterion = map[agent.Category]maturity.Criterion{
	agent.CategoryCommit: maturity.AICommitQuality,
	agent.CategoryIssue:  maturity.AIIssueQuality,
	agent.CategoryReview: maturity.AIReviewQuality,
}

func (s *samples) add(login maturity.Login, repo string, cat agent.Category, id, text string) {
	s.artifacts = append(s.artifacts, agent.Artifact{ID: id, Category: cat, Text: text})
	s.origin[id] = score.Key{Login: login, Repository: repo}
}

// mean averages the scored assessments per repository and criterion.
func (s *samples) mean(assessments map[string]agent.Assessment) score.OracleValues {
	type acc struct {
		sum float64
		n   int
	}
	sums := make(map[score.Key]map[maturity.Criterion]*acc)
	for _, a := range s.artifacts {
		as, ok := assessments[a.ID]
		if !ok || !as.Scored {
			continue
		}
		k := s.origin[a.ID]
		if sums[k] == nil {
			sums[k] = make(map[maturity.Criterion]*acc)
		}
		c := oracleCriterion[a.Category]
		if sums[k][c] == nil {
			sums[k][c] = &acc{}
		}
		sums[k][c].sum += as.Score
		sums[k][c].n++
	}
	out := make(score.OracleValues, len(sums))
	for k, byCriterion := range sums {
		out[k] = make(map[maturity.Criterion]float64, len(byCriterion))
		for c, a := range byCriterion {
			out[k][c] = a.sum / float64(a.n)
		}
	}
	return out
}

type dated struct {
	at     time.Time
	repo   string
	id     string
	text   string
	login  maturity.Login
	target agent.Category
}

// sample picks, per allowed contributor, the n newest commits, issues and
// pull requests, and review comments across every repository.
func sample(collections []*maturity.Collection, allow maturity.LoginSet, n int) map[maturity.Login]*samples {
	items := make(map[maturity.Login]map[agent.Category][]dated)
	push := func(d dated) {
		if !allow.Allows(d.login) || !agent.Assessable(d.text) {
			return
		}
		if items[d.login] == nil {
			items[d.login] = make(map[agent.Category][]dated)
		}
		items[d.login][d.target] = append(items[d.login][d.target], d)
	}
	for _, col := range collections {
		repo := col.Repository.Name
		for _, cm := range col.Commits {
			for _, cr := range cm.Credits() {
				push(dated{cm.CreatedAt, repo, fmt.Sprintf("%s@%s/%s", cr.Login, repo, cm.SHA), cm.Message, cr.Login, agent.CategoryCommit})
			}
		}
		for _, is := range col.Issues {
			push(dated{is.CreatedAt, repo, fmt.Sprintf("%s/issues/%d", repo, is.Number), is.Text(), is.Author, agent.CategoryIssue})
		}
		for _, pr := range col.PullRequests {
			push(dated{pr.CreatedAt, repo, fmt.Sprintf("%s/pulls/%d", repo, pr.Number), pr.Text(), pr.Author, agent.CategoryIssue})
		}
		for _, rc := range col.ReviewComments {
			push(dated{rc.CreatedAt, repo, fmt.Sprintf("%s/comments/%s/%d", repo, rc.Kind, rc.ID), rc.Body, rc.Author, agent.CategoryReview})
		}
	}

	out := make(map[maturity.Login]*samples, len(items))
	for login, byCategory := range items {
		s := &samples{origin: make(map[string]score.Key)}
		for _, cat := range []agent.Category{agent.CategoryCommit, agent.CategoryIssue, agent.CategoryReview} {
			ds := byCategory[cat]
			sort.SliceStable(ds, func(i, j int) bool {
				if !ds[i].at.Equal(ds[j].at) {
					return ds[i].at.After(ds[j].at)
				}
				return ds[i].id < ds[j].id
			})
			for _, d := range ds[:min(n, len(ds))] {
				s.add(login, d.repo, cat, d.id, d.text)
			}
		}
		out[login] = s
	}
	return out
}

func statuses(collections []*maturity.Collection, oracle score.OracleValues) []RepositoryStatus {
	out := make([]RepositoryStatus, 0, len(collections))
	for _, col := range collections {
		r := col.Repository
		st := RepositoryStatus{
			Repository:     r,
			Stats:          col.Stats,
			Failures:       col.Failures,
			CommitsPerWeek: signals.CommitsPerWeek(col.Stats.Commits, r.CreatedAt, col.Since, col.Until),
			Structure:      r.Structure.Score(),
			Engagement:     signals.Engagement(r),
		}
		// Unresolved co-authors have no login but still diversify the repository.
		st.Score, st.Level = score.RepositoryScore(score.RepositoryFacts{
			CommitsPerWeek: st.CommitsPerWeek,
			Issues:         col.Stats.Issues,
			PullRequests:   col.Stats.PullRequests,
			Contributors:   col.Stats.Contributors + col.Stats.UnresolvedCoAuthors,
			Structure:      st.Structure,
			Engagement:     st.Engagement,
			CodeQuality:    oracleMean(oracle, r.Name, maturity.AICommitQuality),
			Documentation:  oracleMean(oracle, r.Name, maturity.AIIssueQuality),
		})
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Repository.Name < out[j].Repository.Name })
	return out
}

// oracleMean averages criterion c over the contributors of repo, or returns
// nil when none of their texts was scored.
func oracleMean(oracle score.OracleValues, repo string, c maturity.Criterion) *float64 {
	var sum float64
	n := 0
	for k, byCriterion := range oracle {
		if k.Repository != repo {
			continue
		}
		if v, ok := byCriterion[c]; ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return ptr.To(sum / float64(n))
}

func gaps(bundles []maturity.SignalBundle) []ActivityGap {
	weeks := make(map[maturity.Login][]maturity.ActivityWeek)
	for _, b := range bundles {
		weeks[b.Login] = append(weeks[b.Login], b.Weeks...)
	}
	var out []ActivityGap
	for login, ws := range weeks {
		if g := signals.Gaps(ws); len(g) > 0 {
			out = append(out, ActivityGap{Login: login, Weeks: g})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Login < out[j].Login })
	return out
}
