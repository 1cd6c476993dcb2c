// Package signals turns collected contributions into normalized indicators.
// Everything here is pure and deterministic.
package signals

import (
	"sort"
	"time"

	"agilemeter.shikanime.studio/internal/maturity"
)

// DefaultReviewTarget is the number of review comments that saturates review engagement.
const DefaultReviewTarget = 10

type options struct {
	minOpen      time.Duration
	reviewTarget int
	allow        maturity.LoginSet
}

// Option configures the extractor.
type Option func(*options)

// WithMinOpen sets the minimum open duration for mature issues and pull requests.
func WithMinOpen(d time.Duration) Option {
	return func(o *options) { o.minOpen = d }
}

// WithReviewTarget sets the number of review comments counted as full engagement.
func WithReviewTarget(n int) Option {
	return func(o *options) { o.reviewTarget = n }
}

// WithAllowList restricts the bundles to the given contributors.
func WithAllowList(s maturity.LoginSet) Option {
	return func(o *options) { o.allow = s }
}

// accumulator gathers the raw facts of one contributor before normalization.
type accumulator struct {
	counts       maturity.Counts
	weeks        map[maturity.ISOWeek]*maturity.ActivityWeek
	commitWeeks  map[maturity.ISOWeek]struct{}
	conventional int
	atomicSum    float64
	atomicN      int
	matureIssues int
	maturePRs    int
}

func (a *accumulator) week(login maturity.Login, repo string, t time.Time) *maturity.ActivityWeek {
	w := maturity.WeekOf(t)
	aw, ok := a.weeks[w]
	if !ok {
		aw = &maturity.ActivityWeek{Login: login, Week: w, Repository: repo}
		a.weeks[w] = aw
	}
	return aw
}

// Extract computes one SignalBundle per credited contributor of the collection.
// Bundles are sorted by login and always carry every indicator.
func Extract(c *maturity.Collection, opts ...Option) []maturity.SignalBundle {
	o := options{minOpen: DefaultMinOpen, reviewTarget: DefaultReviewTarget}
	for _, opt := range opts {
		opt(&o)
	}
	repo := c.Repository.Name

	accs := make(map[maturity.Login]*accumulator)
	get := func(l maturity.Login) *accumulator {
		if !o.allow.Allows(l) {
			return nil
		}
		a, ok := accs[l]
		if !ok {
			a = &accumulator{
				weeks:       make(map[maturity.ISOWeek]*maturity.ActivityWeek),
				commitWeeks: make(map[maturity.ISOWeek]struct{}),
			}
			accs[l] = a
		}
		return a
	}

	for _, cm := range c.Commits {
		conventional := IsConventional(cm.Message)
		for _, cr := range cm.Credits() {
			a := get(cr.Login)
			if a == nil {
				continue
			}
			a.counts.Commits++
			if len(cm.CoAuthors) > 0 {
				a.counts.CoAuthoredCommits++
			}
			if conventional {
				a.conventional++
			}
			if cm.Stats != nil {
				a.atomicSum += Atomicity(cm.Stats.FilesTouched)
				a.atomicN++
				if cr.Primary {
					a.counts.LinesAdded += cm.Stats.Additions
					a.counts.LinesRemoved += cm.Stats.Deletions
					a.counts.FilesChanged += cm.Stats.FilesTouched
				}
			}
			a.week(cr.Login, repo, cm.CreatedAt).Commits++
			a.commitWeeks[maturity.WeekOf(cm.CreatedAt)] = struct{}{}
		}
	}

	for _, is := range c.Issues {
		a := get(is.Author)
		if a == nil {
			continue
		}
		a.counts.Issues++
		if IsMature(is.CreatedAt, is.ClosedAt, c.Until, len(is.Labels), is.NonAuthorComments, o.minOpen) {
			a.matureIssues++
		}
		a.week(is.Author, repo, is.CreatedAt).Issues++
	}

	for _, pr := range c.PullRequests {
		a := get(pr.Author)
		if a == nil {
			continue
		}
		a.counts.PullRequests++
		if pr.Merged {
			a.counts.MergedPRs++
		}
		if IsMature(pr.CreatedAt, pr.ClosedAt, c.Until, len(pr.Labels), pr.NonAuthorComments, o.minOpen) {
			a.maturePRs++
		}
		a.week(pr.Author, repo, pr.CreatedAt).PullRequests++
	}

	for _, rc := range c.ReviewComments {
		if a := get(rc.Author); a != nil {
			a.counts.ReviewComments++
		}
	}

	windowWeeks := WindowWeeks(c.Since, c.Until)
	structure := c.Repository.Structure.Score()

	bundles := make([]maturity.SignalBundle, 0, len(accs))
	for login, a := range accs {
		weeks := make([]maturity.ActivityWeek, 0, len(a.weeks))
		for _, w := range a.weeks {
			weeks = append(weeks, *w)
		}
		maturity.SortActivityWeeks(weeks)

		ind := make(map[maturity.Criterion]float64, len(maturity.Indicators))
		for _, k := range maturity.Indicators {
			ind[k] = 0
		}
		if windowWeeks > 0 {
			ind[maturity.WeeklyCommits] = clamp(float64(len(a.commitWeeks)) / float64(windowWeeks))
		}
		ind[maturity.ActivityConsistency] = Consistency(weeks)
		if a.atomicN > 0 {
			ind[maturity.CommitAtomicity] = clamp(a.atomicSum / float64(a.atomicN))
		}
		ind[maturity.ConventionalCommits] = ratio(a.conventional, a.counts.Commits)
		ind[maturity.IssueMaturity] = ratio(a.matureIssues, a.counts.Issues)
		ind[maturity.PullRequestMaturity] = ratio(a.maturePRs, a.counts.PullRequests)
		ind[maturity.PullRequestMergeRate] = ratio(a.counts.MergedPRs, a.counts.PullRequests)
		if o.reviewTarget > 0 {
			ind[maturity.ReviewEngagement] = clamp(float64(a.counts.ReviewComments) / float64(o.reviewTarget))
		}
		ind[maturity.RepositoryStructure] = structure

		bundles = append(bundles, maturity.SignalBundle{
			Login:      login,
			Repository: repo,
			Indicators: ind,
			Counts:     a.counts,
			Weeks:      weeks,
		})
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].Login < bundles[j].Login })
	return bundles
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return clamp(float64(n) / float64(d))
}
