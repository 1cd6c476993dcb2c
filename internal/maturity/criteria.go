package maturity

import (
	"sort"
	"time"
)

// Criterion names one scoring input. Extractor indicators and oracle-derived
// criteria share the same namespace so a single weights table covers both.
type Criterion string

const (
	WeeklyCommits        Criterion = "weekly_commits"
	ActivityConsistency  Criterion = "activity_consistency"
	CommitAtomicity      Criterion = "commit_atomicity"
	ConventionalCommits  Criterion = "conventional_commits"
	IssueMaturity        Criterion = "issue_maturity"
	PullRequestMaturity  Criterion = "pull_request_maturity"
	PullRequestMergeRate Criterion = "pull_request_merge_rate"
	ReviewEngagement     Criterion = "review_engagement"
	RepositoryStructure  Criterion = "repository_structure"

	AICommitQuality Criterion = "ai_commit_quality"
	AIIssueQuality  Criterion = "ai_issue_quality"
	AIReviewQuality Criterion = "ai_review_quality"
)

// Indicators lists the criteria computed by the signal extractor, in report order.
var Indicators = []Criterion{
	WeeklyCommits,
	ActivityConsistency,
	CommitAtomicity,
	ConventionalCommits,
	IssueMaturity,
	PullRequestMaturity,
	PullRequestMergeRate,
	ReviewEngagement,
	RepositoryStructure,
}

// OracleCriteria lists the criteria derived from the quality oracle.
var OracleCriteria = []Criterion{AICommitQuality, AIIssueQuality, AIReviewQuality}

// AllCriteria returns indicators followed by oracle criteria.
func AllCriteria() []Criterion {
	out := make([]Criterion, 0, len(Indicators)+len(OracleCriteria))
	out = append(out, Indicators...)
	return append(out, OracleCriteria...)
}

// IsOracle reports whether c is derived from the quality oracle.
func (c Criterion) IsOracle() bool {
	for _, o := range OracleCriteria {
		if c == o {
			return true
		}
	}
	return false
}

// Known reports whether c is a criterion the engine can compute.
func (c Criterion) Known() bool {
	for _, k := range AllCriteria() {
		if c == k {
			return true
		}
	}
	return false
}

// ISOWeek identifies an ISO-8601 week.
type ISOWeek struct {
	Year int
	Week int
}

// WeekOf returns the ISO week containing t (in UTC).
func WeekOf(t time.Time) ISOWeek {
	y, w := t.UTC().ISOWeek()
	return ISOWeek{Year: y, Week: w}
}

// Start returns the Monday 00:00 UTC opening the week.
func (w ISOWeek) Start() time.Time {
	// January 4th is always in week 1.
	jan4 := time.Date(w.Year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -offset)
	return monday.AddDate(0, 0, (w.Week-1)*7)
}

// Next returns the following week.
func (w ISOWeek) Next() ISOWeek { return WeekOf(w.Start().AddDate(0, 0, 7)) }

// Before reports whether w precedes o.
func (w ISOWeek) Before(o ISOWeek) bool {
	if w.Year != o.Year {
		return w.Year < o.Year
	}
	return w.Week < o.Week
}

// ActivityWeek counts one contributor's activity in one repository during one ISO week.
type ActivityWeek struct {
	Login        Login
	Week         ISOWeek
	Repository   string
	Commits      int
	Issues       int
	PullRequests int
}

// Active reports whether the week has any commit, issue or pull request.
func (a ActivityWeek) Active() bool { return a.Commits+a.Issues+a.PullRequests > 0 }

// SortActivityWeeks orders weeks by login, week, then repository.
func SortActivityWeeks(ws []ActivityWeek) {
	sort.Slice(ws, func(i, j int) bool {
		a, b := ws[i], ws[j]
		if a.Login != b.Login {
			return a.Login < b.Login
		}
		if a.Week != b.Week {
			return a.Week.Before(b.Week)
		}
		return a.Repository < b.Repository
	})
}

// Counts are raw non-negative activity counts.
type Counts struct {
	Commits           int
	CoAuthoredCommits int
	Issues            int
	PullRequests      int
	MergedPRs         int
	ReviewComments    int
	LinesAdded        int
	LinesRemoved      int
	FilesChanged      int
}

// Volume is the activity volume used to weight repositories in a user roll-up.
func (c Counts) Volume() int {
	return c.Commits + c.Issues + c.PullRequests + c.ReviewComments
}

// Add sums two count sets.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Commits:           c.Commits + o.Commits,
		CoAuthoredCommits: c.CoAuthoredCommits + o.CoAuthoredCommits,
		Issues:            c.Issues + o.Issues,
		PullRequests:      c.PullRequests + o.PullRequests,
		MergedPRs:         c.MergedPRs + o.MergedPRs,
		ReviewComments:    c.ReviewComments + o.ReviewComments,
		LinesAdded:        c.LinesAdded + o.LinesAdded,
		LinesRemoved:      c.LinesRemoved + o.LinesRemoved,
		FilesChanged:      c.FilesChanged + o.FilesChanged,
	}
}

// SignalBundle maps indicator names to values for one (contributor, repository) pair.
type SignalBundle struct {
	Login      Login
	Repository string
	Indicators map[Criterion]float64
	Counts     Counts
	Weeks      []ActivityWeek
}

// Level is the discrete maturity classification.
type Level string

const (
	LevelMature   Level = "Mature"
	LevelHealthy  Level = "Healthy"
	LevelBeginner Level = "Beginner"
)

// CriterionScore is one criterion's normalized sub-score and its effective weight.
// Weight is zero and Active false when the criterion was excluded from the combination.
type CriterionScore struct {
	Value  float64
	Weight float64
	Active bool
}

// Score is the scoring outcome for one contributor in one scope.
type Score struct {
	Login       Login
	Criteria    map[Criterion]CriterionScore
	Final       float64
	Level       Level
	Explanation string
}
