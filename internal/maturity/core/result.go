package core

import (
	"time"

	"agilemeter.shikanime.studio/internal/maturity"
	"agilemeter.shikanime.studio/internal/maturity/score"
	"agilemeter.shikanime.studio/internal/maturity/signals"
)

// Provenance records how a result was produced.
type Provenance struct {
	Organization  string
	Repository    string
	Viewer        string
	Since         time.Time
	Until         time.Time
	Users         []maturity.Login
	Workers       int
	OracleEnabled bool
	Weights       score.Weights
	GeneratedAt   time.Time
	Cancelled     bool
	Warnings      []string
}

// RepositoryStatus describes one processed repository.
type RepositoryStatus struct {
	Repository     maturity.Repository
	Stats          maturity.RepositoryStats
	Failures       []maturity.CollectionFailure
	CommitsPerWeek float64
	Structure      float64
	Engagement     float64
	Score          float64
	Level          maturity.Level
}

// Incomplete reports whether any collection step failed.
func (s RepositoryStatus) Incomplete() bool { return len(s.Failures) > 0 }

// ActivityGap lists the inactive weeks of a contributor inside their active span.
type ActivityGap struct {
	Login maturity.Login
	Weeks []time.Time
}

// Result is the outcome of a run. Every slice is sorted for stable output.
type Result struct {
	Provenance   Provenance
	Users        []score.UserScore
	Rows         []score.Row
	Repositories []RepositoryStatus
	Gaps         []ActivityGap

	collections []*maturity.Collection
}

// UserDetail is the detailed activity of one contributor in one repository.
type UserDetail struct {
	Result         *Result
	Login          maturity.Login
	Repository     RepositoryStatus
	Score          *score.UserScore
	Counts         maturity.Counts
	Frequency      signals.FrequencyAnalysis
	Commits        []maturity.Commit
	Issues         []maturity.Issue
	PullRequests   []maturity.PullRequest
	ReviewComments []maturity.ReviewComment
}
