package signals

import (
	"time"

	"agilemeter.shikanime.studio/internal/maturity"
)

// Engagement averages the saturated star (10), fork (5) and watcher (10) counts.
func Engagement(r maturity.Repository) float64 {
	stars := clamp(float64(r.Stars) / 10)
	forks := clamp(float64(r.Forks) / 5)
	watchers := clamp(float64(r.Watchers) / 10)
	return (stars + forks + watchers) / 3
}

// CommitsPerWeek is the commit rate between the later of the repository
// creation and since, and until. The period counts at least one week.
func CommitsPerWeek(commits int, createdAt, since, until time.Time) float64 {
	from := since
	if createdAt.After(from) {
		from = createdAt
	}
	weeks := max(1, until.Sub(from).Hours()/(24*7))
	return float64(commits) / weeks
}
