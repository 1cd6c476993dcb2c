package signals

import (
	"time"

	"agilemeter.shikanime.studio/internal/maturity"
)

// WindowWeeks counts the distinct ISO weeks overlapping [since, until].
func WindowWeeks(since, until time.Time) int {
	if until.Before(since) {
		return 0
	}
	return weeksBetween(maturity.WeekOf(since), maturity.WeekOf(until))
}

// weeksBetween counts ISO weeks from first to last inclusive.
func weeksBetween(first, last maturity.ISOWeek) int {
	days := last.Start().Sub(first.Start()).Hours() / 24
	return int(days/7) + 1
}

// activeWeeks folds activity weeks of any repository into the set of weeks with activity.
func activeWeeks(weeks []maturity.ActivityWeek) map[maturity.ISOWeek]struct{} {
	set := make(map[maturity.ISOWeek]struct{}, len(weeks))
	for _, w := range weeks {
		if w.Active() {
			set[w.Week] = struct{}{}
		}
	}
	return set
}

// span returns the first and last active weeks. ok is false without activity.
func span(active map[maturity.ISOWeek]struct{}) (first, last maturity.ISOWeek, ok bool) {
	for w := range active {
		if !ok || w.Before(first) {
			first = w
		}
		if !ok || last.Before(w) {
			last = w
		}
		ok = true
	}
	return first, last, ok
}

// Gaps returns the Monday of every ISO week inside the active span of weeks
// that has no commit, issue or pull request. Weeks of different repositories
// are merged, so callers pass the weeks of a single contributor.
func Gaps(weeks []maturity.ActivityWeek) []time.Time {
	active := activeWeeks(weeks)
	first, last, ok := span(active)
	if !ok {
		return nil
	}
	var gaps []time.Time
	for w := first; !last.Before(w); w = w.Next() {
		if _, hit := active[w]; !hit {
			gaps = append(gaps, w.Start())
		}
	}
	return gaps
}

// Consistency is 1 - gaps/span over the active span, 0 without activity.
func Consistency(weeks []maturity.ActivityWeek) float64 {
	active := activeWeeks(weeks)
	first, last, ok := span(active)
	if !ok {
		return 0
	}
	total := weeksBetween(first, last)
	gaps := total - len(active)
	return clamp(1 - float64(gaps)/float64(total))
}

// AlertLevel classifies commit frequency.
type AlertLevel string

const (
	AlertCritical AlertLevel = "critical"
	AlertHigh     AlertLevel = "high"
	AlertMedium   AlertLevel = "medium"
	AlertLow      AlertLevel = "low"
	AlertNormal   AlertLevel = "normal"
	AlertGood     AlertLevel = "good"
)

// FrequencyAnalysis summarizes how regularly a contributor committed over a window.
type FrequencyAnalysis struct {
	Commits        int
	Weeks          int
	InactiveWeeks  int
	CommitsPerWeek float64
	Level          AlertLevel
}

// ActivityRate is the share of window weeks with at least one commit.
func (f FrequencyAnalysis) ActivityRate() float64 {
	if f.Weeks == 0 {
		return 0
	}
	return float64(f.Weeks-f.InactiveWeeks) / float64(f.Weeks)
}

// Frequency analyses the commit dates of one contributor over [since, until].
// Inactive weeks are the window weeks without any commit.
func Frequency(commits []time.Time, since, until time.Time) FrequencyAnalysis {
	weeks := max(1, WindowWeeks(since, until))
	f := FrequencyAnalysis{Commits: len(commits), Weeks: weeks, InactiveWeeks: weeks}
	if len(commits) == 0 {
		f.Level = AlertCritical
		return f
	}

	active := make(map[maturity.ISOWeek]struct{})
	for _, c := range commits {
		if c.Before(since) || c.After(until) {
			continue
		}
		active[maturity.WeekOf(c)] = struct{}{}
	}
	f.InactiveWeeks = max(0, weeks-len(active))
	f.CommitsPerWeek = float64(len(commits)) / float64(weeks)

	inactive := float64(f.InactiveWeeks)
	switch {
	case f.CommitsPerWeek >= 1:
		f.Level = AlertGood
	case inactive >= float64(weeks)*0.7:
		f.Level = AlertHigh
	case inactive >= float64(weeks)*0.4:
		f.Level = AlertMedium
	case f.CommitsPerWeek < 0.5:
		f.Level = AlertLow
	default:
		f.Level = AlertNormal
	}
	return f
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
