package report

import (
	"sort"

	"agilemeter.shikanime.studio/internal/maturity"
	"agilemeter.shikanime.studio/internal/maturity/signals"
)

var frequencyAdvice = map[signals.AlertLevel][]string{
	signals.AlertCritical: {
		"Set up a daily commit routine, even for work in progress.",
		"Agree on a minimum weekly commit goal with the team.",
		"Consider pair programming to get back into the codebase.",
	},
	signals.AlertHigh: {
		"Commit more often to keep a steady rhythm.",
		"Aim for at least one commit every week.",
		"Review the development workflow for blockers between commits.",
	},
	signals.AlertMedium: {
		"Raise the commit frequency gradually.",
		"Split work into smaller, more frequent commits.",
		"Record daily progress so quiet weeks stay visible.",
	},
	signals.AlertLow: {
		"Keep the current cadence.",
		"Commit even more often for finer tracking.",
		"Keep monitoring consistency.",
	},
	signals.AlertNormal: {
		"Good commit frequency.",
		"Keep the current consistency.",
		"Small adjustments can still smooth out the rhythm.",
	},
	signals.AlertGood: {
		"Excellent commit frequency.",
		"Keep up the current consistency.",
		"Share the working habits that keep this pace with the team.",
	},
}

var criterionAdvice = map[maturity.Criterion]string{
	maturity.WeeklyCommits:        "Commit in more weeks of the period instead of in bursts.",
	maturity.ActivityConsistency:  "Avoid inactive weeks between contributions.",
	maturity.CommitAtomicity:      "Keep commits focused on a few files each.",
	maturity.ConventionalCommits:  "Use conventional commit subjects such as \"feat:\" or \"fix:\".",
	maturity.IssueMaturity:        "Label issues and let them be discussed before closing them.",
	maturity.PullRequestMaturity:  "Label pull requests and ask for reviews before merging.",
	maturity.PullRequestMergeRate: "Follow pull requests through to a merge or close stale ones.",
	maturity.ReviewEngagement:     "Review the pull requests of teammates more often.",
	maturity.RepositoryStructure:  "Complete the repository with a README, a license, CI, tests and documentation.",
	maturity.AICommitQuality:      "Explain the intent of each change in the commit body.",
	maturity.AIIssueQuality:       "Write issues with a clear problem statement and acceptance criteria.",
	maturity.AIReviewQuality:      "Make review comments specific and actionable.",
}

// FrequencyAdvice returns the recommendations for a commit frequency level.
func FrequencyAdvice(level signals.AlertLevel) []string { return frequencyAdvice[level] }

// Recommendations returns advice for the active criteria scoring below the
// healthy threshold, weakest first.
func Recommendations(s maturity.Score, threshold float64) []string {
	var weak []maturity.Criterion
	for c, cs := range s.Criteria {
		if cs.Active && cs.Value < threshold {
			weak = append(weak, c)
		}
	}
	sort.Slice(weak, func(i, j int) bool {
		vi, vj := s.Criteria[weak[i]].Value, s.Criteria[weak[j]].Value
		if vi != vj {
			return vi < vj
		}
		return weak[i] < weak[j]
	})
	out := make([]string, 0, len(weak))
	for _, c := range weak {
		out = append(out, criterionAdvice[c])
	}
	return out
}
