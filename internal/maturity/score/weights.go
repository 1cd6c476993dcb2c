package score

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"agilemeter.shikanime.studio/internal/maturity"
)

// Weights assigns a non-negative weight to each criterion.
type Weights map[maturity.Criterion]float64

// DefaultWeights returns the built-in weights. They sum to 1.
func DefaultWeights() Weights {
	return Weights{
		maturity.WeeklyCommits:        0.15,
		maturity.ActivityConsistency:  0.10,
		maturity.CommitAtomicity:      0.10,
		maturity.ConventionalCommits:  0.10,
		maturity.IssueMaturity:        0.08,
		maturity.PullRequestMaturity:  0.08,
		maturity.PullRequestMergeRate: 0.07,
		maturity.ReviewEngagement:     0.10,
		maturity.RepositoryStructure:  0.07,
		maturity.AICommitQuality:      0.05,
		maturity.AIIssueQuality:       0.05,
		maturity.AIReviewQuality:      0.05,
	}
}

// FromMap overrides the default weights with the named entries of m.
func FromMap(m map[string]float64) (Weights, error) {
	w := DefaultWeights()
	for name, v := range m {
		w[maturity.Criterion(name)] = v
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Validate checks that every weight names a known criterion, is finite and
// non-negative, and that the total is positive.
func (w Weights) Validate() error {
	var errs []error
	total := 0.0
	for _, c := range w.Criteria() {
		v := w[c]
		switch {
		case !c.Known():
			errs = append(errs, fmt.Errorf("unknown criterion %q", c))
		case math.IsNaN(v) || math.IsInf(v, 0):
			errs = append(errs, fmt.Errorf("weight of %s is not finite", c))
		case v < 0:
			errs = append(errs, fmt.Errorf("weight of %s is negative: %g", c, v))
		default:
			total += v
		}
	}
	if len(errs) == 0 && total <= 0 {
		errs = append(errs, errors.New("weights must have a positive total"))
	}
	return errors.Join(errs...)
}

// Criteria returns the weighted criteria sorted by name.
func (w Weights) Criteria() []maturity.Criterion {
	out := make([]maturity.Criterion, 0, len(w))
	for c := range w {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Normalize returns the weights of the active criteria with a positive
// weight, rescaled to sum to 1. It returns an empty set when none remain.
func (w Weights) Normalize(active []maturity.Criterion) Weights {
	out := make(Weights, len(active))
	total := 0.0
	for _, c := range active {
		if v := w[c]; v > 0 {
			out[c] = v
			total += v
		}
	}
	if total == 0 {
		return Weights{}
	}
	for c := range out {
		out[c] /= total
	}
	return out
}
