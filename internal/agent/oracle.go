package agent

import (
	"context"
	"errors"
	"strings"
)

// MinTextLength is the shortest trimmed text worth assessing.
const MinTextLength = 8

// ErrOracleUnavailable reports that some artifacts could not be assessed.
var ErrOracleUnavailable = errors.New("quality oracle unavailable")

// Category groups artifacts assessed with the same rubric.
type Category string

const (
	CategoryCommit Category = "commit"
	CategoryIssue  Category = "issue"
	CategoryReview Category = "review"
)

// Artifact is one contribution text submitted for assessment.
type Artifact struct {
	ID       string
	Category Category
	Text     string
}

// Assessment is the quality of one artifact. Score is only meaningful when Scored.
type Assessment struct {
	Score  float64
	Scored bool
}

// QualityOracle rates contribution texts in [0,1].
//
// Assess returns one entry per artifact ID. Artifacts that could not be
// assessed are present and unscored; an error alongside the map explains why.
type QualityOracle interface {
	Enabled() bool
	Assess(ctx context.Context, artifacts []Artifact) (map[string]Assessment, error)
}

// Disabled is the oracle used when AI scoring is turned off.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) Assess(_ context.Context, artifacts []Artifact) (map[string]Assessment, error) {
	return unscored(artifacts), nil
}

func unscored(artifacts []Artifact) map[string]Assessment {
	out := make(map[string]Assessment, len(artifacts))
	for _, a := range artifacts {
		out[a.ID] = Assessment{}
	}
	return out
}

// Assessable reports whether text is long enough to be sent to an oracle.
func Assessable(text string) bool {
	return len([]rune(strings.TrimSpace(text))) >= MinTextLength
}
