package score

import "agilemeter.shikanime.studio/internal/maturity"

const (
	MatureThreshold  = 0.75
	HealthyThreshold = 0.45
)

// LevelOf classifies a final score.
func LevelOf(final float64) maturity.Level {
	switch {
	case final >= MatureThreshold:
		return maturity.LevelMature
	case final >= HealthyThreshold:
		return maturity.LevelHealthy
	default:
		return maturity.LevelBeginner
	}
}
