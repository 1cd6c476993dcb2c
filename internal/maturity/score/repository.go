package score

import "agilemeter.shikanime.studio/internal/maturity"

// RepositoryFacts are the inputs of a repository score.
type RepositoryFacts struct {
	CommitsPerWeek float64
	Issues         int
	PullRequests   int
	Contributors   int
	Structure      float64
	Engagement     float64

	// Oracle means over the contributors of the repository, nil when unscored.
	CodeQuality   *float64
	Documentation *float64
}

// Velocity saturates at five commits a week.
func (f RepositoryFacts) Velocity() float64 {
	return min(1, max(0, f.CommitsPerWeek/5))
}

// Collaboration averages issue and pull request activity, saturated at 20,
// with contributor diversity, saturated at 5.
func (f RepositoryFacts) Collaboration() float64 {
	activity := min(1, float64(f.Issues+f.PullRequests)/20)
	diversity := min(1, float64(f.Contributors)/5)
	return (activity + diversity) / 2
}

const (
	velocityWeight      = 0.25
	collaborationWeight = 0.20
	codeQualityWeight   = 0.20
	documentationWeight = 0.15
	structureWeight     = 0.10
	engagementWeight    = 0.10
)

// RepositoryScore combines the facts of one repository. Oracle parts that are
// nil are left out and the remaining weights re-normalized.
func RepositoryScore(f RepositoryFacts) (float64, maturity.Level) {
	sum := velocityWeight*f.Velocity() +
		collaborationWeight*f.Collaboration() +
		structureWeight*f.Structure +
		engagementWeight*f.Engagement
	total := velocityWeight + collaborationWeight + structureWeight + engagementWeight
	if f.CodeQuality != nil {
		sum += codeQualityWeight * *f.CodeQuality
		total += codeQualityWeight
	}
	if f.Documentation != nil {
		sum += documentationWeight * *f.Documentation
		total += documentationWeight
	}
	final := sum / total
	return final, LevelOf(final)
}
