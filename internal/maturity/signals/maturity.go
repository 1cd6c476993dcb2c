package signals

import "time"

// DefaultMinOpen is the minimum time an issue or pull request must stay open to count as mature.
const DefaultMinOpen = time.Hour

// IsMature reports whether an issue or pull request went through a minimal
// agile workflow: it was discussed by someone other than its author, it stayed
// open at least minOpen, and it carries at least one label. Items still open
// are measured up to until.
func IsMature(createdAt time.Time, closedAt *time.Time, until time.Time, labels int, nonAuthorComments int, minOpen time.Duration) bool {
	if nonAuthorComments < 1 || labels < 1 {
		return false
	}
	end := until
	if closedAt != nil {
		end = *closedAt
	}
	return end.Sub(createdAt) >= minOpen
}
