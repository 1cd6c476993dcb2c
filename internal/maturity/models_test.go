package maturity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitCredits(t *testing.T) {
	tests := []struct {
		name     string
		commit   Commit
		expected []Credit
	}{
		{
			name:     "primary author only",
			commit:   Commit{Author: "alice"},
			expected: []Credit{{Login: "alice", Primary: true}},
		},
		{
			name: "two resolved co-authors",
			commit: Commit{
				Author: "alice",
				CoAuthors: []CoAuthor{
					{Name: "Bob", Email: "bob@example.com", Login: "bob"},
					{Name: "Carol", Email: "carol@example.com", Login: "carol"},
				},
			},
			expected: []Credit{
				{Login: "alice", Primary: true},
				{Login: "bob"},
				{Login: "carol"},
			},
		},
		{
			name: "unresolved and duplicate co-authors are skipped",
			commit: Commit{
				Author: "alice",
				CoAuthors: []CoAuthor{
					{Name: "Alice", Email: "alice@example.com", Login: "alice"},
					{Name: "Ghost", Email: "ghost@example.com"},
					{Name: "Bob", Login: "bob"},
					{Name: "Bob again", Login: "bob"},
				},
			},
			expected: []Credit{{Login: "alice", Primary: true}, {Login: "bob"}},
		},
		{
			name: "unknown primary author still credits co-authors",
			commit: Commit{
				CoAuthors: []CoAuthor{{Name: "Bob", Login: "bob"}},
			},
			expected: []Credit{{Login: "bob"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.commit.Credits())
		})
	}
}

func TestCommitSubject(t *testing.T) {
	c := Commit{Message: "  feat: add thing\n\nlonger body\n"}
	assert.Equal(t, "feat: add thing", c.Subject())
}

func TestLoginSet(t *testing.T) {
	var all LoginSet
	assert.True(t, all.Allows("anyone"))
	assert.False(t, all.Allows(""))

	s := NewLoginSet("Alice", " bob ", "")
	require.Len(t, s, 2)
	assert.True(t, s.Allows(NewLogin("ALICE")))
	assert.False(t, s.Allows("carol"))
	assert.Equal(t, []Login{"alice", "bob"}, s.Sorted())

	assert.Nil(t, NewLoginSet("", "  "))
}

func TestISOWeek(t *testing.T) {
	tests := []struct {
		name  string
		at    time.Time
		week  ISOWeek
		start time.Time
	}{
		{
			name:  "mid week",
			at:    time.Date(2024, time.August, 7, 15, 0, 0, 0, time.UTC),
			week:  ISOWeek{Year: 2024, Week: 32},
			start: time.Date(2024, time.August, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "year boundary belongs to next ISO year",
			at:    time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC),
			week:  ISOWeek{Year: 2025, Week: 1},
			start: time.Date(2024, time.December, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "first days of january in previous ISO year",
			at:    time.Date(2021, time.January, 2, 0, 0, 0, 0, time.UTC),
			week:  ISOWeek{Year: 2020, Week: 53},
			start: time.Date(2020, time.December, 28, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := WeekOf(tt.at)
			assert.Equal(t, tt.week, w)
			assert.Equal(t, tt.start, w.Start())
			assert.True(t, w.Before(w.Next()))
			assert.Equal(t, tt.start.AddDate(0, 0, 7), w.Next().Start())
		})
	}
}

func TestStructureScore(t *testing.T) {
	assert.Equal(t, 0.0, Structure{}.Score())
	assert.InDelta(t, 0.5, Structure{HasReadme: true, HasLicense: true, HasCI: true}.Score(), 1e-9)
	full := Structure{HasReadme: true, HasLicense: true, HasCI: true, HasTests: true, HasDocs: true, HasGitignore: true}
	assert.Equal(t, 1.0, full.Score())
}

func TestCollectionLogins(t *testing.T) {
	c := &Collection{
		Commits: []Commit{{Author: "bob", CoAuthors: []CoAuthor{{Login: "dave"}, {Email: "x@y.z"}}}},
		Issues:  []Issue{{Author: "alice"}},
		PullRequests: []PullRequest{
			{Author: "carol"},
			{Author: ""},
		},
		ReviewComments: []ReviewComment{{Author: "alice"}},
	}
	assert.Equal(t, []Login{"alice", "bob", "carol", "dave"}, c.Logins())
	assert.False(t, c.Incomplete())
	c.Fail(StepPullRequests, 502, nil)
	assert.True(t, c.Incomplete())
}
