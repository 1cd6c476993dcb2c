package github

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agilemeter.shikanime.studio/internal/maturity"
	"agilemeter.shikanime.studio/internal/maturity/github/githubtest"
)

func at(m time.Month, d int) time.Time { return time.Date(2024, m, d, 10, 0, 0, 0, time.UTC) }

func tp(t time.Time) *time.Time { return &t }

func apiRepo() *githubtest.Repo {
	return &githubtest.Repo{
		Name:      "api",
		CreatedAt: date(2020, 1, 1),
		PushedAt:  at(7, 20),
		Tree:      []string{"README.md", "LICENSE", ".github/workflows/ci.yml", "main.go"},
		Readme:    "# API\n\n## Install\n\nrun it\n\n## Usage\n\ncall it\n",
		Commits: []githubtest.Commit{
			{SHA: "c0", Login: "alice", Email: "alice@example.com", Message: "old", Date: at(6, 1), Files: 1},
			{
				SHA: "c1", Login: "alice", Email: "alice@example.com", Date: at(7, 2), Files: 2, Additions: 10, Deletions: 2,
				Message: "feat: login\n\nCo-authored-by: Bob <bob@example.com>",
			},
			{SHA: "c2", Login: "bob", Email: "bob@example.com", Message: "fix: typo", Date: at(7, 3), Files: 1},
			{
				SHA: "c3", Login: "carol", Email: "carol@example.com", Date: at(7, 4), Files: 5,
				Message: "chore: x\n\nCo-authored-by: Dan <12+dan@users.noreply.github.com>\nCo-authored-by: Zed <zed@example.com>",
			},
		},
		Issues: []githubtest.Issue{
			{Number: 1, Login: "alice", Title: "Login broken", Labels: []string{"bug"}, CreatedAt: at(7, 5), ClosedAt: tp(at(7, 8)), Comments: 2},
			{Number: 2, Login: "carol", Title: "Old", CreatedAt: at(6, 20)},
		},
		Pulls: []githubtest.Pull{
			{Number: 3, Login: "bob", Title: "Fix login", Labels: []string{"feature"}, CreatedAt: at(7, 6), ClosedAt: tp(at(7, 7)), MergedAt: tp(at(7, 7))},
		},
		IssueComments: []githubtest.Comment{
			{ID: 10, Number: 1, Login: "bob", Body: "Reproduced", CreatedAt: at(7, 5)},
			{ID: 11, Number: 1, Login: "alice", Body: "Thanks", CreatedAt: at(7, 6)},
			{ID: 12, Number: 3, Login: "alice", Body: "Looks good overall", CreatedAt: at(7, 6)},
		},
		ReviewComments: []githubtest.Comment{
			{ID: 20, Number: 3, Login: "alice", Body: "Rename this variable", Path: "main.go", CreatedAt: at(7, 6)},
		},
	}
}

func collectAPI(t *testing.T, srv *githubtest.Server, opts CollectorOptions, allow maturity.LoginSet, copts ...GitHubClientOption) *maturity.Collection {
	t.Helper()
	c := newTestClient(t, srv.URL, copts...)
	repo, err := GetRepository(context.Background(), c, "acme", "api")
	require.NoError(t, err)
	col, err := NewCollector(c, opts).Collect(context.Background(), repo, at(7, 1), at(7, 31), allow)
	require.NoError(t, err)
	return col
}

func TestCollect(t *testing.T) {
	srv := githubtest.NewServer("acme", apiRepo())
	defer srv.Close()

	col := collectAPI(t, srv, CollectorOptions{}, nil)
	assert.False(t, col.Incomplete())

	s := col.Repository.Structure
	assert.True(t, s.HasReadme)
	assert.True(t, s.HasLicense)
	assert.True(t, s.HasCI)
	assert.True(t, s.Readme.HasInstall)

	require.Len(t, col.Commits, 3)
	assert.Equal(t, "c3", col.Commits[0].SHA, "newest first")
	byTitle := make(map[string]maturity.Commit)
	for _, cm := range col.Commits {
		require.NotNil(t, cm.Stats)
		byTitle[cm.SHA] = cm
	}
	assert.Equal(t, maturity.CommitStats{Additions: 10, Deletions: 2, FilesTouched: 2}, *byTitle["c1"].Stats)
	assert.Equal(t, []maturity.Credit{{Login: "alice", Primary: true}, {Login: "bob"}}, byTitle["c1"].Credits())
	assert.Equal(t, []maturity.Credit{{Login: "carol", Primary: true}, {Login: "dan"}}, byTitle["c3"].Credits())
	assert.Equal(t, []maturity.CoAuthor{{Name: "Zed", Email: "zed@example.com"}}, col.Unresolved)

	require.Len(t, col.Issues, 1)
	assert.Equal(t, 1, col.Issues[0].NonAuthorComments)
	assert.Equal(t, []string{"bug"}, col.Issues[0].Labels)
	require.NotNil(t, col.Issues[0].ClosedAt)

	require.Len(t, col.PullRequests, 1)
	pr := col.PullRequests[0]
	assert.True(t, pr.Merged)
	assert.Equal(t, 1, pr.ReviewCount)
	assert.Equal(t, 2, pr.NonAuthorComments)

	require.Len(t, col.ReviewComments, 2)
	kinds := map[maturity.ReviewKind]int{}
	for _, rc := range col.ReviewComments {
		kinds[rc.Kind]++
		assert.Equal(t, 3, rc.PullRequest)
	}
	assert.Equal(t, map[maturity.ReviewKind]int{maturity.ReviewKindCode: 1, maturity.ReviewKindConversation: 1}, kinds)

	assert.Equal(t, maturity.RepositoryStats{
		Commits:             3,
		Issues:              1,
		PullRequests:        1,
		ReviewComments:      2,
		Contributors:        4,
		CoAuthoredCommits:   2,
		DistinctCoAuthors:   3,
		UnresolvedCoAuthors: 1,
	}, col.Stats)
}

func TestCollectSearchesUnknownCoAuthors(t *testing.T) {
	srv := githubtest.NewServer("acme", apiRepo())
	defer srv.Close()
	srv.AddUser("zed@example.com", "Zed")

	col := collectAPI(t, srv, CollectorOptions{SearchCoAuthors: true}, nil)
	assert.Empty(t, col.Unresolved)
	assert.Equal(t, 1, srv.Calls("/search/users"), "only unknown emails are searched")
	for _, cm := range col.Commits {
		if cm.SHA == "c3" {
			assert.True(t, cm.CreditedTo("zed"))
		}
	}
}

func TestCollectAllowList(t *testing.T) {
	srv := githubtest.NewServer("acme", apiRepo())
	defer srv.Close()

	col := collectAPI(t, srv, CollectorOptions{}, maturity.NewLoginSet("bob"))
	assert.Len(t, col.Commits, 2, "authored and co-authored commits are kept")
	assert.Empty(t, col.Issues)
	assert.Len(t, col.PullRequests, 1)
	assert.Empty(t, col.ReviewComments)
	assert.Equal(t, 3, col.Stats.Commits, "repository stats ignore the allow-list")
}

func TestCollectPartialFailure(t *testing.T) {
	srv := githubtest.NewServer("acme", apiRepo())
	defer srv.Close()
	srv.Fail("/repos/acme/api/issues", http.StatusBadGateway)

	col := collectAPI(t, srv, CollectorOptions{MaxCommitDetails: 1}, nil, WithMaxRetries(1))
	assert.True(t, col.Incomplete())
	require.Len(t, col.Failures, 1)
	assert.Equal(t, maturity.StepIssues, col.Failures[0].Step)
	assert.Equal(t, http.StatusBadGateway, col.Failures[0].Status)

	assert.Len(t, col.Commits, 3)
	assert.NotNil(t, col.Commits[0].Stats)
	assert.Nil(t, col.Commits[1].Stats, "details are capped")
	assert.Len(t, col.PullRequests, 1)
	assert.Len(t, col.ReviewComments, 2)
}

func TestCollectEmptyRepository(t *testing.T) {
	srv := githubtest.NewServer("acme", &githubtest.Repo{Name: "empty", Empty: true, CreatedAt: date(2024, 7, 1)})
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	repo, err := GetRepository(context.Background(), c, "acme", "empty")
	require.NoError(t, err)
	col, err := NewCollector(c, CollectorOptions{}).Collect(context.Background(), repo, at(7, 1), at(7, 31), nil)
	require.NoError(t, err)
	assert.False(t, col.Incomplete())
	assert.Empty(t, col.Commits)
	assert.Equal(t, maturity.Structure{}, col.Repository.Structure)
}

func TestCollectCancelled(t *testing.T) {
	srv := githubtest.NewServer("acme", apiRepo())
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	repo, err := GetRepository(context.Background(), c, "acme", "api")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	col, err := NewCollector(c, CollectorOptions{}).Collect(ctx, repo, at(7, 1), at(7, 31), nil)
	require.NoError(t, err)
	assert.Len(t, col.Failures, 7)
	for _, f := range col.Failures {
		assert.Equal(t, ErrCancelled.Error(), f.Err)
	}
	assert.Zero(t, srv.Calls("/repos/acme/api/commits"))
}

func TestCollectAuthenticationFailure(t *testing.T) {
	srv := githubtest.NewServer("acme", apiRepo())
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	repo, err := GetRepository(context.Background(), c, "acme", "api")
	require.NoError(t, err)

	srv.Fail("/repos/acme/api/commits", http.StatusUnauthorized)
	_, err = NewCollector(c, CollectorOptions{}).Collect(context.Background(), repo, at(7, 1), at(7, 31), nil)
	assert.True(t, IsAuthentication(err))
}
