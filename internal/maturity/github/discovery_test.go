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

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func discoveryServer(t *testing.T) *githubtest.Server {
	t.Helper()
	srv := githubtest.NewServer("acme",
		&githubtest.Repo{Name: "alpha", CreatedAt: date(2020, 1, 1), PushedAt: date(2024, 8, 1)},
		&githubtest.Repo{Name: "beta", Fork: true, CreatedAt: date(2021, 1, 1), PushedAt: date(2024, 8, 1)},
		&githubtest.Repo{Name: "gamma", Archived: true, CreatedAt: date(2019, 1, 1), PushedAt: date(2024, 6, 15)},
		&githubtest.Repo{Name: "delta", Fork: true, CreatedAt: date(2024, 6, 10), PushedAt: date(2024, 6, 11)},
		&githubtest.Repo{Name: "epsilon", CreatedAt: date(2024, 7, 1), PushedAt: date(2024, 7, 2)},
	)
	t.Cleanup(srv.Close)
	return srv
}

func names(repos []maturity.Repository) []string {
	out := make([]string, 0, len(repos))
	for _, r := range repos {
		out = append(out, r.Name)
	}
	return out
}

func TestDiscover(t *testing.T) {
	since := date(2024, 6, 1)
	tests := []struct {
		name     string
		opts     DiscoveryOptions
		expected []string
	}{
		{"no filter", DiscoveryOptions{}, []string{"alpha", "beta", "delta", "epsilon", "gamma"}},
		{"skip forks", DiscoveryOptions{SkipForks: true}, []string{"alpha", "epsilon", "gamma"}},
		{"only recent", DiscoveryOptions{OnlyRecent: true}, []string{"alpha", "beta", "epsilon"}},
		{
			"include new repositories overrides other filters",
			DiscoveryOptions{SkipForks: true, OnlyRecent: true, IncludeNewRepos: true},
			[]string{"alpha", "delta", "epsilon"},
		},
		{"only new", DiscoveryOptions{OnlyNew: true}, []string{"delta", "epsilon"}},
		{"only new without forks", DiscoveryOptions{OnlyNew: true, SkipForks: true}, []string{"epsilon"}},
	}

	srv := discoveryServer(t)
	c := newTestClient(t, srv.URL)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Since = since
			d, err := Discover(context.Background(), c, "acme", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, names(d.Organization.Repositories))
			assert.Empty(t, d.Warnings)
		})
	}
}

func TestDiscoverOrganizationNotFound(t *testing.T) {
	srv := discoveryServer(t)
	c := newTestClient(t, srv.URL)

	_, err := Discover(context.Background(), c, "unknown", DiscoveryOptions{})
	assert.ErrorIs(t, err, ErrOrganizationNotFound)
}

func TestDiscoverPartialListing(t *testing.T) {
	srv := discoveryServer(t)
	srv.PageSize = 2
	srv.FailFromPage("/orgs/acme/repos", 2, http.StatusBadGateway)
	c := newTestClient(t, srv.URL, WithMaxRetries(1))

	d, err := Discover(context.Background(), c, "acme", DiscoveryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names(d.Organization.Repositories))
	require.Len(t, d.Warnings, 1)
	assert.Contains(t, d.Warnings[0], "interrupted after 2 repositories")
	assert.Equal(t, 3, srv.Calls("/orgs/acme/repos"))
}

func TestDiscoverCatastrophicFailure(t *testing.T) {
	srv := discoveryServer(t)
	srv.Fail("/orgs/acme/repos", http.StatusInternalServerError)
	c := newTestClient(t, srv.URL, WithMaxRetries(0))

	_, err := Discover(context.Background(), c, "acme", DiscoveryOptions{})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
}

func TestGetRepository(t *testing.T) {
	srv := discoveryServer(t)
	c := newTestClient(t, srv.URL)

	r, err := GetRepository(context.Background(), c, "acme", "gamma")
	require.NoError(t, err)
	assert.Equal(t, "acme/gamma", r.FullName)
	assert.Equal(t, "acme", r.Owner)
	assert.True(t, r.Archived)
	assert.Equal(t, "main", r.DefaultBranch)

	_, err = GetRepository(context.Background(), c, "acme", "missing")
	assert.True(t, IsNotFound(err))
}

func TestParseRepositoryRef(t *testing.T) {
	tests := []struct {
		ref         string
		owner, name string
		wantErr     bool
	}{
		{ref: "acme/api", owner: "acme", name: "api"},
		{ref: "https://github.com/acme/api.git", owner: "acme", name: "api"},
		{ref: " acme/api/ ", owner: "acme", name: "api"},
		{ref: "https://gitlab.com/acme/api", wantErr: true},
		{ref: "acme", wantErr: true},
		{ref: "acme/api/extra", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			owner, name, err := ParseRepositoryRef(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.name, name)
		})
	}
}
