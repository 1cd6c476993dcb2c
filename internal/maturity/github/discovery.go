package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"

	"agilemeter.shikanime.studio/internal/maturity"
)

// DefaultStalenessWindow is the push recency required by OnlyRecent past the window start.
const DefaultStalenessWindow = 30 * 24 * time.Hour

// DiscoveryOptions filters the repositories of an organization.
type DiscoveryOptions struct {
	Since           time.Time
	SkipForks       bool
	OnlyRecent      bool
	IncludeNewRepos bool
	OnlyNew         bool
	StalenessWindow time.Duration
}

// Discovery is the filtered repository list of an organization.
type Discovery struct {
	Organization maturity.Organization
	Warnings     []string
}

// ParseRepositoryRef accepts "owner/name" or a github.com URL.
func ParseRepositoryRef(ref string) (owner, name string, err error) {
	ref = strings.TrimSpace(ref)
	if strings.Contains(ref, "://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", "", fmt.Errorf("invalid URL: %w", err)
		}
		if u.Host != "github.com" && u.Host != "www.github.com" {
			return "", "", fmt.Errorf("not a GitHub URL: %s", ref)
		}
		ref = u.Path
	}
	parts := strings.Split(strings.Trim(ref, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q, expected owner/name", ref)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// Discover lists the repositories of org and applies the filters of opts.
// A listing interrupted after some pages keeps what was gathered and records a warning.
func Discover(ctx context.Context, c *Client, org string, opts DiscoveryOptions) (*Discovery, error) {
	if opts.StalenessWindow == 0 {
		opts.StalenessWindow = DefaultStalenessWindow
	}
	d := &Discovery{Organization: maturity.Organization{Login: org}}

	err := c.Do(ctx, "GET /orgs/{org}", func(ctx context.Context) (*github.Response, error) {
		_, resp, err := c.c.Organizations.Get(ctx, org)
		return resp, err
	})
	switch {
	case IsNotFound(err):
		return nil, fmt.Errorf("%s: %w", org, ErrOrganizationNotFound)
	case err != nil:
		return nil, fmt.Errorf("failed to get organization %s: %w", org, err)
	}

	repos, err := Paginate(ctx, c, "GET /orgs/{org}/repos",
		func(ctx context.Context, page int) ([]*github.Repository, *github.Response, error) {
			return c.c.Repositories.ListByOrg(ctx, org, &github.RepositoryListByOrgOptions{
				Type:        "all",
				Sort:        "full_name",
				ListOptions: github.ListOptions{Page: page, PerPage: 100},
			})
		})
	if err != nil {
		if len(repos) == 0 {
			return nil, fmt.Errorf("failed to list repositories of %s: %w", org, err)
		}
		w := fmt.Sprintf("repository listing of %s interrupted after %d repositories: %v", org, len(repos), err)
		slog.WarnContext(ctx, "Repository listing incomplete", "org", org, "gathered", len(repos), "error", err)
		d.Warnings = append(d.Warnings, w)
	}

	seen := make(map[string]struct{}, len(repos))
	for _, r := range repos {
		repo := repositoryFromGitHub(r)
		if _, ok := seen[repo.Name]; ok {
			continue
		}
		seen[repo.Name] = struct{}{}
		if keep(repo, opts) {
			d.Organization.Repositories = append(d.Organization.Repositories, repo)
		}
	}
	sort.Slice(d.Organization.Repositories, func(i, j int) bool {
		return d.Organization.Repositories[i].Name < d.Organization.Repositories[j].Name
	})
	slog.InfoContext(ctx, "Discovered repositories",
		"org", org, "listed", len(repos), "kept", len(d.Organization.Repositories))
	return d, nil
}

// keep applies the discovery filters. Repositories created inside the window
// are re-admitted by IncludeNewRepos whatever rejected them.
func keep(r maturity.Repository, opts DiscoveryOptions) bool {
	isNew := !r.CreatedAt.Before(opts.Since)
	if opts.OnlyNew {
		return isNew && (!opts.SkipForks || !r.Fork || opts.IncludeNewRepos)
	}
	ok := true
	if opts.SkipForks && r.Fork {
		ok = false
	}
	if opts.OnlyRecent && r.PushedAt.Before(opts.Since.Add(opts.StalenessWindow)) {
		ok = false
	}
	return ok || (opts.IncludeNewRepos && isNew)
}

// GetRepository fetches a single repository, bypassing organization listing.
func GetRepository(ctx context.Context, c *Client, owner, name string) (maturity.Repository, error) {
	var r *github.Repository
	err := c.Do(ctx, "GET /repos/{owner}/{repo}", func(ctx context.Context) (*github.Response, error) {
		var (
			resp *github.Response
			err  error
		)
		r, resp, err = c.c.Repositories.Get(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		return maturity.Repository{}, fmt.Errorf("failed to get repository %s/%s: %w", owner, name, err)
	}
	return repositoryFromGitHub(r), nil
}

func repositoryFromGitHub(r *github.Repository) maturity.Repository {
	return maturity.Repository{
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Owner:         r.GetOwner().GetLogin(),
		Language:      r.GetLanguage(),
		DefaultBranch: r.GetDefaultBranch(),
		Stars:         r.GetStargazersCount(),
		Forks:         r.GetForksCount(),
		Watchers:      r.GetWatchersCount(),
		Fork:          r.GetFork(),
		Archived:      r.GetArchived(),
		CreatedAt:     r.GetCreatedAt().Time,
		PushedAt:      r.GetPushedAt().Time,
	}
}
