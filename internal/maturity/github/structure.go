package github

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v75/github"

	"agilemeter.shikanime.studio/internal/maturity"
	"agilemeter.shikanime.studio/internal/maturity/signals"
)

// ProbeStructure inspects the default branch tree and the README of a repository.
// An empty repository has an empty structure.
func (c *Client) ProbeStructure(ctx context.Context, repo maturity.Repository) (maturity.Structure, error) {
	ref := repo.DefaultBranch
	if ref == "" {
		ref = "HEAD"
	}
	var tree *github.Tree
	err := c.Do(ctx, "GET /repos/{owner}/{repo}/git/trees/{sha}", func(ctx context.Context) (*github.Response, error) {
		var (
			resp *github.Response
			err  error
		)
		tree, resp, err = c.c.Git.GetTree(ctx, repo.Owner, repo.Name, ref, true)
		return resp, err
	})
	switch {
	case IsEmptyRepository(err), IsNotFound(err):
		return maturity.Structure{}, nil
	case err != nil:
		return maturity.Structure{}, fmt.Errorf("failed to get tree of %s: %w", repo.FullName, err)
	}
	if tree.GetTruncated() {
		slog.DebugContext(ctx, "Repository tree truncated", "repo", repo.FullName)
	}
	paths := make([]string, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		paths = append(paths, e.GetPath())
	}

	readme, err := c.readme(ctx, repo)
	if err != nil {
		return maturity.Structure{}, err
	}
	return signals.DetectStructure(paths, readme), nil
}

func (c *Client) readme(ctx context.Context, repo maturity.Repository) (*maturity.ReadmeStats, error) {
	var content *github.RepositoryContent
	err := c.Do(ctx, "GET /repos/{owner}/{repo}/readme", func(ctx context.Context) (*github.Response, error) {
		var (
			resp *github.Response
			err  error
		)
		content, resp, err = c.c.Repositories.GetReadme(ctx, repo.Owner, repo.Name, nil)
		return resp, err
	})
	switch {
	case IsNotFound(err):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get README of %s: %w", repo.FullName, err)
	}
	text, err := content.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode README of %s: %w", repo.FullName, err)
	}
	stats, err := signals.ParseReadme([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("failed to parse README of %s: %w", repo.FullName, err)
	}
	return &stats, nil
}
