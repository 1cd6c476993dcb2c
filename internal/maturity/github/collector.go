package github

import (
	"context"
	"log/slog"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/google/go-github/v75/github"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"agilemeter.shikanime.studio/internal/maturity"
)

const (
	DefaultMaxCommitDetails = 100
	DefaultFetchTimeout     = 10 * time.Minute
	detailWorkers           = 4
	perPage                 = 100
)

// CollectorOptions tunes a Collector.
type CollectorOptions struct {
	// MaxCommitDetails caps the commits whose files and lines are fetched, newest first.
	MaxCommitDetails int
	// FetchTimeout bounds the fetches of one repository, which outlive run cancellation.
	FetchTimeout time.Duration
	// SearchCoAuthors enables the user search fallback for co-author emails.
	SearchCoAuthors bool
}

// Collector gathers the contributions of one repository at a time.
type Collector struct {
	c    *Client
	opts CollectorOptions
}

// NewCollector returns a Collector using c for every request.
func NewCollector(c *Client, opts CollectorOptions) *Collector {
	if opts.MaxCommitDetails == 0 {
		opts.MaxCommitDetails = DefaultMaxCommitDetails
	}
	if opts.FetchTimeout == 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	return &Collector{c: c, opts: opts}
}

// collection is the state of one Collect call.
type collection struct {
	*maturity.Collection
	c        *Client
	stop     <-chan struct{}
	resolver *resolver
	issues   map[int]int
	pulls    map[int]int
}

// Collect gathers the commits, issues, pull requests and review comments of
// repo created in [since, until]. Every step is attempted independently and
// failures are recorded on the collection. Only authentication failures are
// returned as errors. Cancelling ctx stops listings after their current page
// and skips the remaining steps.
func (col *Collector) Collect(
	ctx context.Context,
	repo maturity.Repository,
	since, until time.Time,
	allow maturity.LoginSet,
) (*maturity.Collection, error) {
	tracer := otel.Tracer("agilemeter/github")
	ctx, span := tracer.Start(ctx, "Collector.Collect")
	span.SetAttributes(
		attribute.String("repo", repo.FullName),
		attribute.String("since", since.Format(time.DateOnly)),
	)
	defer span.End()

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), col.opts.FetchTimeout)
	defer cancel()

	s := &collection{
		Collection: &maturity.Collection{Repository: repo, Since: since, Until: until},
		c:          col.c,
		stop:       ctx.Done(),
		resolver:   newResolver(col.c, col.opts.SearchCoAuthors),
		issues:     make(map[int]int),
		pulls:      make(map[int]int),
	}

	steps := []struct {
		step maturity.CollectionStep
		fn   func(context.Context) error
	}{
		{maturity.StepStructure, s.structure},
		{maturity.StepCommits, s.commits},
		{maturity.StepCommitDetails, func(ctx context.Context) error { return s.commitDetails(ctx, col.opts.MaxCommitDetails) }},
		{maturity.StepIssues, s.listIssues},
		{maturity.StepPullRequests, s.listPullRequests},
		{maturity.StepIssueComments, s.issueComments},
		{maturity.StepReviewComments, s.reviewComments},
	}
	for _, st := range steps {
		if ctx.Err() != nil {
			s.Fail(st.step, 0, ErrCancelled)
			continue
		}
		err := st.fn(fetchCtx)
		switch {
		case err == nil:
		case IsAuthentication(err):
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		default:
			slog.WarnContext(ctx, "Collection step failed", "repo", repo.FullName, "kind", st.step, "error", err)
			s.Fail(st.step, StatusOf(err), err)
		}
	}

	s.Unresolved = s.resolver.resolveAll(fetchCtx, s.Commits)
	s.Stats = repositoryStats(s.Collection)
	if allow != nil {
		filter(s.Collection, allow)
	}

	span.SetAttributes(
		attribute.Int("commits", s.Stats.Commits),
		attribute.Int("failures", len(s.Failures)),
	)
	if s.Incomplete() {
		span.SetStatus(codes.Error, "incomplete collection")
	}
	return s.Collection, nil
}

func (s *collection) structure(ctx context.Context) error {
	st, err := s.c.ProbeStructure(ctx, s.Repository)
	if err != nil {
		return err
	}
	s.Repository.Structure = st
	return nil
}

func (s *collection) commits(ctx context.Context) error {
	owner, name := s.Repository.Owner, s.Repository.Name
	items, err := Paginate(ctx, s.c, "GET /repos/{owner}/{repo}/commits",
		func(ctx context.Context, page int) ([]*github.RepositoryCommit, *github.Response, error) {
			return s.c.c.Repositories.ListCommits(ctx, owner, name, &github.CommitsListOptions{
				Since:       s.Since,
				Until:       s.Until,
				ListOptions: github.ListOptions{Page: page, PerPage: perPage},
			})
		},
		StopOn[*github.RepositoryCommit](s.stop),
	)
	for _, rc := range items {
		author := maturity.NewLogin(rc.GetAuthor().GetLogin())
		s.resolver.learn(rc.GetCommit().GetAuthor().GetEmail(), author)
		s.Commits = append(s.Commits, maturity.Commit{
			SHA:        rc.GetSHA(),
			Author:     author,
			Repository: s.Repository.Name,
			CreatedAt:  commitTime(rc),
			Message:    rc.GetCommit().GetMessage(),
			CoAuthors:  ParseCoAuthors(rc.GetCommit().GetMessage()),
		})
	}
	if IsEmptyRepository(err) {
		return nil
	}
	return err
}

func commitTime(rc *github.RepositoryCommit) time.Time {
	if t := rc.GetCommit().GetAuthor().GetDate(); !t.IsZero() {
		return t.UTC()
	}
	return rc.GetCommit().GetCommitter().GetDate().UTC()
}

// commitDetails fetches files and line counts for the newest commits.
func (s *collection) commitDetails(ctx context.Context, limit int) error {
	n := min(limit, len(s.Commits))
	var (
		mu        sync.Mutex
		firstErr  error
		failed    int
		cancelled bool
	)
	g := errgroup.Group{}
	g.SetLimit(detailWorkers)
	for i := 0; i < n && !cancelled; i++ {
		select {
		case <-s.stop:
			cancelled = true
			continue
		default:
		}
		cm := &s.Commits[i]
		g.Go(func() error {
			var rc *github.RepositoryCommit
			err := s.c.Do(ctx, "GET /repos/{owner}/{repo}/commits/{sha}", func(ctx context.Context) (*github.Response, error) {
				var (
					resp *github.Response
					err  error
				)
				rc, resp, err = s.c.c.Repositories.GetCommit(ctx, s.Repository.Owner, s.Repository.Name, cm.SHA, nil)
				return resp, err
			})
			if err != nil {
				if IsAuthentication(err) {
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				failed++
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			cm.Stats = &maturity.CommitStats{
				Additions:    rc.GetStats().GetAdditions(),
				Deletions:    rc.GetStats().GetDeletions(),
				FilesTouched: len(rc.Files),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if failed > 0 {
		slog.DebugContext(ctx, "Commit details incomplete", "repo", s.Repository.FullName, "failed", failed, "of", n)
	}
	if cancelled {
		return ErrCancelled
	}
	return firstErr
}

func (s *collection) listIssues(ctx context.Context) error {
	owner, name := s.Repository.Owner, s.Repository.Name
	items, err := Paginate(ctx, s.c, "GET /repos/{owner}/{repo}/issues",
		func(ctx context.Context, page int) ([]*github.Issue, *github.Response, error) {
			return s.c.c.Issues.ListByRepo(ctx, owner, name, &github.IssueListByRepoOptions{
				State:       "all",
				Sort:        "created",
				Direction:   "desc",
				Since:       s.Since,
				ListOptions: github.ListOptions{Page: page, PerPage: perPage},
			})
		},
		StopOn[*github.Issue](s.stop),
		StopPast(func(i *github.Issue) bool { return i.GetCreatedAt().Before(s.Since) }),
	)
	for _, it := range items {
		if it.IsPullRequest() || it.GetCreatedAt().After(s.Until) {
			continue
		}
		s.issues[it.GetNumber()] = len(s.Issues)
		s.Issues = append(s.Issues, maturity.Issue{
			Number:     it.GetNumber(),
			Author:     maturity.NewLogin(it.GetUser().GetLogin()),
			Repository: s.Repository.Name,
			CreatedAt:  it.GetCreatedAt().UTC(),
			ClosedAt:   optionalTime(it.ClosedAt),
			Title:      it.GetTitle(),
			Body:       it.GetBody(),
			State:      it.GetState(),
			Labels:     labelNames(it.Labels),
			Comments:   it.GetComments(),
		})
	}
	return err
}

func (s *collection) listPullRequests(ctx context.Context) error {
	owner, name := s.Repository.Owner, s.Repository.Name
	items, err := Paginate(ctx, s.c, "GET /repos/{owner}/{repo}/pulls",
		func(ctx context.Context, page int) ([]*github.PullRequest, *github.Response, error) {
			return s.c.c.PullRequests.List(ctx, owner, name, &github.PullRequestListOptions{
				State:       "all",
				Sort:        "created",
				Direction:   "desc",
				ListOptions: github.ListOptions{Page: page, PerPage: perPage},
			})
		},
		StopOn[*github.PullRequest](s.stop),
		StopPast(func(p *github.PullRequest) bool { return p.GetCreatedAt().Before(s.Since) }),
	)
	for _, pr := range items {
		if pr.GetCreatedAt().After(s.Until) {
			continue
		}
		s.pulls[pr.GetNumber()] = len(s.PullRequests)
		s.PullRequests = append(s.PullRequests, maturity.PullRequest{
			Number:     pr.GetNumber(),
			Author:     maturity.NewLogin(pr.GetUser().GetLogin()),
			Repository: s.Repository.Name,
			CreatedAt:  pr.GetCreatedAt().UTC(),
			ClosedAt:   optionalTime(pr.ClosedAt),
			Title:      pr.GetTitle(),
			Body:       pr.GetBody(),
			State:      pr.GetState(),
			Labels:     labelNames(pr.Labels),
			Merged:     pr.MergedAt != nil,
		})
	}
	return err
}

// issueComments counts discussion by people other than the author and turns
// comments on pull requests into conversation review comments.
func (s *collection) issueComments(ctx context.Context) error {
	owner, name := s.Repository.Owner, s.Repository.Name
	since := s.Since
	items, err := Paginate(ctx, s.c, "GET /repos/{owner}/{repo}/issues/comments",
		func(ctx context.Context, page int) ([]*github.IssueComment, *github.Response, error) {
			return s.c.c.Issues.ListComments(ctx, owner, name, 0, &github.IssueListCommentsOptions{
				Since:       &since,
				ListOptions: github.ListOptions{Page: page, PerPage: perPage},
			})
		},
		StopOn[*github.IssueComment](s.stop),
	)
	for _, ic := range items {
		number, ok := numberFromURL(ic.GetIssueURL())
		if !ok {
			continue
		}
		author := maturity.NewLogin(ic.GetUser().GetLogin())
		if i, ok := s.issues[number]; ok {
			if author != "" && author != s.Issues[i].Author {
				s.Issues[i].NonAuthorComments++
			}
			continue
		}
		p, ok := s.pulls[number]
		if !ok {
			continue
		}
		if author != "" && author != s.PullRequests[p].Author {
			s.PullRequests[p].NonAuthorComments++
		}
		if s.inWindow(ic.GetCreatedAt().Time) {
			s.ReviewComments = append(s.ReviewComments, maturity.ReviewComment{
				ID:          ic.GetID(),
				Author:      author,
				Repository:  s.Repository.Name,
				CreatedAt:   ic.GetCreatedAt().UTC(),
				PullRequest: number,
				Body:        ic.GetBody(),
				Kind:        maturity.ReviewKindConversation,
			})
		}
	}
	return err
}

func (s *collection) reviewComments(ctx context.Context) error {
	owner, name := s.Repository.Owner, s.Repository.Name
	items, err := Paginate(ctx, s.c, "GET /repos/{owner}/{repo}/pulls/comments",
		func(ctx context.Context, page int) ([]*github.PullRequestComment, *github.Response, error) {
			return s.c.c.PullRequests.ListComments(ctx, owner, name, 0, &github.PullRequestListCommentsOptions{
				Since:       s.Since,
				ListOptions: github.ListOptions{Page: page, PerPage: perPage},
			})
		},
		StopOn[*github.PullRequestComment](s.stop),
	)
	for _, rc := range items {
		number, _ := numberFromURL(rc.GetPullRequestURL())
		author := maturity.NewLogin(rc.GetUser().GetLogin())
		if p, ok := s.pulls[number]; ok {
			s.PullRequests[p].ReviewCount++
			if author != "" && author != s.PullRequests[p].Author {
				s.PullRequests[p].NonAuthorComments++
			}
		}
		if !s.inWindow(rc.GetCreatedAt().Time) {
			continue
		}
		s.ReviewComments = append(s.ReviewComments, maturity.ReviewComment{
			ID:          rc.GetID(),
			Author:      author,
			Repository:  s.Repository.Name,
			CreatedAt:   rc.GetCreatedAt().UTC(),
			PullRequest: number,
			Body:        rc.GetBody(),
			Path:        rc.GetPath(),
			Kind:        maturity.ReviewKindCode,
		})
	}
	return err
}

func (s *collection) inWindow(t time.Time) bool {
	return !t.Before(s.Since) && !t.After(s.Until)
}

func repositoryStats(c *maturity.Collection) maturity.RepositoryStats {
	st := maturity.RepositoryStats{
		Commits:             len(c.Commits),
		Issues:              len(c.Issues),
		PullRequests:        len(c.PullRequests),
		ReviewComments:      len(c.ReviewComments),
		Contributors:        len(c.Logins()),
		UnresolvedCoAuthors: len(c.Unresolved),
	}
	emails := make(map[string]struct{})
	for _, cm := range c.Commits {
		if len(cm.CoAuthors) > 0 {
			st.CoAuthoredCommits++
		}
		for _, ca := range cm.CoAuthors {
			emails[ca.Email] = struct{}{}
		}
	}
	st.DistinctCoAuthors = len(emails)
	return st
}

// filter keeps the contributions credited to an allowed contributor.
func filter(c *maturity.Collection, allow maturity.LoginSet) {
	commits := c.Commits[:0]
	for _, cm := range c.Commits {
		for _, cr := range cm.Credits() {
			if allow.Allows(cr.Login) {
				commits = append(commits, cm)
				break
			}
		}
	}
	c.Commits = commits

	issues := c.Issues[:0]
	for _, i := range c.Issues {
		if allow.Allows(i.Author) {
			issues = append(issues, i)
		}
	}
	c.Issues = issues

	pulls := c.PullRequests[:0]
	for _, p := range c.PullRequests {
		if allow.Allows(p.Author) {
			pulls = append(pulls, p)
		}
	}
	c.PullRequests = pulls

	reviews := c.ReviewComments[:0]
	for _, r := range c.ReviewComments {
		if allow.Allows(r.Author) {
			reviews = append(reviews, r)
		}
	}
	c.ReviewComments = reviews
}

func labelNames(labels []*github.Label) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, l.GetName())
	}
	return out
}

func optionalTime(t *github.Timestamp) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// numberFromURL reads the trailing issue or pull request number of an API URL.
func numberFromURL(u string) (int, bool) {
	n, err := strconv.Atoi(path.Base(u))
	return n, err == nil && n > 0
}
