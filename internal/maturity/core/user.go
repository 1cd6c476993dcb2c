package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"agilemeter.shikanime.studio/internal/maturity"
	"agilemeter.shikanime.studio/internal/maturity/signals"
)

// User assesses a single contributor in a single repository and keeps their
// contributions, newest first, for a detailed report.
func (e *Engine) User(ctx context.Context, repository string, login maturity.Login, since, until time.Time) (*UserDetail, error) {
	if login == "" {
		return nil, fmt.Errorf("%w: a user is required", ErrInvalidRequest)
	}
	if repository == "" {
		return nil, fmt.Errorf("%w: a repository is required", ErrInvalidRequest)
	}
	res, err := e.Run(ctx, Request{
		Repository: repository,
		Since:      since,
		Until:      until,
		Users:      maturity.NewLoginSet(string(login)),
	})
	if err != nil {
		return nil, err
	}

	d := &UserDetail{Result: res, Login: login}
	if len(res.Repositories) > 0 {
		d.Repository = res.Repositories[0]
	}
	for i := range res.Users {
		if res.Users[i].Login == login {
			d.Score = &res.Users[i]
			d.Counts = res.Users[i].Counts
		}
	}

	var commitTimes []time.Time
	for _, col := range res.collections {
		for _, cm := range col.Commits {
			if cm.CreditedTo(login) {
				d.Commits = append(d.Commits, cm)
				commitTimes = append(commitTimes, cm.CreatedAt)
			}
		}
		for _, is := range col.Issues {
			if is.Author == login {
				d.Issues = append(d.Issues, is)
			}
		}
		for _, pr := range col.PullRequests {
			if pr.Author == login {
				d.PullRequests = append(d.PullRequests, pr)
			}
		}
		for _, rc := range col.ReviewComments {
			if rc.Author == login {
				d.ReviewComments = append(d.ReviewComments, rc)
			}
		}
	}
	sort.SliceStable(d.Commits, func(i, j int) bool { return d.Commits[i].CreatedAt.After(d.Commits[j].CreatedAt) })
	sort.SliceStable(d.Issues, func(i, j int) bool { return d.Issues[i].CreatedAt.After(d.Issues[j].CreatedAt) })
	sort.SliceStable(d.PullRequests, func(i, j int) bool { return d.PullRequests[i].CreatedAt.After(d.PullRequests[j].CreatedAt) })
	sort.SliceStable(d.ReviewComments, func(i, j int) bool {
		return d.ReviewComments[i].CreatedAt.After(d.ReviewComments[j].CreatedAt)
	})
	d.Frequency = signals.Frequency(commitTimes, since, until)
	return d, nil
}
