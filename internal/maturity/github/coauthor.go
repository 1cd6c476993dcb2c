package github

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/go-github/v75/github"

	"agilemeter.shikanime.studio/internal/maturity"
)

var (
	trailerRe = regexp.MustCompile(`(?im)^[ \t]*co-authored-by[ \t]*:[ \t]*(.*?)[ \t]*<[ \t]*([^<>\s]+@[^<>\s]+)[ \t]*>[ \t\r]*$`)
	noreplyRe = regexp.MustCompile(`(?i)^(?:\d+\+)?([a-z0-9](?:[a-z0-9-]*[a-z0-9])?)@users\.noreply\.github\.com$`)
)

// ParseCoAuthors extracts the Co-authored-by trailers of a commit message.
// Malformed trailers are ignored and identities are deduplicated by email.
func ParseCoAuthors(message string) []maturity.CoAuthor {
	var out []maturity.CoAuthor
	seen := make(map[string]struct{})
	for _, m := range trailerRe.FindAllStringSubmatch(message, -1) {
		email := strings.ToLower(strings.TrimSpace(m[2]))
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, maturity.CoAuthor{Name: strings.TrimSpace(m[1]), Email: email})
	}
	return out
}

// NoreplyLogin extracts the login of a GitHub noreply address.
func NoreplyLogin(email string) (maturity.Login, bool) {
	m := noreplyRe.FindStringSubmatch(strings.TrimSpace(email))
	if m == nil {
		return "", false
	}
	return maturity.NewLogin(m[1]), true
}

// resolver maps co-author emails to logins. It belongs to a single collection.
type resolver struct {
	c         *Client
	search    bool
	directory map[string]maturity.Login
	searched  map[string]maturity.Login
}

func newResolver(c *Client, search bool) *resolver {
	return &resolver{
		c:         c,
		search:    search,
		directory: make(map[string]maturity.Login),
		searched:  make(map[string]maturity.Login),
	}
}

// learn records that email belongs to login, as seen on an attributed commit.
func (r *resolver) learn(email string, login maturity.Login) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || login == "" {
		return
	}
	if _, ok := r.directory[email]; !ok {
		r.directory[email] = login
	}
}

// resolve tries the noreply form, then the learned directory, then the user search.
func (r *resolver) resolve(ctx context.Context, email string) maturity.Login {
	if l, ok := NoreplyLogin(email); ok {
		return l
	}
	if l, ok := r.directory[email]; ok {
		return l
	}
	if !r.search {
		return ""
	}
	if l, ok := r.searched[email]; ok {
		return l
	}
	l, err := r.lookup(ctx, email)
	if err != nil {
		slog.DebugContext(ctx, "Co-author search failed", "email", email, "error", err)
	}
	r.searched[email] = l
	return l
}

func (r *resolver) lookup(ctx context.Context, email string) (maturity.Login, error) {
	var res *github.UsersSearchResult
	err := r.c.Do(ctx, "GET /search/users", func(ctx context.Context) (*github.Response, error) {
		var (
			resp *github.Response
			err  error
		)
		res, resp, err = r.c.c.Search.Users(ctx, fmt.Sprintf("%s in:email", email), nil)
		return resp, err
	})
	if err != nil {
		return "", err
	}
	if res.GetTotal() != 1 || len(res.Users) != 1 {
		return "", nil
	}
	return maturity.NewLogin(res.Users[0].GetLogin()), nil
}

// resolveAll fills the login of every co-author and returns those left unresolved.
func (r *resolver) resolveAll(ctx context.Context, commits []maturity.Commit) []maturity.CoAuthor {
	var unresolved []maturity.CoAuthor
	seen := make(map[string]struct{})
	for i := range commits {
		for j := range commits[i].CoAuthors {
			ca := &commits[i].CoAuthors[j]
			ca.Login = r.resolve(ctx, ca.Email)
			if ca.Resolved() {
				continue
			}
			if _, ok := seen[ca.Email]; !ok {
				seen[ca.Email] = struct{}{}
				unresolved = append(unresolved, *ca)
			}
		}
	}
	return unresolved
}
