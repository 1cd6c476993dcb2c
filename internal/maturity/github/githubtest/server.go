// Package githubtest provides an in-memory GitHub REST server for tests.
package githubtest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v75/github"
	"k8s.io/utils/ptr"
)

type Commit struct {
	SHA       string
	Login     string
	Email     string
	Message   string
	Date      time.Time
	Files     int
	Additions int
	Deletions int
}

type Issue struct {
	Number    int
	Login     string
	Title     string
	Body      string
	Labels    []string
	CreatedAt time.Time
	ClosedAt  *time.Time
	Comments  int
}

type Pull struct {
	Number    int
	Login     string
	Title     string
	Body      string
	Labels    []string
	CreatedAt time.Time
	ClosedAt  *time.Time
	MergedAt  *time.Time
}

// Comment is an issue comment or a pull request review comment on item Number.
type Comment struct {
	ID        int64
	Number    int
	Login     string
	Body      string
	Path      string
	CreatedAt time.Time
}

type Repo struct {
	Name           string
	Fork           bool
	Archived       bool
	CreatedAt      time.Time
	PushedAt       time.Time
	Empty          bool
	Tree           []string
	Readme         string
	Commits        []Commit
	Issues         []Issue
	Pulls          []Pull
	IssueComments  []Comment
	ReviewComments []Comment
}

type failure struct {
	status   int
	fromPage int
}

// Server is a fake GitHub API for one organization.
type Server struct {
	*httptest.Server
	Org string
	// PageSize overrides the per_page parameter when positive.
	PageSize int

	mu       sync.Mutex
	repos    map[string]*Repo
	users    map[string]string
	failures map[string]failure
	calls    map[string]int
}

// NewServer starts a server hosting repos under org. Close it when done.
func NewServer(org string, repos ...*Repo) *Server {
	s := &Server{
		Org:      org,
		repos:    make(map[string]*Repo),
		users:    make(map[string]string),
		failures: make(map[string]failure),
		calls:    make(map[string]int),
	}
	for _, r := range repos {
		s.repos[r.Name] = r
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Fail answers every request on path with status.
func (s *Server) Fail(path string, status int) { s.FailFromPage(path, 1, status) }

// FailFromPage answers requests on path with status from the given page on.
func (s *Server) FailFromPage(path string, page, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = failure{status: status, fromPage: page}
}

// AddUser makes email searchable as login.
func (s *Server) AddUser(email, login string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(email)] = login
}

// Calls returns how many requests reached path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	page = max(page, 1)

	s.mu.Lock()
	s.calls[path]++
	f, failing := s.failures[path]
	s.mu.Unlock()
	if failing && page >= f.fromPage {
		writeError(w, f.status, "injected failure")
		return
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case path == "/user":
		writeJSON(w, &github.User{Login: ptr.To("tester")})
	case path == "/search/users":
		s.searchUsers(w, r)
	case len(parts) == 2 && parts[0] == "orgs":
		if parts[1] != s.Org {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		writeJSON(w, &github.Organization{Login: ptr.To(s.Org)})
	case len(parts) == 3 && parts[0] == "orgs" && parts[2] == "repos":
		if parts[1] != s.Org {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		s.listRepos(w, r, page)
	case len(parts) >= 3 && parts[0] == "repos":
		s.serveRepo(w, r, parts, page)
	default:
		writeError(w, http.StatusNotFound, "Not Found")
	}
}

func (s *Server) repo(owner, name string) *Repo {
	if owner != s.Org {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repos[name]
}

func (s *Server) listRepos(w http.ResponseWriter, r *http.Request, page int) {
	s.mu.Lock()
	names := make([]string, 0, len(s.repos))
	for n := range s.repos {
		names = append(names, n)
	}
	s.mu.Unlock()
	sort.Strings(names)

	out := make([]*github.Repository, 0, len(names))
	for _, n := range names {
		out = append(out, s.repository(s.repos[n]))
	}
	paginate(s, w, r, page, out)
}

func (s *Server) repository(r *Repo) *github.Repository {
	return &github.Repository{
		Name:          ptr.To(r.Name),
		FullName:      ptr.To(s.Org + "/" + r.Name),
		Owner:         &github.User{Login: ptr.To(s.Org)},
		DefaultBranch: ptr.To("main"),
		Fork:          ptr.To(r.Fork),
		Archived:      ptr.To(r.Archived),
		CreatedAt:     &github.Timestamp{Time: r.CreatedAt},
		PushedAt:      &github.Timestamp{Time: r.PushedAt},
	}
}

func (s *Server) serveRepo(w http.ResponseWriter, r *http.Request, parts []string, page int) {
	repo := s.repo(parts[1], parts[2])
	if repo == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	rest := parts[3:]
	switch {
	case len(rest) == 0:
		writeJSON(w, s.repository(repo))
	case rest[0] == "git" && len(rest) >= 3 && rest[1] == "trees":
		if repo.Empty {
			writeError(w, http.StatusConflict, "Git Repository is empty.")
			return
		}
		tree := &github.Tree{SHA: ptr.To(rest[2]), Truncated: ptr.To(false)}
		for _, p := range repo.Tree {
			tree.Entries = append(tree.Entries, &github.TreeEntry{Path: ptr.To(p), Type: ptr.To("blob")})
		}
		writeJSON(w, tree)
	case rest[0] == "readme":
		if repo.Readme == "" {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		writeJSON(w, &github.RepositoryContent{
			Type:     ptr.To("file"),
			Name:     ptr.To("README.md"),
			Encoding: ptr.To("base64"),
			Content:  ptr.To(base64.StdEncoding.EncodeToString([]byte(repo.Readme))),
		})
	case rest[0] == "commits" && len(rest) == 1:
		if repo.Empty {
			writeError(w, http.StatusConflict, "Git Repository is empty.")
			return
		}
		s.listCommits(w, r, repo, page)
	case rest[0] == "commits" && len(rest) == 2:
		for _, c := range repo.Commits {
			if c.SHA == rest[1] {
				writeJSON(w, s.commit(c, true))
				return
			}
		}
		writeError(w, http.StatusNotFound, "Not Found")
	case rest[0] == "issues" && len(rest) == 1:
		s.listIssues(w, r, repo, page)
	case rest[0] == "issues" && len(rest) == 2 && rest[1] == "comments":
		out := make([]*github.IssueComment, 0, len(repo.IssueComments))
		for _, c := range repo.IssueComments {
			out = append(out, &github.IssueComment{
				ID:        ptr.To(c.ID),
				User:      &github.User{Login: ptr.To(c.Login)},
				Body:      ptr.To(c.Body),
				CreatedAt: &github.Timestamp{Time: c.CreatedAt},
				IssueURL:  ptr.To(fmt.Sprintf("%s/repos/%s/%s/issues/%d", s.URL, s.Org, repo.Name, c.Number)),
			})
		}
		paginate(s, w, r, page, out)
	case rest[0] == "pulls" && len(rest) == 1:
		pulls := append([]Pull(nil), repo.Pulls...)
		sort.Slice(pulls, func(i, j int) bool { return pulls[i].CreatedAt.After(pulls[j].CreatedAt) })
		out := make([]*github.PullRequest, 0, len(pulls))
		for _, p := range pulls {
			out = append(out, pullRequest(p))
		}
		paginate(s, w, r, page, out)
	case rest[0] == "pulls" && len(rest) == 2 && rest[1] == "comments":
		out := make([]*github.PullRequestComment, 0, len(repo.ReviewComments))
		for _, c := range repo.ReviewComments {
			out = append(out, &github.PullRequestComment{
				ID:             ptr.To(c.ID),
				User:           &github.User{Login: ptr.To(c.Login)},
				Body:           ptr.To(c.Body),
				Path:           ptr.To(c.Path),
				CreatedAt:      &github.Timestamp{Time: c.CreatedAt},
				PullRequestURL: ptr.To(fmt.Sprintf("%s/repos/%s/%s/pulls/%d", s.URL, s.Org, repo.Name, c.Number)),
			})
		}
		paginate(s, w, r, page, out)
	default:
		writeError(w, http.StatusNotFound, "Not Found")
	}
}

func (s *Server) listCommits(w http.ResponseWriter, r *http.Request, repo *Repo, page int) {
	since := queryTime(r, "since")
	until := queryTime(r, "until")
	commits := append([]Commit(nil), repo.Commits...)
	sort.SliceStable(commits, func(i, j int) bool { return commits[i].Date.After(commits[j].Date) })

	out := make([]*github.RepositoryCommit, 0, len(commits))
	for _, c := range commits {
		if (!since.IsZero() && c.Date.Before(since)) || (!until.IsZero() && c.Date.After(until)) {
			continue
		}
		out = append(out, s.commit(c, false))
	}
	paginate(s, w, r, page, out)
}

func (s *Server) commit(c Commit, detailed bool) *github.RepositoryCommit {
	rc := &github.RepositoryCommit{
		SHA: ptr.To(c.SHA),
		Commit: &github.Commit{
			Message: ptr.To(c.Message),
			Author: &github.CommitAuthor{
				Name:  ptr.To(c.Login),
				Email: ptr.To(c.Email),
				Date:  &github.Timestamp{Time: c.Date},
			},
		},
	}
	if c.Login != "" {
		rc.Author = &github.User{Login: ptr.To(c.Login)}
	}
	if detailed {
		rc.Stats = &github.CommitStats{
			Additions: ptr.To(c.Additions),
			Deletions: ptr.To(c.Deletions),
			Total:     ptr.To(c.Additions + c.Deletions),
		}
		for i := 0; i < c.Files; i++ {
			rc.Files = append(rc.Files, &github.CommitFile{Filename: ptr.To(fmt.Sprintf("file%d.go", i))})
		}
	}
	return rc
}

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request, repo *Repo, page int) {
	var out []*github.Issue
	for _, i := range repo.Issues {
		is := &github.Issue{
			Number:    ptr.To(i.Number),
			User:      &github.User{Login: ptr.To(i.Login)},
			Title:     ptr.To(i.Title),
			Body:      ptr.To(i.Body),
			State:     ptr.To(state(i.ClosedAt)),
			CreatedAt: &github.Timestamp{Time: i.CreatedAt},
			Comments:  ptr.To(i.Comments),
			Labels:    labels(i.Labels),
		}
		if i.ClosedAt != nil {
			is.ClosedAt = &github.Timestamp{Time: *i.ClosedAt}
		}
		out = append(out, is)
	}
	for _, p := range repo.Pulls {
		out = append(out, &github.Issue{
			Number:           ptr.To(p.Number),
			User:             &github.User{Login: ptr.To(p.Login)},
			Title:            ptr.To(p.Title),
			State:            ptr.To(state(p.ClosedAt)),
			CreatedAt:        &github.Timestamp{Time: p.CreatedAt},
			PullRequestLinks: &github.PullRequestLinks{URL: ptr.To("pull")},
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].GetCreatedAt().After(out[j].GetCreatedAt().Time) })
	paginate(s, w, r, page, out)
}

func (s *Server) searchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	email, _, _ := strings.Cut(q, " ")
	s.mu.Lock()
	login, ok := s.users[strings.ToLower(email)]
	s.mu.Unlock()
	res := &github.UsersSearchResult{Total: ptr.To(0), IncompleteResults: ptr.To(false)}
	if ok {
		res.Total = ptr.To(1)
		res.Users = []*github.User{{Login: ptr.To(login)}}
	}
	writeJSON(w, res)
}

func pullRequest(p Pull) *github.PullRequest {
	pr := &github.PullRequest{
		Number:    ptr.To(p.Number),
		User:      &github.User{Login: ptr.To(p.Login)},
		Title:     ptr.To(p.Title),
		Body:      ptr.To(p.Body),
		State:     ptr.To(state(p.ClosedAt)),
		CreatedAt: &github.Timestamp{Time: p.CreatedAt},
		Labels:    labels(p.Labels),
	}
	if p.ClosedAt != nil {
		pr.ClosedAt = &github.Timestamp{Time: *p.ClosedAt}
	}
	if p.MergedAt != nil {
		pr.MergedAt = &github.Timestamp{Time: *p.MergedAt}
	}
	return pr
}

func labels(names []string) []*github.Label {
	out := make([]*github.Label, 0, len(names))
	for _, n := range names {
		out = append(out, &github.Label{Name: ptr.To(n)})
	}
	return out
}

func state(closedAt *time.Time) string {
	if closedAt != nil {
		return "closed"
	}
	return "open"
}

func queryTime(r *http.Request, key string) time.Time {
	t, _ := time.Parse(time.RFC3339, r.URL.Query().Get(key))
	return t
}

// paginate writes one page of items with a Link header to the next page.
func paginate[T any](s *Server, w http.ResponseWriter, r *http.Request, page int, items []T) {
	size, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if s.PageSize > 0 {
		size = s.PageSize
	}
	if size <= 0 {
		size = 30
	}
	start := min((page-1)*size, len(items))
	end := min(start+size, len(items))
	if end < len(items) {
		q := r.URL.Query()
		q.Set("page", strconv.Itoa(page+1))
		w.Header().Set("Link", fmt.Sprintf(`<%s%s?%s>; rel="next"`, s.URL, r.URL.Path, q.Encode()))
	}
	writeJSON(w, items[start:end])
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
