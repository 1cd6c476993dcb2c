package maturity

import (
	"sort"
	"strings"
	"time"
)

// Login is a lower-cased GitHub login, the identity key for every aggregation.
type Login string

// NewLogin normalizes a GitHub login; GitHub logins are case-insensitive.
func NewLogin(s string) Login { return Login(strings.ToLower(strings.TrimSpace(s))) }

func (l Login) String() string { return string(l) }

// LoginSet is an optional allow-list of contributors. A nil set allows everyone.
type LoginSet map[Login]struct{}

// NewLoginSet builds a set from raw logins, ignoring blanks. It returns nil for no logins.
func NewLoginSet(logins ...string) LoginSet {
	var s LoginSet
	for _, l := range logins {
		if n := NewLogin(l); n != "" {
			if s == nil {
				s = make(LoginSet)
			}
			s[n] = struct{}{}
		}
	}
	return s
}

// Allows reports whether l passes the allow-list.
func (s LoginSet) Allows(l Login) bool {
	if l == "" {
		return false
	}
	if s == nil {
		return true
	}
	_, ok := s[l]
	return ok
}

// Sorted returns the logins in lexical order.
func (s LoginSet) Sorted() []Login {
	out := make([]Login, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Organization is the unit of discovery.
type Organization struct {
	Login        string
	Repositories []Repository
}

// ReadmeStats summarizes the README structure.
type ReadmeStats struct {
	Headings      int
	Sections      int
	Words         int
	HasInstall    bool
	HasUsage      bool
	HasContribute bool
}

// Rich reports whether the README documents the project beyond a title line.
func (r ReadmeStats) Rich() bool {
	return r.Sections >= 3 || (r.HasInstall && r.HasUsage)
}

// Structure holds the boolean quality signals of a repository.
type Structure struct {
	HasReadme    bool
	HasLicense   bool
	HasCI        bool
	HasTests     bool
	HasDocs      bool
	HasGitignore bool
	Files        int
	Readme       ReadmeStats
}

// Score returns the fraction of structure elements present.
func (s Structure) Score() float64 {
	elems := []bool{s.HasReadme, s.HasLicense, s.HasCI, s.HasTests, s.HasGitignore, s.HasDocs}
	n := 0
	for _, e := range elems {
		if e {
			n++
		}
	}
	return float64(n) / float64(len(elems))
}

// Repository is created during discovery and never mutated after its structure is probed.
type Repository struct {
	Name          string
	FullName      string
	Owner         string
	Language      string
	DefaultBranch string
	Stars         int
	Forks         int
	Watchers      int
	Fork          bool
	Archived      bool
	CreatedAt     time.Time
	PushedAt      time.Time
	Structure     Structure
}

// CommitStats carries the per-commit size metrics. It is only known once commit details were fetched.
type CommitStats struct {
	Additions    int
	Deletions    int
	FilesTouched int
}

// LinesChanged is additions plus deletions.
func (s CommitStats) LinesChanged() int { return s.Additions + s.Deletions }

// CoAuthor is an identity parsed from a Co-authored-by trailer.
// Login is empty when the identity could not be resolved to a GitHub account.
type CoAuthor struct {
	Name  string
	Email string
	Login Login
}

// Resolved reports whether the co-author maps to a GitHub login.
func (c CoAuthor) Resolved() bool { return c.Login != "" }

type Commit struct {
	SHA        string
	Author     Login
	Repository string
	CreatedAt  time.Time
	Message    string
	Stats      *CommitStats
	CoAuthors  []CoAuthor
}

// Credit attributes a commit to one contributor.
type Credit struct {
	Login   Login
	Primary bool
}

// Credits returns the primary author (when known) followed by the resolved co-authors,
// without duplicates. Only the primary credit carries line and file metrics.
func (c Commit) Credits() []Credit {
	seen := make(map[Login]struct{}, 1+len(c.CoAuthors))
	var out []Credit
	if c.Author != "" {
		seen[c.Author] = struct{}{}
		out = append(out, Credit{Login: c.Author, Primary: true})
	}
	for _, ca := range c.CoAuthors {
		if !ca.Resolved() {
			continue
		}
		if _, ok := seen[ca.Login]; ok {
			continue
		}
		seen[ca.Login] = struct{}{}
		out = append(out, Credit{Login: ca.Login})
	}
	return out
}

// CreditedTo reports whether l receives a credit for the commit.
func (c Commit) CreditedTo(l Login) bool {
	for _, cr := range c.Credits() {
		if cr.Login == l {
			return true
		}
	}
	return false
}

// Subject returns the first line of the commit message.
func (c Commit) Subject() string {
	s, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	return strings.TrimSpace(s)
}

type Issue struct {
	Number            int
	Author            Login
	Repository        string
	CreatedAt         time.Time
	ClosedAt          *time.Time
	Title             string
	Body              string
	State             string
	Labels            []string
	Comments          int
	NonAuthorComments int
}

// Text joins title and body for quality assessment.
func (i Issue) Text() string { return joinText(i.Title, i.Body) }

type PullRequest struct {
	Number            int
	Author            Login
	Repository        string
	CreatedAt         time.Time
	ClosedAt          *time.Time
	Title             string
	Body              string
	State             string
	Labels            []string
	Merged            bool
	ReviewCount       int
	NonAuthorComments int
}

func (p PullRequest) Text() string { return joinText(p.Title, p.Body) }

// ReviewKind distinguishes code-review comments from pull request conversation comments.
type ReviewKind string

const (
	ReviewKindCode         ReviewKind = "review"
	ReviewKindConversation ReviewKind = "conversation"
)

type ReviewComment struct {
	ID          int64
	Author      Login
	Repository  string
	CreatedAt   time.Time
	PullRequest int
	Body        string
	Path        string
	Kind        ReviewKind
}

// CollectionStep names one independently attempted collection step.
type CollectionStep string

const (
	StepStructure      CollectionStep = "structure"
	StepCommits        CollectionStep = "commits"
	StepCommitDetails  CollectionStep = "commit_details"
	StepIssues         CollectionStep = "issues"
	StepPullRequests   CollectionStep = "pull_requests"
	StepIssueComments  CollectionStep = "issue_comments"
	StepReviewComments CollectionStep = "review_comments"
)

// CollectionFailure records why one step of a repository collection is incomplete.
type CollectionFailure struct {
	Step   CollectionStep
	Status int
	Err    string
}

// RepositoryStats are repository-level facts computed before the allow-list is applied.
type RepositoryStats struct {
	Commits             int
	Issues              int
	PullRequests        int
	ReviewComments      int
	Contributors        int
	CoAuthoredCommits   int
	DistinctCoAuthors   int
	UnresolvedCoAuthors int
}

// Collection is everything gathered for one repository. It is built by a single worker
// and read-only once returned.
type Collection struct {
	Repository     Repository
	Since          time.Time
	Until          time.Time
	Commits        []Commit
	Issues         []Issue
	PullRequests   []PullRequest
	ReviewComments []ReviewComment
	Unresolved     []CoAuthor
	Stats          RepositoryStats
	Failures       []CollectionFailure
}

// Incomplete reports whether any collection step failed or was interrupted.
func (c *Collection) Incomplete() bool { return len(c.Failures) > 0 }

// Fail records a failed step.
func (c *Collection) Fail(step CollectionStep, status int, err error) {
	f := CollectionFailure{Step: step, Status: status}
	if err != nil {
		f.Err = err.Error()
	}
	c.Failures = append(c.Failures, f)
}

// Logins returns every credited contributor of the collection, sorted.
func (c *Collection) Logins() []Login {
	set := make(LoginSet)
	for _, cm := range c.Commits {
		for _, cr := range cm.Credits() {
			set[cr.Login] = struct{}{}
		}
	}
	for _, i := range c.Issues {
		if i.Author != "" {
			set[i.Author] = struct{}{}
		}
	}
	for _, p := range c.PullRequests {
		if p.Author != "" {
			set[p.Author] = struct{}{}
		}
	}
	for _, r := range c.ReviewComments {
		if r.Author != "" {
			set[r.Author] = struct{}{}
		}
	}
	return set.Sorted()
}

func joinText(title, body string) string {
	title, body = strings.TrimSpace(title), strings.TrimSpace(body)
	switch {
	case body == "":
		return title
	case title == "":
		return body
	}
	return title + "\n\n" + body
}
