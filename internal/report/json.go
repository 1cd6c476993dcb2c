package report

import (
	"io"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"agilemeter.shikanime.studio/internal/maturity"
	"agilemeter.shikanime.studio/internal/maturity/core"
	"agilemeter.shikanime.studio/internal/maturity/score"
)

type provenanceDocument struct {
	Organization  string             `json:"organization,omitempty"`
	Repository    string             `json:"repository,omitempty"`
	Viewer        string             `json:"viewer,omitempty"`
	Since         time.Time          `json:"since"`
	Until         time.Time          `json:"until"`
	Users         []maturity.Login   `json:"users,omitempty"`
	Workers       int                `json:"workers"`
	OracleEnabled bool               `json:"oracle_enabled"`
	Weights       map[string]float64 `json:"weights"`
	GeneratedAt   time.Time          `json:"generated_at"`
	Cancelled     bool               `json:"cancelled"`
	Warnings      []string           `json:"warnings,omitempty"`
}

type criterionDocument struct {
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
	Active bool    `json:"active"`
}

type scoreDocument struct {
	Final       float64                      `json:"final"`
	Level       maturity.Level               `json:"level"`
	Explanation string                       `json:"explanation"`
	Criteria    map[string]criterionDocument `json:"criteria"`
}

type countsDocument struct {
	Commits           int `json:"commits"`
	CoAuthoredCommits int `json:"co_authored_commits"`
	Issues            int `json:"issues"`
	PullRequests      int `json:"pull_requests"`
	MergedPRs         int `json:"merged_pull_requests"`
	ReviewComments    int `json:"review_comments"`
	LinesAdded        int `json:"lines_added"`
	LinesRemoved      int `json:"lines_removed"`
	FilesChanged      int `json:"files_changed"`
}

type userDocument struct {
	Login        maturity.Login `json:"login"`
	Repositories int            `json:"repositories"`
	Counts       countsDocument `json:"counts"`
	Score        scoreDocument  `json:"score"`
}

type rowDocument struct {
	Login      maturity.Login `json:"login"`
	Repository string         `json:"repository"`
	Counts     countsDocument `json:"counts"`
	Score      scoreDocument  `json:"score"`
}

type failureDocument struct {
	Step   maturity.CollectionStep `json:"step"`
	Status int                     `json:"status,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

type repositoryDocument struct {
	Name                string            `json:"name"`
	Language            string            `json:"language,omitempty"`
	Complete            bool              `json:"complete"`
	Failures            []failureDocument `json:"failures,omitempty"`
	Commits             int               `json:"commits"`
	Issues              int               `json:"issues"`
	PullRequests        int               `json:"pull_requests"`
	ReviewComments      int               `json:"review_comments"`
	Contributors        int               `json:"contributors"`
	CoAuthoredCommits   int               `json:"co_authored_commits"`
	DistinctCoAuthors   int               `json:"distinct_co_authors"`
	UnresolvedCoAuthors int               `json:"unresolved_co_authors"`
	CommitsPerWeek      float64           `json:"commits_per_week"`
	Structure           float64           `json:"structure"`
	Engagement          float64           `json:"engagement"`
	Score               float64           `json:"score"`
	Level               maturity.Level    `json:"level"`
}

type gapDocument struct {
	Login maturity.Login `json:"login"`
	Weeks []string       `json:"weeks"`
}

type summaryDocument struct {
	Provenance   provenanceDocument   `json:"provenance"`
	Users        []userDocument       `json:"users"`
	Rows         []rowDocument        `json:"rows"`
	Repositories []repositoryDocument `json:"repositories"`
	Gaps         []gapDocument        `json:"gaps"`
}

type frequencyDocument struct {
	Weeks          int      `json:"weeks"`
	InactiveWeeks  int      `json:"inactive_weeks"`
	CommitsPerWeek float64  `json:"commits_per_week"`
	ActivityRate   float64  `json:"activity_rate"`
	Level          string   `json:"level"`
	Advice         []string `json:"advice"`
}

type contributionDocument struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	State     string    `json:"state,omitempty"`
}

type userDetailDocument struct {
	Provenance      provenanceDocument     `json:"provenance"`
	Login           maturity.Login         `json:"login"`
	Repository      repositoryDocument     `json:"repository"`
	Counts          countsDocument         `json:"counts"`
	Score           *scoreDocument         `json:"score"`
	Frequency       frequencyDocument      `json:"frequency"`
	Recommendations []string               `json:"recommendations"`
	Contributions   []contributionDocument `json:"contributions"`
}

func newSummaryDocument(res *core.Result) summaryDocument {
	doc := summaryDocument{
		Provenance:   newProvenanceDocument(res.Provenance),
		Users:        make([]userDocument, 0, len(res.Users)),
		Rows:         make([]rowDocument, 0, len(res.Rows)),
		Repositories: make([]repositoryDocument, 0, len(res.Repositories)),
		Gaps:         make([]gapDocument, 0, len(res.Gaps)),
	}
	for _, u := range res.Users {
		doc.Users = append(doc.Users, newUserScoreDocument(u))
	}
	for _, r := range res.Rows {
		doc.Rows = append(doc.Rows, rowDocument{
			Login:      r.Login,
			Repository: r.Repository,
			Counts:     countsDocument(r.Counts),
			Score:      newScoreDocument(r.Score),
		})
	}
	for _, s := range res.Repositories {
		doc.Repositories = append(doc.Repositories, newRepositoryDocument(s))
	}
	for _, g := range res.Gaps {
		weeks := make([]string, len(g.Weeks))
		for i, w := range g.Weeks {
			weeks[i] = w.UTC().Format(time.DateOnly)
		}
		doc.Gaps = append(doc.Gaps, gapDocument{Login: g.Login, Weeks: weeks})
	}
	return doc
}

func newUserScoreDocument(u score.UserScore) userDocument {
	return userDocument{
		Login:        u.Login,
		Repositories: u.Repositories,
		Counts:       countsDocument(u.Counts),
		Score:        newScoreDocument(u.Score),
	}
}

func newUserDocument(d *core.UserDetail) userDetailDocument {
	doc := userDetailDocument{
		Login:      d.Login,
		Repository: newRepositoryDocument(d.Repository),
		Counts:     countsDocument(d.Counts),
		Frequency: frequencyDocument{
			Weeks:          d.Frequency.Weeks,
			InactiveWeeks:  d.Frequency.InactiveWeeks,
			CommitsPerWeek: d.Frequency.CommitsPerWeek,
			ActivityRate:   d.Frequency.ActivityRate(),
			Level:          string(d.Frequency.Level),
			Advice:         FrequencyAdvice(d.Frequency.Level),
		},
		Recommendations: []string{},
		Contributions:   []contributionDocument{},
	}
	if d.Result != nil {
		doc.Provenance = newProvenanceDocument(d.Result.Provenance)
	}
	if d.Score != nil {
		s := newScoreDocument(d.Score.Score)
		doc.Score = &s
		doc.Recommendations = append(doc.Recommendations, Recommendations(d.Score.Score, score.HealthyThreshold)...)
	}
	for _, c := range d.Commits {
		doc.Contributions = append(doc.Contributions, contributionDocument{
			Kind: "commit", ID: c.SHA, Title: c.Subject(), CreatedAt: c.CreatedAt,
		})
	}
	for _, i := range d.Issues {
		doc.Contributions = append(doc.Contributions, contributionDocument{
			Kind: "issue", ID: strconv.Itoa(i.Number), Title: i.Title, CreatedAt: i.CreatedAt, State: i.State,
		})
	}
	for _, p := range d.PullRequests {
		doc.Contributions = append(doc.Contributions, contributionDocument{
			Kind: "pull_request", ID: strconv.Itoa(p.Number), Title: p.Title, CreatedAt: p.CreatedAt, State: p.State,
		})
	}
	return doc
}

func newProvenanceDocument(p core.Provenance) provenanceDocument {
	weights := make(map[string]float64, len(p.Weights))
	for c, w := range p.Weights {
		weights[string(c)] = w
	}
	return provenanceDocument{
		Organization:  p.Organization,
		Repository:    p.Repository,
		Viewer:        p.Viewer,
		Since:         p.Since,
		Until:         p.Until,
		Users:         p.Users,
		Workers:       p.Workers,
		OracleEnabled: p.OracleEnabled,
		Weights:       weights,
		GeneratedAt:   p.GeneratedAt,
		Cancelled:     p.Cancelled,
		Warnings:      p.Warnings,
	}
}

func newScoreDocument(s maturity.Score) scoreDocument {
	doc := scoreDocument{
		Final:       s.Final,
		Level:       s.Level,
		Explanation: s.Explanation,
		Criteria:    make(map[string]criterionDocument, len(s.Criteria)),
	}
	for c, cs := range s.Criteria {
		doc.Criteria[string(c)] = criterionDocument(cs)
	}
	return doc
}

func newRepositoryDocument(s core.RepositoryStatus) repositoryDocument {
	doc := repositoryDocument{
		Name:                s.Repository.FullName,
		Language:            s.Repository.Language,
		Complete:            !s.Incomplete(),
		Commits:             s.Stats.Commits,
		Issues:              s.Stats.Issues,
		PullRequests:        s.Stats.PullRequests,
		ReviewComments:      s.Stats.ReviewComments,
		Contributors:        s.Stats.Contributors,
		CoAuthoredCommits:   s.Stats.CoAuthoredCommits,
		DistinctCoAuthors:   s.Stats.DistinctCoAuthors,
		UnresolvedCoAuthors: s.Stats.UnresolvedCoAuthors,
		CommitsPerWeek:      s.CommitsPerWeek,
		Structure:           s.Structure,
		Engagement:          s.Engagement,
		Score:               s.Score,
		Level:               s.Level,
	}
	for _, f := range s.Failures {
		doc.Failures = append(doc.Failures, failureDocument{Step: f.Step, Status: f.Status, Error: f.Err})
	}
	return doc
}

func writeJSON(w io.Writer, doc any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
