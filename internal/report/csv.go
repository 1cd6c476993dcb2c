package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"agilemeter.shikanime.studio/internal/maturity"
	"agilemeter.shikanime.studio/internal/maturity/core"
)

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

func countsRecord(c maturity.Counts) []string {
	return []string{
		strconv.Itoa(c.Commits),
		strconv.Itoa(c.CoAuthoredCommits),
		strconv.Itoa(c.Issues),
		strconv.Itoa(c.PullRequests),
		strconv.Itoa(c.MergedPRs),
		strconv.Itoa(c.ReviewComments),
		strconv.Itoa(c.LinesAdded),
		strconv.Itoa(c.LinesRemoved),
		strconv.Itoa(c.FilesChanged),
	}
}

var countsHeader = []string{
	"commits", "co_authored_commits", "issues", "pull_requests", "merged_pull_requests",
	"review_comments", "lines_added", "lines_removed", "files_changed",
}

func criteriaRecord(s maturity.Score, cs []maturity.Criterion) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		if v, ok := s.Criteria[c]; ok && v.Active {
			out[i] = ftoa(v.Value)
		}
	}
	return out
}

func criteriaHeader(cs []maturity.Criterion) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}

// writeSummaryCSV writes the users, rows, repositories and provenance
// sections, each opened by a one-field section record followed by its header.
func writeSummaryCSV(w io.Writer, res *core.Result) error {
	cw := csv.NewWriter(w)
	cs := columns(res.Provenance)

	section := func(name string, header ...[]string) {
		_ = cw.Write([]string{"# " + name})
		var h []string
		for _, part := range header {
			h = append(h, part...)
		}
		_ = cw.Write(h)
	}

	section("users", []string{"login", "repositories"}, countsHeader, criteriaHeader(cs), []string{"final", "level"})
	for _, u := range res.Users {
		rec := []string{string(u.Login), strconv.Itoa(u.Repositories)}
		rec = append(rec, countsRecord(u.Counts)...)
		rec = append(rec, criteriaRecord(u.Score, cs)...)
		rec = append(rec, ftoa(u.Score.Final), string(u.Score.Level))
		_ = cw.Write(rec)
	}

	_ = cw.Write(nil)
	section("rows", []string{"login", "repository"}, countsHeader, criteriaHeader(cs), []string{"final", "level"})
	for _, r := range res.Rows {
		rec := []string{string(r.Login), r.Repository}
		rec = append(rec, countsRecord(r.Counts)...)
		rec = append(rec, criteriaRecord(r.Score, cs)...)
		rec = append(rec, ftoa(r.Score.Final), string(r.Score.Level))
		_ = cw.Write(rec)
	}

	_ = cw.Write(nil)
	section("repositories", []string{
		"repository", "complete", "failed_steps", "commits", "issues", "pull_requests",
		"review_comments", "contributors", "distinct_co_authors", "unresolved_co_authors",
		"commits_per_week", "structure", "engagement", "score", "level",
	})
	for _, s := range res.Repositories {
		_ = cw.Write(repositoryRecord(s))
	}

	_ = cw.Write(nil)
	section("provenance", []string{"key", "value"})
	for _, rec := range provenanceRecords(res.Provenance, cs) {
		_ = cw.Write(rec)
	}

	cw.Flush()
	return cw.Error()
}

func repositoryRecord(s core.RepositoryStatus) []string {
	steps := make([]string, len(s.Failures))
	for i, f := range s.Failures {
		steps[i] = string(f.Step)
	}
	return []string{
		s.Repository.FullName,
		strconv.FormatBool(!s.Incomplete()),
		strings.Join(steps, ";"),
		strconv.Itoa(s.Stats.Commits),
		strconv.Itoa(s.Stats.Issues),
		strconv.Itoa(s.Stats.PullRequests),
		strconv.Itoa(s.Stats.ReviewComments),
		strconv.Itoa(s.Stats.Contributors),
		strconv.Itoa(s.Stats.DistinctCoAuthors),
		strconv.Itoa(s.Stats.UnresolvedCoAuthors),
		ftoa(s.CommitsPerWeek),
		ftoa(s.Structure),
		ftoa(s.Engagement),
		ftoa(s.Score),
		string(s.Level),
	}
}

// provenanceRecords lists the run parameters as key and value pairs. Weights
// and warnings repeat their key once per entry.
func provenanceRecords(p core.Provenance, cs []maturity.Criterion) [][]string {
	users := make([]string, len(p.Users))
	for i, l := range p.Users {
		users[i] = string(l)
	}
	out := [][]string{
		{"organization", p.Organization},
		{"repository", p.Repository},
		{"viewer", p.Viewer},
		{"since", p.Since.UTC().Format(time.DateOnly)},
		{"until", p.Until.UTC().Format(time.DateOnly)},
		{"users", strings.Join(users, ";")},
		{"workers", strconv.Itoa(p.Workers)},
		{"oracle_enabled", strconv.FormatBool(p.OracleEnabled)},
		{"generated_at", p.GeneratedAt.UTC().Format(time.RFC3339)},
		{"cancelled", strconv.FormatBool(p.Cancelled)},
	}
	for _, c := range cs {
		out = append(out, []string{"weight." + string(c), ftoa(p.Weights[c])})
	}
	for _, w := range p.Warnings {
		out = append(out, []string{"warning", w})
	}
	return out
}

// writeUserCSV writes one record per contribution of the contributor.
func writeUserCSV(w io.Writer, d *core.UserDetail) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"kind", "repository", "id", "created_at", "title", "state"})
	repo := d.Repository.Repository.FullName
	for _, c := range d.Commits {
		_ = cw.Write([]string{"commit", repo, c.SHA, c.CreatedAt.UTC().Format(time.RFC3339), c.Subject(), ""})
	}
	for _, i := range d.Issues {
		_ = cw.Write([]string{"issue", repo, strconv.Itoa(i.Number), i.CreatedAt.UTC().Format(time.RFC3339), i.Title, i.State})
	}
	for _, p := range d.PullRequests {
		state := p.State
		if p.Merged {
			state = "merged"
		}
		_ = cw.Write([]string{"pull_request", repo, strconv.Itoa(p.Number), p.CreatedAt.UTC().Format(time.RFC3339), p.Title, state})
	}
	for _, r := range d.ReviewComments {
		_ = cw.Write([]string{"review_comment", repo, strconv.FormatInt(r.ID, 10), r.CreatedAt.UTC().Format(time.RFC3339), firstLine(r.Body), string(r.Kind)})
	}
	cw.Flush()
	return cw.Error()
}

func firstLine(s string) string {
	l, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return l
}
