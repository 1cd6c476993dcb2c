package report

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"agilemeter.shikanime.studio/internal/maturity"
	"agilemeter.shikanime.studio/internal/maturity/core"
	"agilemeter.shikanime.studio/internal/maturity/score"
)

// latest bounds the contribution lists of a user report.
const latest = 10

var funcs = template.FuncMap{
	"score": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"pct":   func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) },
	"date":  func(t time.Time) string { return t.UTC().Format(time.DateOnly) },
	"stamp": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
	"cell":  cell,
	"yes": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
	"value": func(s maturity.Score, c maturity.Criterion) string {
		cs, ok := s.Criteria[c]
		if !ok || !cs.Active {
			return "n/a"
		}
		return fmt.Sprintf("%.2f", cs.Value)
	},
}

// cell makes s safe inside a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", " ")
}

var summaryTemplate = template.Must(template.New("summary").Funcs(funcs).Parse(`# Agile maturity report: {{ .Scope }}

- Period: {{ date .Provenance.Since }} to {{ date .Provenance.Until }}
- Generated: {{ stamp .Provenance.GeneratedAt }}
{{- if .Provenance.Viewer }}
- Authenticated as: {{ .Provenance.Viewer }}
{{- end }}
- Repositories: {{ len .Repositories }}
- Contributors: {{ len .Users }}
- Workers: {{ .Provenance.Workers }}
- Quality oracle: {{ if .Provenance.OracleEnabled }}enabled{{ else }}disabled{{ end }}
{{- if .Provenance.Users }}
- Users: {{ .UserFilter }}
{{- end }}
{{- if .Provenance.Cancelled }}

> The run was interrupted; the results below are partial.
{{- end }}

## Summary

{{ if .Users -}}
| User | Repositories | Commits | Issues | Pull requests | Reviews | Score | Level |
|---|---:|---:|---:|---:|---:|---:|---|
{{ range .Users -}}
| {{ cell (print .Login) }} | {{ .Repositories }} | {{ .Counts.Commits }} | {{ .Counts.Issues }} | {{ .Counts.PullRequests }} | {{ .Counts.ReviewComments }} | {{ score .Score.Final }} | {{ .Score.Level }} |
{{ end -}}
{{ else -}}
No contributor activity in the period.
{{ end }}
{{- if .Users }}
### Explanations

{{ range .Users -}}
- **{{ .Login }}**: {{ .Score.Explanation }}
{{ end -}}
{{ end }}
{{- if .Rows }}
## Details

| User | Repository |{{ range .Criteria }} {{ . }} |{{ end }} Score | Level |
|---|---|{{ range .Criteria }}---:|{{ end }}---:|---|
{{ range $r := .Rows -}}
| {{ cell (print $r.Login) }} | {{ cell $r.Repository }} |{{ range $.Criteria }} {{ value $r.Score . }} |{{ end }} {{ score $r.Score.Final }} | {{ $r.Score.Level }} |
{{ end -}}
{{ end }}
## Repositories

{{ if .Repositories -}}
| Repository | Status | Commits | Commits/week | Contributors | Co-authors | Unresolved co-authors | Structure | Engagement | Score | Level |
|---|---|---:|---:|---:|---:|---:|---:|---:|---:|---|
{{ range .Repositories -}}
| {{ cell .Repository.FullName }} | {{ if .Incomplete }}incomplete ({{ range $i, $f := .Failures }}{{ if $i }}, {{ end }}{{ $f.Step }}{{ if $f.Status }} {{ $f.Status }}{{ end }}{{ end }}){{ else }}complete{{ end }} | {{ .Stats.Commits }} | {{ score .CommitsPerWeek }} | {{ .Stats.Contributors }} | {{ .Stats.DistinctCoAuthors }} | {{ .Stats.UnresolvedCoAuthors }} | {{ pct .Structure }} | {{ pct .Engagement }} | {{ score .Score }} | {{ .Level }} |
{{ end -}}
{{ else -}}
No repository matched the discovery filters.
{{ end }}
{{- if .Gaps }}
## Activity gaps

{{ range .Gaps -}}
- **{{ .Login }}**: inactive in the weeks of {{ range $i, $w := .Weeks }}{{ if $i }}, {{ end }}{{ date $w }}{{ end }}
{{ end -}}
{{ end }}
## Weights

| Criterion | Weight |
|---|---:|
{{ range .Weights -}}
| {{ .Criterion }} | {{ score .Weight }} |
{{ end -}}
{{- if .Provenance.Warnings }}
## Warnings

{{ range .Provenance.Warnings -}}
- {{ . }}
{{ end -}}
{{ end -}}
`))

var userTemplate = template.Must(template.New("user").Funcs(funcs).Parse(`# Agile practices of {{ .Login }}

- Repository: {{ .Repository.Repository.FullName }}
- Period: {{ date .Since }} to {{ date .Until }}
- Generated: {{ stamp .GeneratedAt }}
{{- if .Repository.Incomplete }}

> Collection was incomplete for this repository; some figures may be low.
{{- end }}

## Activity

| Metric | Value |
|---|---:|
| Commits | {{ .Counts.Commits }} |
| Co-authored commits | {{ .Counts.CoAuthoredCommits }} |
| Issues | {{ .Counts.Issues }} |
| Pull requests | {{ .Counts.PullRequests }} |
| Merged pull requests | {{ .Counts.MergedPRs }} |
| Review comments | {{ .Counts.ReviewComments }} |
| Lines added | {{ .Counts.LinesAdded }} |
| Lines removed | {{ .Counts.LinesRemoved }} |
| Files changed | {{ .Counts.FilesChanged }} |

## Commit frequency

- Weeks in period: {{ .Frequency.Weeks }}
- Inactive weeks: {{ .Frequency.InactiveWeeks }}
- Commits per week: {{ score .Frequency.CommitsPerWeek }}
- Activity rate: {{ pct .Frequency.ActivityRate }}
- Alert level: **{{ .Frequency.Level }}**

{{ range .FrequencyAdvice -}}
- {{ . }}
{{ end }}
## Productivity

- Lines per commit: {{ score .LinesPerCommit }}
- Files per commit: {{ score .FilesPerCommit }}
- Merge rate: {{ pct .MergeRate }}

## Scores

{{ if .Score -}}
| Criterion | Value | Weight |
|---|---:|---:|
{{ range $c := .Criteria -}}
{{ with index $.Score.Criteria $c }}{{ if .Active }}| {{ $c }} | {{ score .Value }} | {{ score .Weight }} |
{{ end }}{{ end }}
{{- end }}
Final score **{{ score .Score.Final }}**, level **{{ .Score.Level }}**.

{{ .Score.Explanation }}
{{ else -}}
No scored activity in the period.
{{ end }}
{{- if .Recommendations }}
## Recommendations

{{ range .Recommendations -}}
- {{ . }}
{{ end -}}
{{ end }}
{{- if .Commits }}
## Latest commits

| Date | SHA | Subject |
|---|---|---|
{{ range .Commits -}}
| {{ date .CreatedAt }} | {{ .SHA }} | {{ cell .Subject }} |
{{ end -}}
{{ end }}
{{- if .Issues }}
## Latest issues

| Date | Number | Title | State |
|---|---:|---|---|
{{ range .Issues -}}
| {{ date .CreatedAt }} | #{{ .Number }} | {{ cell .Title }} | {{ .State }} |
{{ end -}}
{{ end }}
{{- if .PullRequests }}
## Latest pull requests

| Date | Number | Title | State | Merged |
|---|---:|---|---|---|
{{ range .PullRequests -}}
| {{ date .CreatedAt }} | #{{ .Number }} | {{ cell .Title }} | {{ .State }} | {{ yes .Merged }} |
{{ end -}}
{{ end -}}
`))

type weightView struct {
	Criterion maturity.Criterion
	Weight    float64
}

type summaryView struct {
	Scope        string
	Provenance   core.Provenance
	UserFilter   string
	Criteria     []maturity.Criterion
	Weights      []weightView
	Users        []score.UserScore
	Rows         []score.Row
	Repositories []core.RepositoryStatus
	Gaps         []core.ActivityGap
}

func newSummary(res *core.Result) summaryView {
	p := res.Provenance
	v := summaryView{
		Scope:        scopeOf(p),
		Provenance:   p,
		Criteria:     columns(p),
		Users:        res.Users,
		Rows:         res.Rows,
		Repositories: res.Repositories,
		Gaps:         res.Gaps,
	}
	users := make([]string, len(p.Users))
	for i, l := range p.Users {
		users[i] = string(l)
	}
	v.UserFilter = strings.Join(users, ", ")
	for _, c := range v.Criteria {
		v.Weights = append(v.Weights, weightView{Criterion: c, Weight: p.Weights[c]})
	}
	return v
}

func scopeOf(p core.Provenance) string {
	if p.Repository != "" {
		return p.Repository
	}
	return p.Organization
}

// columns lists the weighted criteria considered by the run, in report order.
func columns(p core.Provenance) []maturity.Criterion {
	var out []maturity.Criterion
	for _, c := range maturity.AllCriteria() {
		if c.IsOracle() && !p.OracleEnabled {
			continue
		}
		if p.Weights[c] > 0 {
			out = append(out, c)
		}
	}
	return out
}

type userView struct {
	*core.UserDetail
	Since           time.Time
	Until           time.Time
	GeneratedAt     time.Time
	Criteria        []maturity.Criterion
	Score           *maturity.Score
	FrequencyAdvice []string
	Recommendations []string
	LinesPerCommit  float64
	FilesPerCommit  float64
	MergeRate       float64
}

func newUserView(d *core.UserDetail) userView {
	v := userView{
		UserDetail:      d,
		Criteria:        maturity.AllCriteria(),
		FrequencyAdvice: FrequencyAdvice(d.Frequency.Level),
	}
	if d.Result != nil {
		v.Since = d.Result.Provenance.Since
		v.Until = d.Result.Provenance.Until
		v.GeneratedAt = d.Result.Provenance.GeneratedAt
	}
	if d.Score != nil {
		s := d.Score.Score
		v.Score = &s
		v.Recommendations = Recommendations(s, score.HealthyThreshold)
	}
	c := d.Counts
	if c.Commits > 0 {
		v.LinesPerCommit = float64(c.LinesAdded+c.LinesRemoved) / float64(c.Commits)
		v.FilesPerCommit = float64(c.FilesChanged) / float64(c.Commits)
	}
	if c.PullRequests > 0 {
		v.MergeRate = float64(c.MergedPRs) / float64(c.PullRequests)
	}
	v.UserDetail = trimmed(d)
	return v
}

// trimmed returns a shallow copy of d keeping only the latest contributions.
func trimmed(d *core.UserDetail) *core.UserDetail {
	t := *d
	t.Commits = t.Commits[:min(latest, len(t.Commits))]
	t.Issues = t.Issues[:min(latest, len(t.Issues))]
	t.PullRequests = t.PullRequests[:min(latest, len(t.PullRequests))]
	return &t
}

func writeMarkdown(w io.Writer, t *template.Template, data any) error {
	return t.Execute(w, data)
}
