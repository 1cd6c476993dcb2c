package score

import (
	"sort"

	"agilemeter.shikanime.studio/internal/maturity"
	"agilemeter.shikanime.studio/internal/maturity/signals"
)

// Key identifies one contributor in one repository.
type Key struct {
	Login      maturity.Login
	Repository string
}

// OracleValues holds the mean oracle score of each oracle criterion that had
// at least one scored artifact, per contributor and repository.
type OracleValues map[Key]map[maturity.Criterion]float64

// Row is the score of one contributor in one repository.
type Row struct {
	Login      maturity.Login
	Repository string
	Counts     maturity.Counts
	Score      maturity.Score
}

// UserScore is the roll-up of a contributor over every repository.
type UserScore struct {
	Login        maturity.Login
	Repositories int
	Counts       maturity.Counts
	Score        maturity.Score
}

// Result is the outcome of an aggregation. Users are sorted by login and rows
// by login, then repository.
type Result struct {
	Users []UserScore
	Rows  []Row
}

// Aggregator combines signals into maturity scores. It holds no state between calls.
type Aggregator struct {
	weights Weights
	oracle  bool
}

// NewAggregator returns an Aggregator using w. Oracle criteria are only
// considered when oracleEnabled is set.
func NewAggregator(w Weights, oracleEnabled bool) *Aggregator {
	return &Aggregator{weights: w, oracle: oracleEnabled}
}

// Effective returns the weights applied when every considered criterion is active.
func (a *Aggregator) Effective() Weights {
	active := maturity.Indicators
	if a.oracle {
		active = maturity.AllCriteria()
	}
	return a.weights.Normalize(active)
}

// Score combines the criterion values of one scope. A criterion is active when
// it has a value and a positive weight; the weights of the active criteria are
// re-normalized to sum to 1 and the final score is their weighted sum.
func (a *Aggregator) Score(login maturity.Login, values map[maturity.Criterion]float64) maturity.Score {
	var present []maturity.Criterion
	for _, c := range maturity.AllCriteria() {
		if _, ok := values[c]; !ok {
			continue
		}
		if c.IsOracle() && !a.oracle {
			continue
		}
		present = append(present, c)
	}
	weights := a.weights.Normalize(present)

	s := maturity.Score{Login: login, Criteria: make(map[maturity.Criterion]maturity.CriterionScore, len(present))}
	for _, c := range present {
		v := clamp(values[c])
		w, active := weights[c]
		s.Criteria[c] = maturity.CriterionScore{Value: v, Weight: w, Active: active}
		s.Final += w * v
	}
	s.Final = clamp(s.Final)
	s.Level = LevelOf(s.Final)
	s.Explanation = Explain(s)
	return s
}

// Aggregate scores every bundle and rolls the rows up per contributor. A user
// criterion value is the mean of its active per-repository values weighted by
// the contributor's activity volume in each repository, except
// activity_consistency which is recomputed over the weeks of every repository
// merged, the same series activity gaps are listed from.
func (a *Aggregator) Aggregate(bundles []maturity.SignalBundle, oracle OracleValues) Result {
	rows := make([]Row, 0, len(bundles))
	weeks := make(map[maturity.Login][]maturity.ActivityWeek)
	for _, b := range bundles {
		weeks[b.Login] = append(weeks[b.Login], b.Weeks...)
		values := make(map[maturity.Criterion]float64, len(b.Indicators)+len(maturity.OracleCriteria))
		for c, v := range b.Indicators {
			values[c] = v
		}
		for c, v := range oracle[Key{Login: b.Login, Repository: b.Repository}] {
			if c.IsOracle() {
				values[c] = v
			}
		}
		rows = append(rows, Row{
			Login:      b.Login,
			Repository: b.Repository,
			Counts:     b.Counts,
			Score:      a.Score(b.Login, values),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Login != rows[j].Login {
			return rows[i].Login < rows[j].Login
		}
		return rows[i].Repository < rows[j].Repository
	})

	var users []UserScore
	for start := 0; start < len(rows); {
		end := start
		for end < len(rows) && rows[end].Login == rows[start].Login {
			end++
		}
		users = append(users, a.rollUp(rows[start:end], weeks[rows[start].Login]))
		start = end
	}
	return Result{Users: users, Rows: rows}
}

func (a *Aggregator) rollUp(rows []Row, weeks []maturity.ActivityWeek) UserScore {
	u := UserScore{Login: rows[0].Login, Repositories: len(rows)}
	for _, r := range rows {
		u.Counts = u.Counts.Add(r.Counts)
	}

	values := make(map[maturity.Criterion]float64)
	for _, c := range maturity.AllCriteria() {
		var sum, volume float64
		for _, r := range rows {
			cs, ok := r.Score.Criteria[c]
			if !ok || !cs.Active {
				continue
			}
			vol := float64(r.Counts.Volume())
			if vol == 0 {
				vol = 1
			}
			sum += vol * cs.Value
			volume += vol
		}
		if volume > 0 {
			values[c] = sum / volume
		}
	}
	if _, ok := values[maturity.ActivityConsistency]; ok {
		// Zero only without any active week; the rows then keep their mean.
		if v := signals.Consistency(weeks); v > 0 {
			values[maturity.ActivityConsistency] = v
		}
	}
	u.Score = a.Score(u.Login, values)
	return u
}

func clamp(v float64) float64 { return min(1, max(0, v)) }
