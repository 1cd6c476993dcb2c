package score

import (
	"fmt"
	"sort"
	"strings"

	"agilemeter.shikanime.studio/internal/maturity"
)

const explainTop = 2

// Explain names the two criteria contributing most to the final score and the
// two with the lowest values. Ties are broken by criterion name.
func Explain(s maturity.Score) string {
	var active []maturity.Criterion
	for c, cs := range s.Criteria {
		if cs.Active {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		return "no active criteria"
	}

	strengths := rank(active, func(c maturity.Criterion) float64 { return -s.Criteria[c].Weight * s.Criteria[c].Value })
	weaknesses := rank(active, func(c maturity.Criterion) float64 { return s.Criteria[c].Value })

	var b strings.Builder
	b.WriteString("strengths: ")
	writeRanked(&b, strengths, s)
	b.WriteString("; weaknesses: ")
	writeRanked(&b, weaknesses, s)
	return b.String()
}

// rank returns the first criteria by ascending key.
func rank(cs []maturity.Criterion, key func(maturity.Criterion) float64) []maturity.Criterion {
	out := append([]maturity.Criterion(nil), cs...)
	sort.Slice(out, func(i, j int) bool {
		if ki, kj := key(out[i]), key(out[j]); ki != kj {
			return ki < kj
		}
		return out[i] < out[j]
	})
	return out[:min(explainTop, len(out))]
}

func writeRanked(b *strings.Builder, cs []maturity.Criterion, s maturity.Score) {
	for i, c := range cs {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%s (%.2f)", c, s.Criteria[c].Value)
	}
}
