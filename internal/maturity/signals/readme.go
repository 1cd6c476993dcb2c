package signals

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"agilemeter.shikanime.studio/internal/maturity"
)

var (
	installHeadings    = []string{"install", "getting started", "setup", "set up", "quick start", "quickstart"}
	usageHeadings      = []string{"usage", "example", "how to use", "running", "run "}
	contributeHeadings = []string{"contribut"}
)

// ParseReadme walks the Markdown AST of a README and summarizes its structure.
func ParseReadme(src []byte) (maturity.ReadmeStats, error) {
	var stats maturity.ReadmeStats
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	err := ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			stats.Headings++
			if n.Level == 2 {
				stats.Sections++
			}
			title, err := nodeText(n, src)
			if err != nil {
				return ast.WalkStop, err
			}
			title = strings.ToLower(title)
			stats.HasInstall = stats.HasInstall || containsAny(title, installHeadings)
			stats.HasUsage = stats.HasUsage || containsAny(title, usageHeadings)
			stats.HasContribute = stats.HasContribute || containsAny(title, contributeHeadings)
		case *ast.Text:
			stats.Words += len(strings.Fields(string(n.Segment.Value(src))))
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return maturity.ReadmeStats{}, err
	}
	return stats, nil
}

// nodeText concatenates the text segments below node.
func nodeText(node ast.Node, src []byte) (string, error) {
	var b strings.Builder
	err := ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return b.String(), err
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
