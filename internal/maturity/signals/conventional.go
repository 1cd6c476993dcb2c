package signals

import (
	"regexp"
	"strings"
)

// ConventionalTypes are the commit types accepted as conventional.
var ConventionalTypes = []string{
	"feat", "fix", "docs", "style", "refactor", "perf", "test", "build", "ci", "chore", "revert",
}

var conventionalRe = regexp.MustCompile(
	`^(?i:` + strings.Join(ConventionalTypes, "|") + `)(\([^()\r\n]*\))?!?: \S`,
)

// IsConventional reports whether the first line of message follows the
// conventional commit form type(scope)!: subject.
func IsConventional(message string) bool {
	first, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	return conventionalRe.MatchString(strings.TrimSpace(first))
}
