package signals

import (
	"path"
	"strings"

	"agilemeter.shikanime.studio/internal/maturity"
)

var ciConfigs = []string{
	".github/workflows/",
	".gitlab-ci.yml",
	".circleci/",
	".travis.yml",
	"azure-pipelines.yml",
	"jenkinsfile",
	".drone.yml",
	"bitbucket-pipelines.yml",
}

// DetectStructure derives the repository structure signals from the paths of
// its tree and the parsed README. Nested paths are matched on every segment.
func DetectStructure(paths []string, readme *maturity.ReadmeStats) maturity.Structure {
	s := maturity.Structure{Files: len(paths)}
	for _, p := range paths {
		lp := strings.ToLower(p)
		base := path.Base(lp)
		dir, _, nested := strings.Cut(lp, "/")

		switch {
		case !nested && strings.HasPrefix(base, "readme"):
			s.HasReadme = true
		case !nested && (strings.HasPrefix(base, "license") || strings.HasPrefix(base, "licence") || base == "copying"):
			s.HasLicense = true
		case lp == ".gitignore":
			s.HasGitignore = true
		case !nested && (base == "mkdocs.yml" || base == "mkdocs.yaml"):
			s.HasDocs = true
		}
		if nested && (dir == "docs" || dir == "doc") {
			s.HasDocs = true
		}
		if isTestPath(lp, base) {
			s.HasTests = true
		}
		for _, ci := range ciConfigs {
			if strings.HasPrefix(lp, ci) || lp == strings.TrimSuffix(ci, "/") {
				s.HasCI = true
			}
		}
	}
	if readme != nil {
		s.HasReadme = true
		s.Readme = *readme
		if readme.Rich() {
			s.HasDocs = true
		}
	}
	return s
}

func isTestPath(lp, base string) bool {
	for _, seg := range strings.Split(lp, "/") {
		if seg == "test" || seg == "tests" || seg == "__tests__" || seg == "spec" {
			return true
		}
	}
	return strings.HasSuffix(base, "_test.go") ||
		strings.HasPrefix(base, "test_") ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.")
}
