package changeset

import (
	"path/filepath"
	"strings"
)

// manifestFiles are dependency manifests and lockfiles. Any change to these
// affects the build of every consumer, so they route to review.
var manifestFiles = map[string]bool{
	"go.mod":            true,
	"go.sum":            true,
	"package.json":      true,
	"package-lock.json": true,
	"yarn.lock":         true,
	"requirements.txt":  true,
	"pyproject.toml":    true,
	"poetry.lock":       true,
	"Cargo.toml":        true,
	"Cargo.lock":        true,
	"Gemfile":           true,
	"Gemfile.lock":      true,
}

// docExtensions are file extensions treated as documentation.
var docExtensions = map[string]bool{
	".md":   true,
	".rst":  true,
	".adoc": true,
	".txt":  false, // plain text is ambiguous, stays production
}

// scriptExtensions are file extensions treated as scripts.
var scriptExtensions = map[string]bool{
	".sh":   true,
	".bash": true,
	".zsh":  true,
	".ps1":  true,
}

// Categorize tags a repository-relative path with its file category.
//
// Evaluation order matters: CI config and dependency manifests are checked
// before everything else because they carry the strictest routing rule.
// Anything unrecognized defaults to production, which is the conservative
// choice for the classifier.
func Categorize(path string) Category {
	slashed := filepath.ToSlash(path)
	base := filepath.Base(slashed)
	ext := strings.ToLower(filepath.Ext(base))

	switch {
	case isCIConfig(slashed, base):
		return CategoryCI
	case manifestFiles[base]:
		return CategoryManifest
	case docExtensions[ext]:
		return CategoryDocs
	case hasPathComponent(slashed, "docs") || hasPathComponent(slashed, "doc"):
		return CategoryDocs
	case isTestFile(slashed, base):
		return CategoryTest
	case scriptExtensions[ext] || hasPathComponent(slashed, "scripts"):
		return CategoryScript
	default:
		return CategoryProduction
	}
}

func isCIConfig(slashed, base string) bool {
	if strings.HasPrefix(slashed, ".github/workflows/") {
		return true
	}
	switch base {
	case ".gitlab-ci.yml", ".travis.yml", "Jenkinsfile", "azure-pipelines.yml":
		return true
	}
	return strings.HasPrefix(slashed, ".circleci/")
}

func isTestFile(slashed, base string) bool {
	if strings.HasSuffix(base, "_test.go") {
		return true
	}
	if strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py") {
		return true
	}
	if strings.HasSuffix(base, ".test.js") || strings.HasSuffix(base, ".test.ts") ||
		strings.HasSuffix(base, ".spec.js") || strings.HasSuffix(base, ".spec.ts") {
		return true
	}
	return hasPathComponent(slashed, "tests") || hasPathComponent(slashed, "test") ||
		hasPathComponent(slashed, "testdata")
}

// hasPathComponent reports whether the slash-separated path contains the
// given directory component (not as a suffix of the file name).
func hasPathComponent(slashed, component string) bool {
	parts := strings.Split(slashed, "/")
	// Last element is the file name, only directories count.
	for _, p := range parts[:len(parts)-1] {
		if p == component {
			return true
		}
	}
	return false
}
