package hooks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// SecretScan rejects commits whose staged content contains credentials.
// It scans with the default gitleaks ruleset.
type SecretScan struct {
	detector *detect.Detector
}

// NewSecretScan builds the scanner with the default gitleaks config.
func NewSecretScan() (*SecretScan, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks default config: %w", err)
	}
	return &SecretScan{detector: detector}, nil
}

func (s *SecretScan) Name() string { return "secret-scan" }

// Run scans every staged text file. Binary and deleted files are skipped.
func (s *SecretScan) Run(ctx context.Context, req *Request) (*Result, error) {
	leaks := make(map[string][]string)
	for _, path := range req.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(filepath.Join(req.Root, filepath.FromSlash(path)))
		if err != nil {
			// Staged deletions have no working tree file to scan.
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if !utf8.Valid(raw) {
			continue
		}
		for _, finding := range s.detector.DetectString(string(raw)) {
			leaks[path] = append(leaks[path], finding.RuleID)
		}
	}
	if len(leaks) == 0 {
		return &Result{}, nil
	}

	paths := make([]string, 0, len(leaks))
	for p := range leaks {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		parts = append(parts, fmt.Sprintf("%s (%s)", p, strings.Join(leaks[p], ", ")))
	}
	return nil, fmt.Errorf("staged files contain secrets: %s", strings.Join(parts, "; "))
}
