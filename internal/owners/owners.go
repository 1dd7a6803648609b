// Package owners infers who owns a failing test's file, first by matching
// a CODEOWNERS file and, failing that, by blaming the file's most recent
// committer. Both strategies are best-effort: a missing repository, a
// missing CODEOWNERS file, or a blame failure all degrade to "no owner"
// rather than an error.
package owners

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
)

const (
	// ConfidenceCodeowners is the confidence assigned to a CODEOWNERS
	// match.
	ConfidenceCodeowners = 0.9
	// ConfidenceBlame is the confidence assigned to a git-blame fallback
	// match.
	ConfidenceBlame = 0.6
)

// codeownersLocations are checked, in order, for a CODEOWNERS file.
var codeownersLocations = []string{
	"CODEOWNERS",
	filepath.Join(".github", "CODEOWNERS"),
	filepath.Join("docs", "CODEOWNERS"),
}

// Resolver infers test file ownership within a single repository checkout.
type Resolver struct {
	repoPath   string
	codeowners map[string]string // pattern -> owner, insertion order not preserved
}

// NewResolver builds a Resolver rooted at repoPath, parsing whichever
// CODEOWNERS file it finds there (if any). repoPath may be empty, in which
// case Infer always returns ("", 0, false).
func NewResolver(repoPath string) *Resolver {
	r := &Resolver{repoPath: repoPath}
	if repoPath == "" {
		return r
	}
	if info, err := os.Stat(repoPath); err != nil || !info.IsDir() {
		return r
	}
	r.codeowners = parseCodeowners(repoPath)
	return r
}

// Infer returns the owner for testFilePath and a confidence in [0,1]. ok is
// false when no owner could be determined. CODEOWNERS patterns are tried
// longest first, so a more specific pattern wins over a broader one that
// also matches.
func (r *Resolver) Infer(testFilePath string) (owner string, confidence float64, ok bool) {
	if r.repoPath == "" {
		return "", 0, false
	}

	patterns := make([]string, 0, len(r.codeowners))
	for p := range r.codeowners {
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i]) != len(patterns[j]) {
			return len(patterns[i]) > len(patterns[j])
		}
		return patterns[i] < patterns[j]
	})
	for _, pattern := range patterns {
		candidateOwner := r.codeowners[pattern]
		patternClean := strings.TrimPrefix(pattern, "/")
		if strings.Contains(testFilePath, patternClean) || strings.HasPrefix(testFilePath, patternClean) {
			return candidateOwner, ConfidenceCodeowners, true
		}
		if strings.Contains(patternClean, "*") {
			prefix := strings.ReplaceAll(patternClean, "*", "")
			if strings.HasPrefix(testFilePath, prefix) {
				return candidateOwner, ConfidenceCodeowners, true
			}
		}
	}

	if blameOwner, found := r.blame(testFilePath); found {
		return blameOwner, ConfidenceBlame, true
	}
	return "", 0, false
}

func parseCodeowners(repoPath string) map[string]string {
	pattern := make(map[string]string)
	for _, loc := range codeownersLocations {
		f, err := os.Open(filepath.Join(repoPath, loc))
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			pattern[fields[0]] = strings.TrimPrefix(fields[1], "@")
		}
		f.Close() //nolint:errcheck // read-only scan
	}
	return pattern
}

// blame returns the email of the most recent committer to touch
// testFilePath, found by scanning the file's blame result for the
// latest-dated line.
func (r *Resolver) blame(testFilePath string) (string, bool) {
	repo, err := git.PlainOpen(r.repoPath)
	if err != nil {
		return "", false
	}
	head, err := repo.Head()
	if err != nil {
		return "", false
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return "", false
	}
	result, err := git.Blame(commit, testFilePath)
	if err != nil || len(result.Lines) == 0 {
		return "", false
	}

	var newestEmail string
	var newestDate time.Time
	for _, line := range result.Lines {
		if line.Author == "" {
			continue
		}
		if newestEmail == "" || line.Date.After(newestDate) {
			newestEmail = line.Author
			newestDate = line.Date
		}
	}
	if newestEmail == "" {
		return "", false
	}
	return newestEmail, true
}
