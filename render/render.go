// Package render turns a ScanResult into the two human-facing views the
// Tool Dispatcher exposes: a detailed Markdown report and a one-line
// standup summary.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/dougbtv/vllm-ci-mcp/triage"
)

// categoryOrder is the fixed rendering order for both views.
var categoryOrder = []triage.Category{
	triage.CategoryNewRegression,
	triage.CategoryFlakySuspected,
	triage.CategoryInfraSuspected,
	triage.CategoryKnownTracked,
	triage.CategoryNeedsTriage,
}

const errorPreviewLen = 100

// softJobNames returns the set of job names marked soft_failed.
func softJobNames(jobs []triage.JobInfo) map[string]bool {
	soft := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		if j.SoftFailed {
			soft[j.JobName] = true
		}
	}
	return soft
}

func partition(failures []triage.FailureClassification, soft map[string]bool) (hard, softFailures []triage.FailureClassification) {
	for _, f := range failures {
		if soft[f.TestFailure.JobName] {
			softFailures = append(softFailures, f)
		} else {
			hard = append(hard, f)
		}
	}
	return hard, softFailures
}

func groupByCategory(failures []triage.FailureClassification) map[triage.Category][]triage.FailureClassification {
	grouped := make(map[triage.Category][]triage.FailureClassification)
	for _, f := range failures {
		grouped[f.Category] = append(grouped[f.Category], f)
	}
	return grouped
}

// DetailedReport renders the full Daily Findings Markdown report for a
// ScanResult. jobs supplies the soft_failed flag per job name so hard and
// soft failures can be partitioned; pass nil when that distinction isn't
// available and everything is treated as hard.
func DetailedReport(result triage.ScanResult, jobs []triage.JobInfo) string {
	soft := softJobNames(jobs)
	hardFailures, softFailures := partition(result.Failures, soft)

	var md []string
	md = append(md, fmt.Sprintf("# Daily Findings - %s", scanDate(result)))
	md = append(md, "")

	md = append(md, "## Summary")
	md = append(md, fmt.Sprintf("- **Build**: [%s](%s)", result.BuildInfo.BuildNumber, result.BuildInfo.BuildURL))
	md = append(md, fmt.Sprintf("- **Branch**: %s", result.BuildInfo.Branch))
	md = append(md, fmt.Sprintf("- **Commit**: `%s`", shortCommit(result.BuildInfo.Commit)))
	md = append(md, fmt.Sprintf("- **Total Jobs**: %d, **Failed**: %d", result.TotalJobs, result.FailedJobs))
	md = append(md, fmt.Sprintf("- **Unique Failures**: %d (hard: %d, soft: %d)", len(result.Failures), len(hardFailures), len(softFailures)))
	if len(hardFailures) == 0 && len(softFailures) > 0 {
		md = append(md, "- PASSED (all failures are optional)")
	}
	md = append(md, "")

	md = append(md, "## Hard Failures")
	md = append(md, "")
	grouped := groupByCategory(hardFailures)
	for _, category := range categoryOrder {
		failures := grouped[category]
		if len(failures) == 0 {
			continue
		}
		md = append(md, fmt.Sprintf("### %s (%d failures)", category, len(failures)))
		md = append(md, "")
		for _, f := range failures {
			md = append(md, renderDetailedFailure(f)...)
		}
	}

	if len(softFailures) > 0 {
		md = append(md, "## Soft Failures")
		md = append(md, "")
		for _, f := range softFailures {
			line := fmt.Sprintf("- `%s`", f.TestFailure.JobName)
			if f.GitHubIssue != "" {
				line += fmt.Sprintf(" — %s", f.GitHubIssue)
			}
			md = append(md, line)
		}
		md = append(md, "")
	}

	return strings.TrimRight(strings.Join(md, "\n"), "\n")
}

func renderDetailedFailure(f triage.FailureClassification) []string {
	var lines []string
	lines = append(lines, fmt.Sprintf("- **%s** in `%s`", f.TestFailure.TestName, f.TestFailure.JobName))

	if f.TestFailure.ErrorMessage != "" {
		preview := f.TestFailure.ErrorMessage
		if len(preview) > errorPreviewLen {
			preview = preview[:errorPreviewLen] + "..."
		}
		lines = append(lines, fmt.Sprintf("  - Error: `%s`", preview))
	}

	lines = append(lines, fmt.Sprintf("  - Reason: %s", f.Reason))
	lines = append(lines, fmt.Sprintf("  - Confidence: %.0f%%", f.Confidence*100))

	if f.GitHubIssue != "" {
		lines = append(lines, fmt.Sprintf("  - GitHub Issue: %s", f.GitHubIssue))
	}

	if f.Owner != "" {
		confidenceStr := "unknown"
		if f.OwnerConfidence != nil {
			confidenceStr = fmt.Sprintf("%.0f%%", *f.OwnerConfidence*100)
		}
		lines = append(lines, fmt.Sprintf("  - Owner: %s (confidence: %s)", f.Owner, confidenceStr))
	}

	lines = append(lines, "")
	return lines
}

// StandupSummary renders a concise one-line standup status for a
// ScanResult. jobs supplies the soft_failed flag per job name, as in
// DetailedReport.
func StandupSummary(result triage.ScanResult, jobs []triage.JobInfo) string {
	soft := softJobNames(jobs)
	hardFailures, softFailures := partition(result.Failures, soft)

	byCategory := make(map[triage.Category]int, len(hardFailures))
	for _, f := range hardFailures {
		byCategory[f.Category]++
	}

	var parts []string
	for _, category := range []triage.Category{triage.CategoryNewRegression, triage.CategoryFlakySuspected, triage.CategoryInfraSuspected} {
		if n := byCategory[category]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, category))
		}
	}

	var newRegressions []string
	for _, f := range hardFailures {
		if f.Category == triage.CategoryNewRegression {
			newRegressions = append(newRegressions, lastSegment(f.TestFailure.TestName))
			if len(newRegressions) == 3 {
				break
			}
		}
	}

	var lines []string

	if len(hardFailures) == 0 && len(softFailures) > 0 {
		line := fmt.Sprintf("Nightly build [%s](%s) PASSED with %d soft-failed (optional) tests", result.BuildInfo.BuildNumber, result.BuildInfo.BuildURL, len(softFailures))
		if len(parts) > 0 {
			line += fmt.Sprintf(": %s", strings.Join(parts, ", "))
		}
		lines = append(lines, line)
	} else {
		stateStr := strings.ToUpper(string(result.BuildInfo.State))
		if result.BuildInfo.State == triage.BuildPassed {
			stateStr = "PASSED"
		}
		line := fmt.Sprintf("Nightly build [%s](%s) %s with %d unique failures (%d hard / %d soft)", result.BuildInfo.BuildNumber, result.BuildInfo.BuildURL, stateStr, len(result.Failures), len(hardFailures), len(softFailures))
		if len(parts) > 0 {
			line += fmt.Sprintf(": %s", strings.Join(parts, ", "))
		}
		line += "."
		lines = append(lines, line)
	}

	if len(newRegressions) > 0 {
		lines = append(lines, fmt.Sprintf("Key NEW_REGRESSION tests: %s", strings.Join(newRegressions, ", ")))
	}

	return strings.Join(lines, " ")
}

func scanDate(result triage.ScanResult) string {
	if result.ScanTimestamp.IsZero() {
		return time.Now().Format("2006-01-02")
	}
	return result.ScanTimestamp.Format("2006-01-02")
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}

func lastSegment(testName string) string {
	if i := strings.LastIndex(testName, "::"); i >= 0 {
		return testName[i+2:]
	}
	return testName
}
