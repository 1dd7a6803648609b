package history

import (
	"fmt"
	"strings"

	"github.com/dougbtv/vllm-ci-mcp/triage"
)

const (
	minBuildsForAssessment = 3
	regressionThreshold    = 0.2
	persistentThreshold    = 0.8
	consistencyThreshold   = 0.8
)

// calculateFailRate returns the fraction of test_found entries in
// found[startIdx:endIdx] with a "fail" status. endIdx == -1 means the end
// of the slice.
func calculateFailRate(found []triage.TimelineEntry, startIdx, endIdx int) float64 {
	if endIdx < 0 {
		endIdx = len(found)
	}
	window := found[startIdx:endIdx]
	if len(window) == 0 {
		return 0
	}
	failed := 0
	for _, t := range window {
		if t.TestStatus == triage.StatusFail {
			failed++
		}
	}
	return float64(failed) / float64(len(window))
}

// findTransitionPoint returns the earliest index where the fail rate
// before it is under regressionThreshold and the fail rate from it onward
// exceeds persistentThreshold, i.e. a clean pass→fail transition. It
// requires at least 3 entries and returns -1 when no such point exists.
func findTransitionPoint(found []triage.TimelineEntry) int {
	if len(found) < minBuildsForAssessment {
		return -1
	}
	for i := 1; i < len(found); i++ {
		before := calculateFailRate(found, 0, i)
		after := calculateFailRate(found, i, -1)
		if before < regressionThreshold && after > persistentThreshold {
			return i
		}
	}
	return -1
}

// consistentFingerprintAfter reports whether more than consistencyThreshold
// of the failing fingerprints from startIdx onward share the same value.
func consistentFingerprintAfter(found []triage.TimelineEntry, startIdx int) bool {
	fps := collectFingerprints(found[startIdx:])
	if len(fps) == 0 {
		return false
	}
	_, mostCommonCount := modalFingerprint(fps)
	return float64(mostCommonCount)/float64(len(fps)) > consistencyThreshold
}

func collectFingerprints(entries []triage.TimelineEntry) []string {
	var fps []string
	for _, t := range entries {
		if t.TestStatus != triage.StatusFail {
			continue
		}
		for _, j := range t.Jobs {
			if j.FingerprintNormalized != "" {
				fps = append(fps, j.FingerprintNormalized)
			}
		}
	}
	return fps
}

func modalFingerprint(fps []string) (value string, count int) {
	counts := make(map[string]int, len(fps))
	for _, fp := range fps {
		counts[fp]++
	}
	for fp, c := range counts {
		if c > count {
			value, count = fp, c
		}
	}
	return value, count
}

// Assess classifies a Timeline's test behavior. There is deliberately no
// middle "REGRESSION/MED" tier: a post-transition fingerprint below the
// consistency threshold falls through to the ordinary fail-rate bands
// rather than being reported as a weaker regression.
func Assess(timeline []triage.TimelineEntry) triage.Assessment {
	var found []triage.TimelineEntry
	for _, t := range timeline {
		if t.TestFound {
			found = append(found, t)
		}
	}

	if len(found) < minBuildsForAssessment {
		return triage.Assessment{
			Classification: triage.AssessmentInsufficientData,
			Confidence:     triage.ConfidenceLow,
			Notes: []string{
				fmt.Sprintf("Test found in only %d builds", len(found)),
				"Need at least 3 builds to detect patterns",
			},
		}
	}

	failRate := calculateFailRate(found, 0, -1)

	if transitionIdx := findTransitionPoint(found); transitionIdx >= 0 {
		transitionEntry := found[transitionIdx]
		if consistentFingerprintAfter(found, transitionIdx) {
			build := transitionEntry.BuildNumber
			return triage.Assessment{
				Classification: triage.AssessmentRegression,
				Confidence:     triage.ConfidenceHigh,
				Notes: []string{
					fmt.Sprintf("Clear transition at build %d (commit %s)", transitionEntry.BuildNumber, shortSHA(transitionEntry.CommitSHA)),
					fmt.Sprintf("Consistent failure fingerprint across %d builds after transition", len(found)-transitionIdx),
					fmt.Sprintf("Fail rate before: %.1f%%", calculateFailRate(found, 0, transitionIdx)*100),
					fmt.Sprintf("Fail rate after: %.1f%%", calculateFailRate(found, transitionIdx, -1)*100),
				},
				TransitionBuild: &build,
			}
		}
	}

	if failRate >= regressionThreshold && failRate <= persistentThreshold {
		fps := collectFingerprints(found)
		if len(distinct(fps)) > 1 {
			return triage.Assessment{
				Classification: triage.AssessmentFlakeOnset,
				Confidence:     triage.ConfidenceMed,
				Notes: []string{
					fmt.Sprintf("Intermittent failures: %.1f%% fail rate", failRate*100),
					fmt.Sprintf("%d different failure fingerprints detected", len(distinct(fps))),
					"Test alternates between passing and failing",
				},
			}
		}
		return triage.Assessment{
			Classification: triage.AssessmentSporadic,
			Confidence:     triage.ConfidenceMed,
			Notes: []string{
				fmt.Sprintf("Intermittent failures: %.1f%% fail rate", failRate*100),
				"Occasional failures without clear pattern",
			},
		}
	}

	if failRate > persistentThreshold {
		fps := collectFingerprints(found)
		consistent := false
		if len(fps) > 0 {
			_, count := modalFingerprint(fps)
			consistent = float64(count)/float64(len(fps)) > consistencyThreshold
		}
		return triage.Assessment{
			Classification: triage.AssessmentPersistentFail,
			Confidence:     triage.ConfidenceHigh,
			Notes: []string{
				fmt.Sprintf("Failing in %.1f%% of recent builds", failRate*100),
				fmt.Sprintf("Consistent fingerprint: %t", consistent),
				"Test has been broken for extended period",
			},
		}
	}

	return triage.Assessment{
		Classification: triage.AssessmentSporadic,
		Confidence:     triage.ConfidenceHigh,
		Notes: []string{
			fmt.Sprintf("Rare failures: %.1f%% fail rate", failRate*100),
			"Test is mostly stable with occasional failures",
		},
	}
}

func distinct(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	var out []string
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func shortSHA(sha string) string {
	if sha == "" {
		return "unknown"
	}
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// GenerateSummary renders a human-readable markdown summary of a test's
// timeline and assessment.
func GenerateSummary(testNodeID string, timeline []triage.TimelineEntry, assessment triage.Assessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Test History: `%s`\n\n", testNodeID)
	fmt.Fprintf(&b, "**Classification:** %s (confidence: %s)\n\n", assessment.Classification, assessment.Confidence)

	if len(assessment.Notes) > 0 {
		b.WriteString("**Analysis:**\n")
		for _, n := range assessment.Notes {
			fmt.Fprintf(&b, "- %s\n", n)
		}
		b.WriteString("\n")
	}

	if assessment.TransitionBuild != nil {
		for _, t := range timeline {
			if t.BuildNumber == *assessment.TransitionBuild {
				b.WriteString("**Regression introduced at:**\n")
				fmt.Fprintf(&b, "- Build: [%d](%s)\n", t.BuildNumber, t.BuildURL)
				fmt.Fprintf(&b, "- Commit: %s\n", shortSHA(t.CommitSHA))
				if !t.CreatedAt.IsZero() {
					fmt.Fprintf(&b, "- Time: %s\n", t.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
				}
				b.WriteString("\n")
				break
			}
		}
	}

	var found []triage.TimelineEntry
	for _, t := range timeline {
		if t.TestFound {
			found = append(found, t)
		}
	}
	if len(found) > 0 {
		passed, failed := 0, 0
		for _, t := range found {
			switch t.TestStatus {
			case triage.StatusPass:
				passed++
			case triage.StatusFail:
				failed++
			}
		}
		fmt.Fprintf(&b, "**Timeline summary:** %d builds scanned\n", len(found))
		fmt.Fprintf(&b, "- Passed: %d\n", passed)
		fmt.Fprintf(&b, "- Failed: %d\n\n", failed)

		b.WriteString("**Recent builds:**\n")
		recent := found
		if len(found) > 5 {
			recent = found[len(found)-5:]
		}
		for i := len(recent) - 1; i >= 0; i-- {
			t := recent[i]
			emoji := "✅"
			if t.TestStatus == triage.StatusFail {
				emoji = "❌"
			}
			fmt.Fprintf(&b, "- %s Build [%d](%s) (commit %s)\n", emoji, t.BuildNumber, t.BuildURL, shortSHA(t.CommitSHA))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
