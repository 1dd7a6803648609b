// Package triage holds the data model shared by every stage of the
// triage pipeline: the Buildkite-derived build/job snapshots, the
// failures extracted from their logs, and the classified, deduplicated,
// and timeline-assessed results built from them.
//
// Every type here is an immutable per-invocation value. Nothing in this
// package talks to the network or the filesystem, and nothing here is
// persisted between invocations.
package triage

import "time"

// BuildState mirrors the states a Buildkite build can be in.
type BuildState string

const (
	BuildPassed    BuildState = "passed"
	BuildFailed    BuildState = "failed"
	BuildFailing   BuildState = "failing"
	BuildCanceled  BuildState = "canceled"
	BuildRunning   BuildState = "running"
	BuildScheduled BuildState = "scheduled"
	BuildUnknown   BuildState = "unknown"
)

// BuildInfo is an immutable snapshot of one Buildkite build, parsed from
// a single API record.
type BuildInfo struct {
	BuildNumber string
	BuildURL    string
	Pipeline    string
	Branch      string
	Commit      string
	State       BuildState
	CreatedAt   time.Time
	FinishedAt  *time.Time
	// Source is how the build was triggered, e.g. "schedule", "ui", "api",
	// "webhook". Used to identify nightly/scheduled builds.
	Source string
	// Message is the build's commit/trigger message.
	Message string
}

// JobInfo is an immutable snapshot of one job within a build.
type JobInfo struct {
	JobID       string
	JobName     string
	State       string
	ExitStatus  *int
	Passed      bool
	BuildNumber string
	// SoftFailed is true when the job is allowed to fail without failing
	// the build.
	SoftFailed bool
}

// TestFailure is a single test failure extracted from a job's log by the
// LogParser.
type TestFailure struct {
	// TestName is the pytest nodeid, or the job name as a synthetic
	// fallback when no pytest test names could be found in the log.
	TestName     string
	JobName      string
	ErrorMessage string // truncated to 200 chars
	StackTrace   string // truncated to 1000 chars
	LogSnippet   string // truncated to 500 chars
}

// Category is one of the five triage outcomes a failure can be assigned.
type Category string

const (
	CategoryKnownTracked   Category = "KNOWN_TRACKED"
	CategoryInfraSuspected Category = "INFRA_SUSPECTED"
	CategoryFlakySuspected Category = "FLAKY_SUSPECTED"
	CategoryNewRegression  Category = "NEW_REGRESSION"
	CategoryNeedsTriage    Category = "NEEDS_HUMAN_TRIAGE"
)

// Fixed confidence constants for categories whose confidence does not vary.
const (
	ConfidenceInfraSuspected = 0.7
	ConfidenceFlakySuspected = 0.6
	ConfidenceNewRegression  = 0.5
	ConfidenceNeedsTriage    = 0.3
)

// FailureClassification is a TestFailure after classification, carrying
// the stable dedup key, category, confidence, and (optionally) an owner.
type FailureClassification struct {
	FailureKey      string // 16 hex chars
	TestFailure     TestFailure
	Category        Category
	GitHubIssue     string // URL, empty if none
	Confidence      float64
	Reason          string
	Owner           string
	OwnerConfidence *float64
}

// ScanResult is the complete, deduplicated output of scanning one build.
type ScanResult struct {
	BuildInfo     BuildInfo
	TotalJobs     int
	FailedJobs    int
	Failures      []FailureClassification // post-dedup, first-occurrence order
	ScanTimestamp time.Time
}

// TestStatus is the outcome of searching for a specific test in a job's log.
type TestStatus string

const (
	StatusPass    TestStatus = "pass"
	StatusFail    TestStatus = "fail"
	StatusUnknown TestStatus = "unknown"
)

// JobOutcome is the result of searching one job's log for a specific test.
type JobOutcome struct {
	JobName               string
	JobURL                string
	Status                TestStatus
	FingerprintRaw        string
	FingerprintNormalized string
	LogExcerpt            string
	ErrorMessage          string
}

// TimelineEntry is one build's worth of history for a single test.
type TimelineEntry struct {
	BuildNumber int
	BuildURL    string
	CreatedAt   time.Time
	CommitSHA   string
	TestFound   bool
	TestStatus  TestStatus
	Jobs        []JobOutcome // failed partition before passed partition
}

// Confidence is the Assessor's confidence in its classification.
type Confidence string

const (
	ConfidenceHigh Confidence = "HIGH"
	ConfidenceMed  Confidence = "MED"
	ConfidenceLow  Confidence = "LOW"
)

// AssessmentClassification is one of the five timeline classifications.
type AssessmentClassification string

const (
	AssessmentRegression       AssessmentClassification = "REGRESSION"
	AssessmentFlakeOnset       AssessmentClassification = "FLAKE_ONSET"
	AssessmentPersistentFail   AssessmentClassification = "PERSISTENT_FAIL"
	AssessmentSporadic         AssessmentClassification = "SPORADIC"
	AssessmentInsufficientData AssessmentClassification = "INSUFFICIENT_DATA"
)

// Assessment is the Assessor's verdict on a Timeline.
type Assessment struct {
	Classification  AssessmentClassification
	Confidence      Confidence
	Notes           []string
	TransitionBuild *int
}
