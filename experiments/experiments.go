// Package experiments provides a global registry of enabled and disabled
// experiments for the triage engine.
//
// It is intended for internal use by the triage engine only.
package experiments

const (
	// ConcurrentLogFetch fans failed-job log fetches out across a small
	// worker pool within a single Scanner.ScanBuild call instead of
	// fetching them one at a time. The HistoryEngine always fetches
	// sequentially.
	ConcurrentLogFetch = "concurrent-log-fetch"

	// GitHubIssueSearch enables the KNOWN_TRACKED classification step even
	// when --search-github is not set. With neither enabled the classifier
	// starts at INFRA_SUSPECTED.
	GitHubIssueSearch = "github-issue-search"

	// OwnerResolution enables CODEOWNERS/blame lookups for failures.
	OwnerResolution = "owner-resolution"

	// LegacyNightlySelector reverts the latest-nightly build selector to the
	// deprecated message-contains-"nightly" heuristic instead of the
	// source == "schedule" selector.
	LegacyNightlySelector = "legacy-nightly-selector"
)

var (
	Available = map[string]struct{}{
		ConcurrentLogFetch:    {},
		GitHubIssueSearch:     {},
		OwnerResolution:       {},
		LegacyNightlySelector: {},
	}

	experiments = make(map[string]bool, len(Available))
)

func EnableWithUndo(key string) func() {
	was := IsEnabled(key)
	Enable(key)
	return func() {
		if was {
			Enable(key)
		} else {
			Disable(key)
		}
	}
}

// Enable a particular experiment.
func Enable(key string) (known bool) {
	experiments[key] = true
	_, known = Available[key] // is the experiment they've enabled one that we know of?
	return known
}

// Disable a particular experiment.
func Disable(key string) {
	delete(experiments, key)
}

// IsEnabled reports whether the named experiment is enabled.
func IsEnabled(key string) bool {
	return experiments[key] // map[T]bool returns false for missing keys
}

// Enabled returns the keys of all the enabled experiments.
func Enabled() []string {
	var keys []string
	for key, enabled := range experiments {
		if enabled {
			keys = append(keys, key)
		}
	}
	return keys
}
