package candid

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Status is the outcome of synchronizing one canister
type Status string

const (
	StatusWritten       Status = "written"
	StatusSkippedNoID   Status = "skipped-no-id"
	StatusSkippedLayout Status = "skipped-layout"
	StatusWriteFailed   Status = "write-failed"
	StatusFetchFailed   Status = "fetch-failed"
	StatusDryRun        Status = "dry-run"
)

// Result records what happened to one registry entry
type Result struct {
	Name       string
	CanisterID string
	Path       string // relative to the project root, empty if nothing was written
	Status     Status
	Err        error
}

// Report aggregates the results of one run
type Report struct {
	mu      sync.Mutex
	Results []Result
}

func (r *Report) add(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Results = append(r.Results, res)
}

func (r *Report) sort() {
	sort.Slice(r.Results, func(i, j int) bool {
		return r.Results[i].Name < r.Results[j].Name
	})
}

// Count returns the number of results with the given status
func (r *Report) Count(status Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Get returns the result for a canister name
func (r *Report) Get(name string) (Result, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return Result{}, false
}

// Err returns a *SyncError when at least one fetch failed. Write failures
// and skips are not errors.
func (r *Report) Err() error {
	var failed []Result
	for _, res := range r.Results {
		if res.Status == StatusFetchFailed {
			failed = append(failed, res)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &SyncError{Failed: failed}
}

// SyncError lists the canisters whose interface could not be fetched
type SyncError struct {
	Failed []Result
}

func (e *SyncError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, res := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s (%s): %v", res.Name, res.CanisterID, res.Err))
	}
	return fmt.Sprintf("failed to fetch candid interface for %d canister(s): %s", len(e.Failed), strings.Join(parts, "; "))
}

func (e *SyncError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, res := range e.Failed {
		errs = append(errs, res.Err)
	}
	return errs
}

// IsSyncError reports whether err carries per-canister fetch failures
func IsSyncError(err error) bool {
	var se *SyncError
	return errors.As(err, &se)
}
