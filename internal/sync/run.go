package sync

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agavecli/agsync/internal/types"
	"github.com/agavecli/agsync/internal/utils"
)

// Outcome is the per-item result of one transfer or directory visit
type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeSkipped   Outcome = "SKIPPED"
	OutcomeFailed    Outcome = "FAILED"
)

// RunStatus is the aggregate outcome of a whole run
type RunStatus string

const (
	StatusAllSucceeded   RunStatus = "ALL_SUCCEEDED"
	StatusPartialFailure RunStatus = "PARTIAL_FAILURE"
	StatusTotalFailure   RunStatus = "TOTAL_FAILURE"
)

// ItemKind distinguishes files from directories in run results
type ItemKind string

const (
	ItemFile      ItemKind = "file"
	ItemDirectory ItemKind = "directory"
)

// ItemResult records one item processed during a run
type ItemResult struct {
	RemotePath string          `json:"remotePath"`
	LocalPath  string          `json:"localPath,omitempty"`
	Kind       ItemKind        `json:"kind"`
	Outcome    Outcome         `json:"outcome"`
	Bytes      int64           `json:"bytes,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Error      *types.CLIError `json:"error,omitempty"`
}

// Run collects per-item results from concurrent workers and derives the
// aggregate status. An individual failure never aborts the run; it is
// recorded here and the remaining work continues.
type Run struct {
	mu      sync.Mutex
	started time.Time
	items   []ItemResult
	aborted bool
}

// NewRun starts an empty result aggregate
func NewRun() *Run {
	return &Run{started: time.Now()}
}

// Abort marks the run as aborted. Workers stop dispatching new items;
// results already recorded are kept. Used for run-local errors such as
// local disk failures, which are fatal to the whole run.
func (r *Run) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborted = true
}

// Aborted reports whether the run has been aborted
func (r *Run) Aborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted
}

// Record appends one item result. Safe for concurrent use.
func (r *Run) Record(item ItemResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
}

// RecordError is shorthand for recording a failed item
func (r *Run) RecordError(remotePath, localPath string, kind ItemKind, err error) {
	item := ItemResult{
		RemotePath: remotePath,
		LocalPath:  localPath,
		Kind:       kind,
		Outcome:    OutcomeFailed,
	}
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		cliErr := appErr.CLIError
		item.Error = &cliErr
	} else if err != nil {
		cliErr := utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build()
		item.Error = &cliErr
	}
	r.Record(item)
}

// Items returns a copy of the recorded results
func (r *Run) Items() []ItemResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ItemResult(nil), r.items...)
}

// Counts returns the number of succeeded, skipped and failed items
func (r *Run) Counts() (succeeded, skipped, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		switch item.Outcome {
		case OutcomeSucceeded:
			succeeded++
		case OutcomeSkipped:
			skipped++
		case OutcomeFailed:
			failed++
		}
	}
	return succeeded, skipped, failed
}

// Status derives the aggregate run status. A run with no failures is
// ALL_SUCCEEDED, even when every item was a skip; a run where nothing
// succeeded and something failed is TOTAL_FAILURE.
func (r *Run) Status() RunStatus {
	succeeded, skipped, failed := r.Counts()
	if failed == 0 {
		return StatusAllSucceeded
	}
	if succeeded == 0 && skipped == 0 {
		return StatusTotalFailure
	}
	return StatusPartialFailure
}

// ExitCode maps the run status to the process exit code. Only a run with
// zero failures exits 0.
func (r *Run) ExitCode() int {
	if r.Status() == StatusAllSucceeded {
		return utils.ExitSuccess
	}
	return utils.ExitPartialFailure
}

// Summary is the JSON-friendly aggregate of a run
type Summary struct {
	Status     RunStatus    `json:"status"`
	Succeeded  int          `json:"succeeded"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
	Bytes      int64        `json:"bytes"`
	DurationMS int64        `json:"durationMs"`
	Items      []ItemResult `json:"items"`
}

// Summarize snapshots the run into a Summary
func (r *Run) Summarize() Summary {
	items := r.Items()
	var bytes int64
	for _, item := range items {
		bytes += item.Bytes
	}
	succeeded, skipped, failed := r.Counts()
	return Summary{
		Status:     r.Status(),
		Succeeded:  succeeded,
		Skipped:    skipped,
		Failed:     failed,
		Bytes:      bytes,
		DurationMS: time.Since(r.started).Milliseconds(),
		Items:      items,
	}
}

// Headers implements types.TableRenderer
func (s Summary) Headers() []string {
	return []string{"Outcome", "Kind", "Remote Path", "Size", "Detail"}
}

// Rows implements types.TableRenderer
func (s Summary) Rows() [][]string {
	rows := make([][]string, 0, len(s.Items))
	for _, item := range s.Items {
		detail := item.Reason
		if item.Error != nil {
			detail = item.Error.Code + ": " + item.Error.Message
		}
		size := ""
		if item.Kind == ItemFile && item.Outcome == OutcomeSucceeded {
			size = formatBytes(item.Bytes)
		}
		rows = append(rows, []string{
			string(item.Outcome),
			string(item.Kind),
			item.RemotePath,
			size,
			detail,
		})
	}
	return rows
}

// EmptyMessage implements types.TableRenderer
func (s Summary) EmptyMessage() string {
	return "Nothing to transfer."
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
