package accounts

import "fmt"

// ItemResult is the outcome of processing one user in a batch.
type ItemResult struct {
	UserID  string
	Updated bool
	Err     error
}

// BatchResult accumulates item results by index so concurrent workers never
// share an append.
type BatchResult struct {
	items []ItemResult
	set   []bool
}

// NewBatchResult allocates room for n items.
func NewBatchResult(n int) *BatchResult {
	return &BatchResult{
		items: make([]ItemResult, n),
		set:   make([]bool, n),
	}
}

// Set stores the result for slot i. Each slot must be written by one worker.
func (b *BatchResult) Set(i int, result ItemResult) {
	b.items[i] = result
	b.set[i] = true
}

// Len returns the number of slots.
func (b *BatchResult) Len() int {
	return len(b.items)
}

// Reduce folds the recorded slots into report, in slot order.
func (b *BatchResult) Reduce(report *SyncReport) {
	for i, item := range b.items {
		if !b.set[i] {
			continue
		}
		report.Processed++
		if item.Err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("user %s: %v", item.UserID, item.Err))
			continue
		}
		if item.Updated {
			report.UpdatedCount++
		}
	}
}

// SyncReport summarizes a bulk reconciliation run.
type SyncReport struct {
	UpdatedCount int      `json:"updatedCount"`
	Processed    int      `json:"processed"`
	Errors       []string `json:"errors"`
}

// Success reports whether the run finished without any recorded error.
func (r *SyncReport) Success() bool {
	return r != nil && len(r.Errors) == 0
}
