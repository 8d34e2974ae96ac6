package loader

import "fmt"

// OperationResult is what every top-level coordinator operation returns:
// a single status plus a human-readable message list the console can
// render directly.
type OperationResult struct {
	// Status is "ok", "queued" (a deferred reload) or "already-loaded". A
	// failed operation is reported only through the returned error; Status
	// is not set to a failure value.
	Status string
	// Messages accumulates human-readable progress/diagnostic lines in
	// order.
	Messages []string
}

func newResult(status string) *OperationResult {
	return &OperationResult{Status: status}
}

func (r *OperationResult) logf(format string, args ...any) {
	r.Messages = append(r.Messages, fmt.Sprintf(format, args...))
}
