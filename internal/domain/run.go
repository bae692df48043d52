package domain

import "time"

// RunState is a stage of the diagnostic state machine.
type RunState string

const (
	RunIdle        RunState = "idle"
	RunFetching    RunState = "fetching"
	RunNormalizing RunState = "normalizing"
	RunClassifying RunState = "classifying"
	RunEstimating  RunState = "estimating"
	RunComplete    RunState = "complete"
	RunFailed      RunState = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s RunState) Terminal() bool {
	return s == RunComplete || s == RunFailed
}

// RunReport describes the outcome of a single diagnostic run.
type RunReport struct {
	RunID        string              `json:"run_id"`
	Token        uint64              `json:"token"`
	EntityID     string              `json:"entity_id"`
	State        RunState            `json:"state"`
	FailedDuring RunState            `json:"failed_during,omitempty"`
	Snapshot     *DiagnosticSnapshot `json:"snapshot,omitempty"`
	Err          error               `json:"-"`
	Error        string              `json:"error,omitempty"`
	Narration    []string            `json:"narration"`
	// Applied is false when a newer run for the same entity was issued while
	// this one was in flight, in which case the snapshot was discarded.
	Applied bool          `json:"applied"`
	Elapsed time.Duration `json:"elapsed"`
}

// UpstreamRequest describes one diagnostic call to the webhook.
type UpstreamRequest struct {
	URL           string
	EntityID      string
	HeaderName    string
	IdentityField string
}

// UpstreamResponse is the raw outcome of one transport attempt.
type UpstreamResponse struct {
	Status int
	Body   []byte
}
