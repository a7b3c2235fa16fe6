package types

import "time"

// PassStatus is the lifecycle of one drain pass.
type PassStatus string

const (
	PassIdle    PassStatus = "idle"
	PassRunning PassStatus = "running"
	PassDone    PassStatus = "done"
)

// SyncProgress is an ephemeral per-pass snapshot, replaced wholesale on each
// emission. Current is nil between items and after the pass completes.
type SyncProgress struct {
	Total     int        `json:"total"`
	Processed int        `json:"processed"`
	Current   *Mutation  `json:"current,omitempty"`
	Status    PassStatus `json:"status"`
}

// SyncResult summarises a completed drain pass.
type SyncResult struct {
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Conflicts  int           `json:"conflicts"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Duration   time.Duration `json:"duration"`
}
