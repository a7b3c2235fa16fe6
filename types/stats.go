package types

import "time"

// SyncHealth is the coarse backlog classification shown to operators.
type SyncHealth string

const (
	HealthGood     SyncHealth = "good"
	HealthWarning  SyncHealth = "warning"
	HealthCritical SyncHealth = "critical"
)

// QueueStats is an aggregate snapshot of the mutation queue.
type QueueStats struct {
	Pending       int        `json:"pending"`
	Syncing       int        `json:"syncing"`
	Synced        int        `json:"synced"`
	Failed        int        `json:"failed"`
	LastSync      *time.Time `json:"last_sync,omitempty"`
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
	Health        SyncHealth `json:"health"`
}

// DeriveHealth classifies the backlog. Critical when the failed count passes
// the high-water mark or the oldest pending item has sat longer than
// staleAfter; warning when anything has failed; good otherwise.
func DeriveHealth(stats QueueStats, failedHighWater int, staleAfter time.Duration, now time.Time) SyncHealth {
	if stats.Failed > failedHighWater {
		return HealthCritical
	}
	if stats.OldestPending != nil && now.Sub(*stats.OldestPending) > staleAfter {
		return HealthCritical
	}
	if stats.Failed > 0 {
		return HealthWarning
	}
	return HealthGood
}
