package state

import (
	"testing"
)

func TestMutationStatus_String(t *testing.T) {
	tests := []struct {
		name     string
		status   MutationStatus
		expected string
	}{
		{
			name:     "Pending status",
			status:   StatusPending,
			expected: "pending",
		},
		{
			name:     "Syncing status",
			status:   StatusSyncing,
			expected: "syncing",
		},
		{
			name:     "Synced status",
			status:   StatusSynced,
			expected: "synced",
		},
		{
			name:     "Failed status",
			status:   StatusFailed,
			expected: "failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.status.String()
			if result != tt.expected {
				t.Errorf("String() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     MutationStatus
		to       MutationStatus
		expected bool
	}{
		{
			name:     "Valid: Pending to Syncing",
			from:     StatusPending,
			to:       StatusSyncing,
			expected: true,
		},
		{
			name:     "Valid: Syncing to Synced",
			from:     StatusSyncing,
			to:       StatusSynced,
			expected: true,
		},
		{
			name:     "Valid: Syncing to Failed",
			from:     StatusSyncing,
			to:       StatusFailed,
			expected: true,
		},
		{
			name:     "Valid: Syncing released back to Pending",
			from:     StatusSyncing,
			to:       StatusPending,
			expected: true,
		},
		{
			name:     "Valid: Failed to Pending via retry",
			from:     StatusFailed,
			to:       StatusPending,
			expected: true,
		},
		{
			name:     "Invalid: Pending to Synced",
			from:     StatusPending,
			to:       StatusSynced,
			expected: false,
		},
		{
			name:     "Invalid: Synced to Failed",
			from:     StatusSynced,
			to:       StatusFailed,
			expected: false,
		},
		{
			name:     "Invalid: Synced to Pending",
			from:     StatusSynced,
			to:       StatusPending,
			expected: false,
		},
		{
			name:     "Invalid: Failed to Synced",
			from:     StatusFailed,
			to:       StatusSynced,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(StatusSynced) {
		t.Error("synced should be terminal")
	}
	for _, s := range []MutationStatus{StatusPending, StatusSyncing, StatusFailed} {
		if IsTerminal(s) {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
