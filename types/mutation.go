package types

import (
	"encoding/json"
	"time"

	"github.com/solarfab/linesync/internal/state"
)

// Operation is the kind of write a mutation represents.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

func (o Operation) String() string {
	return string(o)
}

// Priority orders mutations within a drain pass. High drains before medium,
// medium before low; enqueue order is preserved within a tier.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) String() string {
	return string(p)
}

// Rank returns the drain order of the priority, lower first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Mutation is one deferred write against the remote API. The store owns every
// lifecycle transition after creation; callers only enqueue and read.
type Mutation struct {
	ID          string
	Operation   Operation
	Table       string
	RecordID    string
	Data        json.RawMessage
	Priority    Priority
	Status      state.MutationStatus
	RetryCount  int
	MaxRetries  int
	LastError   *string
	ClaimedBy   *string
	ClaimedAt   *time.Time
	NextRetryAt *time.Time
	LastRetryAt *time.Time
	CreatedAt   time.Time
}

// Filter narrows List results. Zero-value fields are ignored.
type Filter struct {
	Operation Operation
	Table     string
	Priority  Priority
	Status    state.MutationStatus
	From      *time.Time
	To        *time.Time
}
