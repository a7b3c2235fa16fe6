package state

type MutationStatus string

const (
	StatusPending MutationStatus = "pending"
	StatusSyncing MutationStatus = "syncing"
	StatusSynced  MutationStatus = "synced"
	StatusFailed  MutationStatus = "failed"
)

func (s MutationStatus) String() string {
	return string(s)
}

var AllStatuses = []MutationStatus{
	StatusPending,
	StatusSyncing,
	StatusSynced,
	StatusFailed,
}

type Transition struct {
	From MutationStatus
	To   MutationStatus
}

// ValidTransitions enumerates the legal lifecycle moves. Synced is terminal;
// failed only leaves via an explicit retry back to pending.
var ValidTransitions = []Transition{
	{From: StatusPending, To: StatusSyncing},
	{From: StatusSyncing, To: StatusSynced},
	{From: StatusSyncing, To: StatusFailed},
	{From: StatusSyncing, To: StatusPending},
	{From: StatusFailed, To: StatusPending},
}

func IsValidTransition(from, to MutationStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no automatic transition leaves the status.
func IsTerminal(s MutationStatus) bool {
	return s == StatusSynced
}
