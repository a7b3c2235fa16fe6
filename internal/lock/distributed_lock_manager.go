package lock

// DistributedLockManager serialises cross-instance critical sections, such as
// schema bootstrap, when several agents share one queue database.
type DistributedLockManager interface {
	Acquire(lockID int) error
	Release(lockID int) error
}

// Advisory lock identifiers used by the agent.
const (
	MigrationLock   = 893401
	MaintenanceLock = 893402
)
