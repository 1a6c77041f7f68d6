// Package locktable defines the port for the shared file lock table.
package locktable

// Table tracks which agent, if any, holds the exclusive write lock on a
// file path. Implementations must make TryAcquire atomic: conflict
// detection and acquisition are a single insert-if-absent step, never a
// separate check followed by a write.
type Table interface {
	// TryAcquire atomically acquires the lock on path for agentID.
	// Returns acquired=true on success. When the lock is already held,
	// acquired is false and holder is the owning agent ID. Re-acquiring a
	// lock the agent already holds succeeds.
	TryAcquire(path, agentID string) (acquired bool, holder string)

	// Release removes the lock on path if agentID holds it.
	Release(path, agentID string)

	// Owner returns the agent ID currently holding path, or "" if unlocked.
	Owner(path string) string

	// ReleaseAll removes every lock held by agentID and returns the
	// released paths.
	ReleaseAll(agentID string) []string
}
