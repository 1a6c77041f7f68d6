// Package memlock implements the lock table port with an in-process map.
package memlock

import "sync"

// Table is an in-memory file lock table. A single mutex guards the map so
// that acquisition is an atomic insert-if-absent: there is no window
// between detecting a holder and taking the lock.
type Table struct {
	mu     sync.Mutex
	owners map[string]string // path → agent ID
}

// New creates an empty lock table.
func New() *Table {
	return &Table{owners: make(map[string]string)}
}

// TryAcquire atomically acquires the lock on path for agentID.
func (t *Table) TryAcquire(path, agentID string) (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if holder, held := t.owners[path]; held {
		if holder == agentID {
			return true, ""
		}
		return false, holder
	}
	t.owners[path] = agentID
	return true, ""
}

// Release removes the lock on path if agentID holds it.
func (t *Table) Release(path, agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.owners[path] == agentID {
		delete(t.owners, path)
	}
}

// Owner returns the agent ID currently holding path, or "" if unlocked.
func (t *Table) Owner(path string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.owners[path]
}

// ReleaseAll removes every lock held by agentID and returns the released paths.
func (t *Table) ReleaseAll(agentID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var released []string
	for path, holder := range t.owners {
		if holder == agentID {
			released = append(released, path)
			delete(t.owners, path)
		}
	}
	return released
}
