// Package eventstore defines the port interface for the append-only audit log.
package eventstore

import (
	"context"

	"github.com/Strob0t/CodeSwarm/internal/domain/event"
)

// Store persists and loads coordinator audit events. Appends are
// write-only; events are never updated or deleted during normal operation.
type Store interface {
	// Append persists a new event.
	Append(ctx context.Context, ev *event.CoordinatorEvent) error

	// LoadByAgent returns all events for the given agent in creation order.
	LoadByAgent(ctx context.Context, agentID string) ([]event.CoordinatorEvent, error)

	// LoadRecent returns the most recent events across all agents, newest
	// first, up to limit.
	LoadRecent(ctx context.Context, limit int) ([]event.CoordinatorEvent, error)
}
