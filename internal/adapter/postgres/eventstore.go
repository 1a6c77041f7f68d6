package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/CodeSwarm/internal/domain/event"
)

// EventStore implements eventstore.Store using PostgreSQL. The
// coordinator_events table is append-only; nothing updates or deletes rows
// during normal operation.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts a new event into the coordinator_events table.
func (s *EventStore) Append(ctx context.Context, ev *event.CoordinatorEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO coordinator_events (id, agent_id, event_type, payload, request_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, nullIfEmpty(ev.AgentID), string(ev.Type), ev.Payload, ev.RequestID, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// eventColumns is the SELECT column list for coordinator_events queries.
const eventColumns = `id, COALESCE(agent_id::text, ''), event_type, payload, request_id, created_at`

func scanEvent(scanner interface{ Scan(dest ...any) error }, ev *event.CoordinatorEvent) error {
	return scanner.Scan(&ev.ID, &ev.AgentID, &ev.Type, &ev.Payload, &ev.RequestID, &ev.CreatedAt)
}

// LoadByAgent returns all events for the given agent in creation order.
func (s *EventStore) LoadByAgent(ctx context.Context, agentID string) ([]event.CoordinatorEvent, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM coordinator_events WHERE agent_id = $1 ORDER BY created_at ASC`, eventColumns),
		agentID)
	if err != nil {
		return nil, fmt.Errorf("load events by agent %s: %w", agentID, err)
	}
	defer rows.Close()

	var events []event.CoordinatorEvent
	for rows.Next() {
		var ev event.CoordinatorEvent
		if err := scanEvent(rows, &ev); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// LoadRecent returns the most recent events across all agents, newest first.
func (s *EventStore) LoadRecent(ctx context.Context, limit int) ([]event.CoordinatorEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM coordinator_events ORDER BY created_at DESC LIMIT $1`, eventColumns),
		limit)
	if err != nil {
		return nil, fmt.Errorf("load recent events: %w", err)
	}
	defer rows.Close()

	var events []event.CoordinatorEvent
	for rows.Next() {
		var ev event.CoordinatorEvent
		if err := scanEvent(rows, &ev); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// nullIfEmpty returns nil for empty strings (for nullable UUID columns).
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
