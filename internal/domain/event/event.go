// Package event defines the coordinator's append-only audit event entity.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies the kind of coordinator event.
type Type string

const (
	TypeAgentStarted       Type = "agent.started"
	TypeAgentCompleted     Type = "agent.completed"
	TypeAgentError         Type = "agent.error"
	TypeConflictDetected   Type = "conflict.detected"
	TypeConflictResolved   Type = "conflict.resolved"
	TypeExecutionCompleted Type = "execution.completed"
)

// CoordinatorEvent is a single immutable record in the audit trail. The log
// is write-only from the coordinator's perspective; nothing is removed from
// it during normal operation.
type CoordinatorEvent struct {
	ID        string          `json:"id"`
	AgentID   string          `json:"agent_id,omitempty"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
