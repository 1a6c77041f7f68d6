package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages. Audit events broadcast by
// the coordinator use their own type strings (agent.started, agent.completed,
// conflict.detected, ...); the constants here cover the extra push-only
// messages the UI consumes.
const (
	EventAgentStatus = "agent.status"
	EventAgentStats  = "agent.stats"
)

// AgentStatusEvent is broadcast when an instance changes status.
type AgentStatusEvent struct {
	AgentID string `json:"agent_id"`
	Status  string `json:"status"`
}

// AgentStatsEvent carries the per-status instance counts.
type AgentStatsEvent struct {
	Running   int `json:"running"`
	Waiting   int `json:"waiting"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
