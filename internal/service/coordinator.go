// Package service implements the multi-agent execution coordinator.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	csotel "github.com/Strob0t/CodeSwarm/internal/adapter/otel"
	"github.com/Strob0t/CodeSwarm/internal/config"
	"github.com/Strob0t/CodeSwarm/internal/domain"
	"github.com/Strob0t/CodeSwarm/internal/domain/agent"
	"github.com/Strob0t/CodeSwarm/internal/domain/event"
	"github.com/Strob0t/CodeSwarm/internal/logger"
	"github.com/Strob0t/CodeSwarm/internal/port/broadcast"
	"github.com/Strob0t/CodeSwarm/internal/port/eventstore"
	"github.com/Strob0t/CodeSwarm/internal/port/messagequeue"
	"github.com/Strob0t/CodeSwarm/internal/resilience"
)

// Coordinator is the authoritative registry of agent instances. It owns the
// lifecycle state machine and the append-only event log; all instance
// mutation goes through its operations, never direct field writes, so every
// status change pairs with an audit event.
type Coordinator struct {
	mu        sync.Mutex
	instances map[string]*agent.Instance

	evMu      sync.Mutex
	agentLogs map[string][]event.CoordinatorEvent

	defs *agent.DefinitionSet
	cfg  *config.Coordinator

	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	events  eventstore.Store
	breaker *resilience.Breaker
	metrics *csotel.Metrics

	scopes *ScopeService
}

// NewCoordinator creates a Coordinator. Queue, hub, events, breaker, and
// metrics may be nil; the coordinator degrades to in-process operation.
func NewCoordinator(
	defs *agent.DefinitionSet,
	cfg *config.Coordinator,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	events eventstore.Store,
	breaker *resilience.Breaker,
) *Coordinator {
	return &Coordinator{
		instances: make(map[string]*agent.Instance),
		agentLogs: make(map[string][]event.CoordinatorEvent),
		defs:      defs,
		cfg:       cfg,
		queue:     queue,
		hub:       hub,
		events:    events,
		breaker:   breaker,
	}
}

// SetScopes wires the access scope service used on start and terminal transitions.
func (c *Coordinator) SetScopes(s *ScopeService) { c.scopes = s }

// SetMetrics wires the coordinator metric instruments.
func (c *Coordinator) SetMetrics(m *csotel.Metrics) { c.metrics = m }

// GetAgent returns a snapshot of the instance with the given id. Reads never
// receive the registry's live pointer: lifecycle operations mutate instances
// under the registry mutex, and a caller marshalling or inspecting a live
// instance would race them.
func (c *Coordinator) GetAgent(id string) (*agent.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inst, ok := c.instances[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return inst.Clone(), nil
}

// ListAgents returns a snapshot of every instance in the registry.
func (c *Coordinator) ListAgents() []*agent.Instance {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*agent.Instance, 0, len(c.instances))
	for _, inst := range c.instances {
		out = append(out, inst.Clone())
	}
	return out
}

// GetRunningAgents returns all instances currently in status running.
func (c *Coordinator) GetRunningAgents() []*agent.Instance {
	return c.byStatus(agent.StatusRunning)
}

// GetWaitingAgents returns all instances currently paused for a conflict.
func (c *Coordinator) GetWaitingAgents() []*agent.Instance {
	return c.byStatus(agent.StatusWaitingConflict)
}

func (c *Coordinator) byStatus(status agent.Status) []*agent.Instance {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*agent.Instance, 0)
	for _, inst := range c.instances {
		if inst.Status == status {
			out = append(out, inst.Clone())
		}
	}
	return out
}

// GetAgentStats returns a point-in-time projection of instance counts per
// status. The projection is computed directly from the registry, so
// cancellations and conflict pauses are reflected immediately.
func (c *Coordinator) GetAgentStats() agent.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stats agent.Stats
	for _, inst := range c.instances {
		switch inst.Status {
		case agent.StatusRunning:
			stats.Running++
		case agent.StatusWaitingConflict:
			stats.Waiting++
		case agent.StatusCompleted:
			stats.Completed++
		case agent.StatusError:
			stats.Failed++
		case agent.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// AppendMessage appends a chat message or tool-call record to an instance's
// conversation log.
func (c *Coordinator) AppendMessage(id string, msg agent.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	inst, ok := c.instances[id]
	if !ok {
		return domain.ErrNotFound
	}
	inst.Conversation.Append(msg)
	return nil
}

// ListAgentEvents returns the in-memory audit events for one agent in
// creation order.
func (c *Coordinator) ListAgentEvents(agentID string) []event.CoordinatorEvent {
	c.evMu.Lock()
	defer c.evMu.Unlock()

	evs := c.agentLogs[agentID]
	out := make([]event.CoordinatorEvent, len(evs))
	copy(out, evs)
	return out
}

// appendEvent builds an audit event, appends it to the per-agent in-memory
// log, persists it through the circuit breaker, and broadcasts it to
// connected clients. Persistence failures are logged, never propagated:
// a down audit store must not stall the coordinator.
func (c *Coordinator) appendEvent(ctx context.Context, evType event.Type, agentID string, payload map[string]string) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal event payload", "type", evType, "error", err)
		return
	}

	ev := event.CoordinatorEvent{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Type:      evType,
		Payload:   payloadJSON,
		RequestID: logger.RequestID(ctx),
		CreatedAt: time.Now(),
	}

	c.evMu.Lock()
	if agentID != "" {
		c.agentLogs[agentID] = append(c.agentLogs[agentID], ev)
	} else {
		c.agentLogs[""] = append(c.agentLogs[""], ev)
	}
	c.evMu.Unlock()

	if c.events != nil {
		persist := func() error { return c.events.Append(ctx, &ev) }
		if c.breaker != nil {
			err = c.breaker.Execute(persist)
		} else {
			err = persist()
		}
		if err != nil {
			slog.Error("append audit event", "type", evType, "agent_id", agentID, "error", err)
		}
	}

	if c.hub != nil {
		c.hub.BroadcastEvent(ctx, string(evType), ev)
	}
}

// publishJSON marshals payload and publishes it on the worker protocol queue.
func (c *Coordinator) publishJSON(ctx context.Context, subject string, payload any) {
	if c.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal queue payload", "subject", subject, "error", err)
		return
	}
	if err := c.queue.Publish(ctx, subject, data); err != nil {
		slog.Error("publish queue message", "subject", subject, "error", err)
	}
}
