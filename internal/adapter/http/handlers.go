package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Strob0t/CodeSwarm/internal/adapter/ws"
	"github.com/Strob0t/CodeSwarm/internal/domain/agent"
	"github.com/Strob0t/CodeSwarm/internal/domain/event"
	"github.com/Strob0t/CodeSwarm/internal/port/cache"
	"github.com/Strob0t/CodeSwarm/internal/port/eventstore"
	"github.com/Strob0t/CodeSwarm/internal/port/messagequeue"
	"github.com/Strob0t/CodeSwarm/internal/service"
)

// Handlers bundles the coordinator services behind the HTTP API.
type Handlers struct {
	coord    *service.Coordinator
	resolver *service.ResolverService
	events   eventstore.Store
	queue    messagequeue.Queue

	cache    cache.Cache
	cacheTTL time.Duration
	hub      *ws.Hub
}

// NewHandlers creates the HTTP handler set. events, queue, cache, and hub
// may be nil; the corresponding endpoints degrade gracefully.
func NewHandlers(
	coord *service.Coordinator,
	resolver *service.ResolverService,
	events eventstore.Store,
	queue messagequeue.Queue,
	store cache.Cache,
	cacheTTL time.Duration,
	hub *ws.Hub,
) *Handlers {
	return &Handlers{
		coord:    coord,
		resolver: resolver,
		events:   events,
		queue:    queue,
		cache:    store,
		cacheTTL: cacheTTL,
		hub:      hub,
	}
}

// SpawnAgent admits and starts a new agent instance.
// POST /api/v1/agents
func (h *Handlers) SpawnAgent(w http.ResponseWriter, r *http.Request) {
	cfg, ok := readJSON[agent.SpawnConfig](w, r)
	if !ok {
		return
	}

	if res := h.coord.ValidateSpawnConfig(&cfg); !res.Valid {
		writeJSON(w, http.StatusBadRequest, res)
		return
	}

	inst, err := h.coord.CreateAgentInstance(r.Context(), &cfg)
	if err != nil {
		writeDomainError(w, err, "agent template not found")
		return
	}
	if err := h.coord.StartAgent(r.Context(), inst.ID); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}

	// Re-fetch so the response reflects the post-start status.
	started, err := h.coord.GetAgent(inst.ID)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusCreated, started)
}

// ValidateSpawn dry-runs spawn validation without admitting anything.
// POST /api/v1/agents/validate
func (h *Handlers) ValidateSpawn(w http.ResponseWriter, r *http.Request) {
	cfg, ok := readJSON[agent.SpawnConfig](w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.coord.ValidateSpawnConfig(&cfg))
}

// ListAgents returns instances in the registry, optionally filtered by
// lifecycle status.
// GET /api/v1/agents?status=running|waiting
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("status") {
	case "":
		writeJSON(w, http.StatusOK, h.coord.ListAgents())
	case "running":
		writeJSON(w, http.StatusOK, h.coord.GetRunningAgents())
	case "waiting":
		writeJSON(w, http.StatusOK, h.coord.GetWaitingAgents())
	default:
		writeError(w, http.StatusBadRequest, "status must be 'running' or 'waiting'")
	}
}

// GetAgent returns one instance.
// GET /api/v1/agents/{id}
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	inst, err := h.coord.GetAgent(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// GetStats returns per-status instance counts.
// GET /api/v1/agents/stats
func (h *Handlers) GetStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.coord.GetAgentStats())
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CancelAgent terminally cancels one instance.
// POST /api/v1/agents/{id}/cancel
func (h *Handlers) CancelAgent(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength > 0 {
		var ok bool
		if req, ok = readJSON[cancelRequest](w, r); !ok {
			return
		}
	}

	id := urlParam(r, "id")
	if err := h.coord.CancelAgent(r.Context(), id, req.Reason); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	inst, err := h.coord.GetAgent(id)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// CancelAllAgents cancels every non-terminal instance.
// POST /api/v1/agents/cancel-all
func (h *Handlers) CancelAllAgents(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength > 0 {
		var ok bool
		if req, ok = readJSON[cancelRequest](w, r); !ok {
			return
		}
	}

	n := h.coord.CancelAllAgents(r.Context(), req.Reason)
	writeJSON(w, http.StatusOK, map[string]int{"cancelled": n})
}

// ListConflicts returns every detected conflict with its resolution.
// GET /api/v1/conflicts
func (h *Handlers) ListConflicts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.resolver.ListConflicts())
}

// ListAgentEvents returns the audit trail for one agent.
// GET /api/v1/agents/{id}/events
func (h *Handlers) ListAgentEvents(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, err := h.coord.GetAgent(id); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}

	key := "events:agent:" + id
	if data, ok := h.cacheGet(r.Context(), key); ok {
		writeRawJSON(w, data)
		return
	}

	evs, err := h.loadAgentEvents(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	h.writeCached(w, r.Context(), key, evs)
}

// ListRecentEvents returns the most recent audit events across all agents.
// GET /api/v1/events?limit=N
func (h *Handlers) ListRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	if h.events == nil {
		writeJSON(w, http.StatusOK, []event.CoordinatorEvent{})
		return
	}

	key := fmt.Sprintf("events:recent:%d", limit)
	if data, ok := h.cacheGet(r.Context(), key); ok {
		writeRawJSON(w, data)
		return
	}

	evs, err := h.events.LoadRecent(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err, "events not found")
		return
	}
	if evs == nil {
		evs = []event.CoordinatorEvent{}
	}
	h.writeCached(w, r.Context(), key, evs)
}

// Health reports liveness plus queue connectivity.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{"status": "ok"}
	if h.queue != nil {
		status["nats_connected"] = h.queue.IsConnected()
	}
	writeJSON(w, http.StatusOK, status)
}

// loadAgentEvents prefers the persistent store, falling back to the
// in-memory log when no store is wired.
func (h *Handlers) loadAgentEvents(ctx context.Context, agentID string) ([]event.CoordinatorEvent, error) {
	if h.events != nil {
		evs, err := h.events.LoadByAgent(ctx, agentID)
		if err != nil {
			return nil, err
		}
		if len(evs) > 0 {
			return evs, nil
		}
	}
	evs := h.coord.ListAgentEvents(agentID)
	if evs == nil {
		evs = []event.CoordinatorEvent{}
	}
	return evs, nil
}

func (h *Handlers) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	data, ok, err := h.cache.Get(ctx, key)
	return data, err == nil && ok
}

// writeCached serializes data, stores it under key, and writes the response.
func (h *Handlers) writeCached(w http.ResponseWriter, ctx context.Context, key string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if h.cache != nil {
		_ = h.cache.Set(ctx, key, raw, h.cacheTTL)
	}
	writeRawJSON(w, raw)
}

func writeRawJSON(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
