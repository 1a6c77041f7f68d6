package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	csotel "github.com/Strob0t/CodeSwarm/internal/adapter/otel"
	"github.com/Strob0t/CodeSwarm/internal/domain"
	"github.com/Strob0t/CodeSwarm/internal/domain/agent"
)

// ValidateSpawnConfig checks a spawn request without mutating any state.
// All failures are accumulated so callers can report every problem at once.
func (c *Coordinator) ValidateSpawnConfig(cfg *agent.SpawnConfig) agent.ValidationResult {
	return agent.ValidateSpawn(cfg, c.defs, c.cfg.DefaultTimeoutMS)
}

// CreateAgentInstance admits a spawn request into the registry. The agent
// template must exist and the count of running instances must be below the
// concurrency ceiling; at capacity the request is rejected, never queued.
// The instance is registered in status pending and is not yet dispatched.
func (c *Coordinator) CreateAgentInstance(ctx context.Context, cfg *agent.SpawnConfig) (*agent.Instance, error) {
	ctx, span := csotel.StartSpawnSpan(ctx, cfg.AgentName)
	defer span.End()

	def, ok := c.defs.Get(cfg.AgentName)
	if !ok {
		return nil, fmt.Errorf("resolve agent template %q: %w", cfg.AgentName, domain.ErrAgentNotFound)
	}

	if cfg.TimeoutMS == 0 {
		cfg.TimeoutMS = c.cfg.DefaultTimeoutMS
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	running := 0
	for _, inst := range c.instances {
		if inst.Status == agent.StatusRunning {
			running++
		}
	}
	if running >= c.cfg.MaxConcurrent {
		if c.metrics != nil {
			c.metrics.SpawnsRejected.Add(ctx, 1)
		}
		return nil, fmt.Errorf("%d agents running, limit %d: %w",
			running, c.cfg.MaxConcurrent, domain.ErrMaxConcurrentExceeded)
	}

	inst := &agent.Instance{
		ID:         uuid.NewString(),
		Definition: def,
		Config:     *cfg,
		Status:     agent.StatusPending,
		StartedAt:  time.Now(),
	}
	c.instances[inst.ID] = inst
	if c.metrics != nil {
		c.metrics.AgentsSpawned.Add(ctx, 1)
	}
	return inst.Clone(), nil
}
