package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Strob0t/CodeSwarm/internal/domain"
	"github.com/Strob0t/CodeSwarm/internal/domain/agent"
	"github.com/Strob0t/CodeSwarm/internal/domain/event"
	"github.com/Strob0t/CodeSwarm/internal/port/messagequeue"
)

// StartAgent dispatches a pending instance to a worker. It creates the
// instance's access scope, flips it to running, and publishes the spawn
// message on the worker queue.
func (c *Coordinator) StartAgent(ctx context.Context, id string) error {
	c.mu.Lock()
	inst, ok := c.instances[id]
	if !ok {
		c.mu.Unlock()
		return domain.ErrNotFound
	}
	if inst.Status != agent.StatusPending {
		c.mu.Unlock()
		return fmt.Errorf("start agent %s in status %s: %w", id, inst.Status, domain.ErrInvalidTransition)
	}
	inst.Status = agent.StatusRunning
	cfg := inst.Config
	def := inst.Definition
	c.mu.Unlock()

	if c.scopes != nil {
		c.scopes.CreateScope(id, &cfg)
	}

	c.publishJSON(ctx, messagequeue.SubjectAgentSpawn, messagequeue.AgentSpawnPayload{
		AgentID:      id,
		AgentName:    def.Name,
		Task:         cfg.Task,
		SystemPrompt: effectivePrompt(def, &cfg),
		Model:        def.Model,
		Tools:        effectiveTools(def, &cfg),
		ContextFiles: cfg.ContextFiles,
		TimeoutMS:    cfg.TimeoutMS,
		WorkingDir:   cfg.WorkingDir,
	})

	c.appendEvent(ctx, event.TypeAgentStarted, id, map[string]string{
		"agent_name": def.Name,
		"task":       cfg.Task,
	})

	slog.Info("agent started", "agent_id", id, "agent_name", def.Name)
	return nil
}

func effectivePrompt(def *agent.Definition, cfg *agent.SpawnConfig) string {
	if cfg.SystemPromptOverride != "" {
		return cfg.SystemPromptOverride
	}
	return def.SystemPrompt
}

func effectiveTools(def *agent.Definition, cfg *agent.SpawnConfig) []string {
	if len(cfg.AllowedTools) > 0 {
		return cfg.AllowedTools
	}
	return def.Tools
}

// PauseAgentForConflict moves a running instance into waiting_conflict while
// a conflict on path is resolved. Pausing an instance that is not running is
// an invalid transition.
func (c *Coordinator) PauseAgentForConflict(ctx context.Context, id, path string) error {
	c.mu.Lock()
	inst, ok := c.instances[id]
	if !ok {
		c.mu.Unlock()
		return domain.ErrNotFound
	}
	if inst.Status != agent.StatusRunning {
		c.mu.Unlock()
		return fmt.Errorf("pause agent %s in status %s: %w", id, inst.Status, domain.ErrInvalidTransition)
	}
	inst.Status = agent.StatusWaitingConflict
	c.mu.Unlock()

	slog.Info("agent paused for conflict", "agent_id", id, "path", path)
	return nil
}

// ResumeAgent returns a conflict-paused instance to running and notifies the
// worker. Resuming an instance in any other status, terminal ones included,
// is a no-op: a resume message racing a cancellation must not revive the
// cancelled agent.
func (c *Coordinator) ResumeAgent(ctx context.Context, id, path string) error {
	c.mu.Lock()
	inst, ok := c.instances[id]
	if !ok {
		c.mu.Unlock()
		return domain.ErrNotFound
	}
	if inst.Status != agent.StatusWaitingConflict {
		c.mu.Unlock()
		return nil
	}
	inst.Status = agent.StatusRunning
	c.mu.Unlock()

	c.publishJSON(ctx, messagequeue.SubjectAgentResume, messagequeue.AgentResumePayload{
		AgentID: id,
		Path:    path,
	})

	slog.Info("agent resumed", "agent_id", id, "path", path)
	return nil
}

// CompleteAgent records an execution result and moves the instance to
// completed or error. The result's modified files are merged into the
// instance's monotonic modifiedFiles list, the instance's locks and scope
// are released, and an agent.completed or agent.error event is appended.
func (c *Coordinator) CompleteAgent(ctx context.Context, id string, result *agent.ExecutionResult) error {
	c.mu.Lock()
	inst, ok := c.instances[id]
	if !ok {
		c.mu.Unlock()
		return domain.ErrNotFound
	}
	if inst.Status.Terminal() {
		c.mu.Unlock()
		return fmt.Errorf("complete agent %s in status %s: %w", id, inst.Status, domain.ErrInvalidTransition)
	}

	now := time.Now()
	inst.CompletedAt = &now
	inst.Result = result
	if result.Success {
		inst.Status = agent.StatusCompleted
	} else {
		inst.Status = agent.StatusError
		inst.Error = result.Error
	}
	inst.ModifiedFiles = mergeFiles(inst.ModifiedFiles, result.ModifiedFiles)
	if c.scopes != nil {
		inst.ModifiedFiles = mergeFiles(inst.ModifiedFiles, c.scopes.GetModifiedFiles(id))
	}
	modified := len(inst.ModifiedFiles)
	duration := now.Sub(inst.StartedAt)
	c.mu.Unlock()

	if c.scopes != nil {
		c.scopes.CleanupScope(ctx, id)
	}

	evType := event.TypeAgentCompleted
	if !result.Success {
		evType = event.TypeAgentError
	}
	c.appendEvent(ctx, evType, id, map[string]string{
		"success":     strconv.FormatBool(result.Success),
		"error":       result.Error,
		"duration_ms": strconv.FormatInt(result.DurationMS, 10),
	})

	if c.metrics != nil {
		if result.Success {
			c.metrics.AgentsCompleted.Add(ctx, 1)
		} else {
			c.metrics.AgentsFailed.Add(ctx, 1)
		}
		c.metrics.AgentDuration.Record(ctx, duration.Seconds())
	}

	slog.Info("agent completed", "agent_id", id, "success", result.Success,
		"modified_files", modified)

	c.maybeExecutionCompleted(ctx)
	return nil
}

// CancelAgent terminally cancels an instance. Terminal instances are left
// untouched. The instance's locks are released synchronously before
// returning so a waiter can acquire them immediately, and modifiedFiles and
// the event log are preserved for audit. If reason is empty it defaults to
// "cancelled by user".
func (c *Coordinator) CancelAgent(ctx context.Context, id, reason string) error {
	if reason == "" {
		reason = "cancelled by user"
	}

	c.mu.Lock()
	inst, ok := c.instances[id]
	if !ok {
		c.mu.Unlock()
		return domain.ErrNotFound
	}
	if inst.Status.Terminal() {
		c.mu.Unlock()
		return nil
	}
	now := time.Now()
	inst.Status = agent.StatusCancelled
	inst.CompletedAt = &now
	inst.Error = reason
	if c.scopes != nil {
		inst.ModifiedFiles = mergeFiles(inst.ModifiedFiles, c.scopes.GetModifiedFiles(id))
	}
	c.mu.Unlock()

	if c.scopes != nil {
		c.scopes.CleanupScope(ctx, id)
	}

	c.publishJSON(ctx, messagequeue.SubjectAgentCancel, messagequeue.AgentCancelPayload{
		AgentID: id,
		Reason:  reason,
	})

	if c.metrics != nil {
		c.metrics.AgentsCancelled.Add(ctx, 1)
	}

	slog.Info("agent cancelled", "agent_id", id, "reason", reason)

	c.maybeExecutionCompleted(ctx)
	return nil
}

// CancelAllAgents cancels every running instance and every instance paused
// for a conflict, so no waiter is orphaned. Pending instances are left
// untouched: they hold no locks and have not been dispatched. If reason is
// empty it defaults to "execution aborted". Returns the number of instances
// cancelled.
func (c *Coordinator) CancelAllAgents(ctx context.Context, reason string) int {
	if reason == "" {
		reason = "execution aborted"
	}

	c.mu.Lock()
	var ids []string
	for id, inst := range c.instances {
		if inst.Status == agent.StatusRunning || inst.Status == agent.StatusWaitingConflict {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.CancelAgent(ctx, id, reason); err != nil {
			slog.Error("cancel agent", "agent_id", id, "error", err)
		}
	}
	return len(ids)
}

// maybeExecutionCompleted appends an execution.completed event once no
// instance remains running or waiting.
func (c *Coordinator) maybeExecutionCompleted(ctx context.Context) {
	c.mu.Lock()
	active := 0
	total := len(c.instances)
	succeeded := 0
	for _, inst := range c.instances {
		switch inst.Status {
		case agent.StatusRunning, agent.StatusWaitingConflict, agent.StatusPending:
			active++
		case agent.StatusCompleted:
			succeeded++
		}
	}
	c.mu.Unlock()

	if active > 0 || total == 0 {
		return
	}

	c.appendEvent(ctx, event.TypeExecutionCompleted, "", map[string]string{
		"agents":    strconv.Itoa(total),
		"succeeded": strconv.Itoa(succeeded),
	})
}

// mergeFiles unions b into a preserving order and dropping duplicates.
func mergeFiles(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	for _, f := range a {
		seen[f] = struct{}{}
	}
	out := a
	for _, f := range b {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
