package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	csotel "github.com/Strob0t/CodeSwarm/internal/adapter/otel"
	"github.com/Strob0t/CodeSwarm/internal/domain/agent"
	"github.com/Strob0t/CodeSwarm/internal/domain/conflict"
	"github.com/Strob0t/CodeSwarm/internal/domain/event"
	"github.com/Strob0t/CodeSwarm/internal/workspace"
)

// Merger combines the contested file state of two or more agents into a
// single merged content. Used by the merge-results strategy; the default
// coordinator wires no merger and records the resolution without content.
type Merger interface {
	Merge(ctx context.Context, path string, agentIDs []string) (string, error)
}

// ResolverService applies the configured resolution strategy whenever two
// agents collide on the same file. It records every conflict and its
// resolution, and owns the waiter queue that the serialize strategy uses
// to resume paused agents in arrival order.
type ResolverService struct {
	mu        sync.Mutex
	conflicts []*conflict.FileConflict
	waiters   map[string][]string // path → paused agent IDs, FIFO

	strategy     conflict.Strategy
	coord        *Coordinator
	scopes       *ScopeService
	merger       Merger
	copies       *workspace.CopyPool
	isolationDir string
	metrics      *csotel.Metrics
}

// NewResolverService creates a resolver applying the given strategy.
func NewResolverService(
	strategy conflict.Strategy,
	coord *Coordinator,
	scopes *ScopeService,
	copies *workspace.CopyPool,
	isolationDir string,
) *ResolverService {
	return &ResolverService{
		waiters:      make(map[string][]string),
		strategy:     strategy,
		coord:        coord,
		scopes:       scopes,
		copies:       copies,
		isolationDir: isolationDir,
	}
}

// SetMerger wires the content merger used by the merge-results strategy.
func (r *ResolverService) SetMerger(m Merger) { r.merger = m }

// SetMetrics wires the conflict metric instruments.
func (r *ResolverService) SetMetrics(m *csotel.Metrics) { r.metrics = m }

// ListConflicts returns every conflict detected so far, resolved or not.
func (r *ResolverService) ListConflicts() []*conflict.FileConflict {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*conflict.FileConflict, len(r.conflicts))
	copy(out, r.conflicts)
	return out
}

// ResolveContention handles a contested lock: holderID already owns path and
// requesterID just failed to acquire it. A FileConflict is recorded, the
// configured strategy is applied, and the decision for the requester is
// returned.
func (r *ResolverService) ResolveContention(ctx context.Context, path, holderID, requesterID string) (AccessDecision, error) {
	ctx, span := csotel.StartResolveSpan(ctx, path, string(r.strategy))
	defer span.End()

	fc := &conflict.FileConflict{
		ID:         uuid.NewString(),
		Path:       path,
		AgentIDs:   []string{holderID, requesterID},
		DetectedAt: time.Now(),
	}

	r.mu.Lock()
	r.conflicts = append(r.conflicts, fc)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ConflictsDetected.Add(ctx, 1)
	}
	r.coord.appendEvent(ctx, event.TypeConflictDetected, requesterID, map[string]string{
		"conflict_id": fc.ID,
		"path":        path,
		"holder":      holderID,
		"strategy":    string(r.strategy),
	})

	slog.Info("conflict detected", "conflict_id", fc.ID, "path", path,
		"holder", holderID, "requester", requesterID, "strategy", r.strategy)

	var (
		decision AccessDecision
		err      error
	)
	switch r.strategy {
	case conflict.StrategyAbortNewer:
		decision, err = r.resolveAbortNewer(ctx, fc, holderID, requesterID)
	case conflict.StrategyMergeResults:
		decision, err = r.resolveMergeResults(ctx, fc, holderID, requesterID)
	case conflict.StrategyIsolated:
		decision, err = r.resolveIsolated(ctx, fc, holderID, requesterID)
	default:
		decision, err = r.resolveSerialize(ctx, fc, holderID, requesterID)
	}
	if err != nil {
		return AccessDecision{}, err
	}
	return decision, nil
}

// resolveSerialize pauses the requester behind the holder. The requester is
// resumed, in arrival order, when the contested lock is released. The pause
// happens before the enqueue so a release arriving in between always finds
// the waiter in a resumable state.
func (r *ResolverService) resolveSerialize(ctx context.Context, fc *conflict.FileConflict, holderID, requesterID string) (AccessDecision, error) {
	if err := r.coord.PauseAgentForConflict(ctx, requesterID, fc.Path); err != nil {
		slog.Warn("pause for conflict", "agent_id", requesterID, "error", err)
	}

	r.mu.Lock()
	r.waiters[fc.Path] = append(r.waiters[fc.Path], requesterID)
	r.mu.Unlock()

	// The holder may have released between the failed acquisition and the
	// enqueue; that release saw an empty waiter queue, so nothing would ever
	// wake the requester. Re-checking here closes the window: either the
	// lock is still held and the release-side handover sees the queued
	// waiter, or it is free and the requester takes it now.
	if r.scopes.acquireDirect(requesterID, fc.Path) {
		r.removeWaiter(fc.Path, requesterID)
		if err := r.coord.ResumeAgent(ctx, requesterID, fc.Path); err != nil {
			slog.Error("resume after reclaimed lock", "agent_id", requesterID, "path", fc.Path, "error", err)
		}
		r.recordResolution(ctx, fc, &conflict.ResolutionResult{
			Strategy:       conflict.StrategySerialize,
			WinningAgentID: requesterID,
			ResolvedAt:     time.Now(),
		})
		return AccessDecision{Granted: true, Conflict: true, Path: fc.Path}, nil
	}

	r.recordResolution(ctx, fc, &conflict.ResolutionResult{
		Strategy:       conflict.StrategySerialize,
		WinningAgentID: holderID,
		ResolvedAt:     time.Now(),
	})

	return AccessDecision{
		Granted:  false,
		Conflict: true,
		Reason:   "file locked by another agent",
		Path:     fc.Path,
	}, nil
}

// removeWaiter drops agentID from the waiter queue for path only.
func (r *ResolverService) removeWaiter(path, agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	queue := r.waiters[path]
	kept := queue[:0]
	for _, id := range queue {
		if id != agentID {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		delete(r.waiters, path)
	} else {
		r.waiters[path] = kept
	}
}

// resolveAbortNewer cancels whichever of the two agents started later.
// When the holder is the newer one, its locks are released synchronously by
// the cancellation, so the requester acquires the freed lock immediately.
func (r *ResolverService) resolveAbortNewer(ctx context.Context, fc *conflict.FileConflict, holderID, requesterID string) (AccessDecision, error) {
	holder, err := r.coord.GetAgent(holderID)
	if err != nil {
		return AccessDecision{}, fmt.Errorf("resolve conflict %s: %w", fc.ID, err)
	}
	requester, err := r.coord.GetAgent(requesterID)
	if err != nil {
		return AccessDecision{}, fmt.Errorf("resolve conflict %s: %w", fc.ID, err)
	}

	loser, winner := requester, holder
	if holder.StartedAt.After(requester.StartedAt) {
		loser, winner = holder, requester
	}

	if err := r.coord.CancelAgent(ctx, loser.ID, "conflict: superseded"); err != nil {
		return AccessDecision{}, fmt.Errorf("abort agent %s: %w", loser.ID, err)
	}

	r.recordResolution(ctx, fc, &conflict.ResolutionResult{
		Strategy:       conflict.StrategyAbortNewer,
		WinningAgentID: winner.ID,
		ResolvedAt:     time.Now(),
	})

	if loser.ID == requesterID {
		return AccessDecision{
			Granted:  false,
			Conflict: true,
			Reason:   "conflict: superseded",
			Path:     fc.Path,
		}, nil
	}

	if !r.scopes.acquireDirect(requesterID, fc.Path) {
		return AccessDecision{
			Granted:  false,
			Conflict: true,
			Reason:   "could not acquire file lock",
			Path:     fc.Path,
		}, nil
	}
	return AccessDecision{Granted: true, Conflict: true, Path: fc.Path}, nil
}

// resolveMergeResults lets both agents proceed against the same path. The
// wired merger, when present, produces the merged content recorded on the
// resolution; reconciling the working tree with it is the caller's job.
func (r *ResolverService) resolveMergeResults(ctx context.Context, fc *conflict.FileConflict, holderID, requesterID string) (AccessDecision, error) {
	res := &conflict.ResolutionResult{
		Strategy:   conflict.StrategyMergeResults,
		ResolvedAt: time.Now(),
	}
	if r.merger != nil {
		merged, err := r.merger.Merge(ctx, fc.Path, fc.AgentIDs)
		if err != nil {
			slog.Error("merge contested file", "conflict_id", fc.ID, "path", fc.Path, "error", err)
		} else {
			res.MergedContent = merged
		}
	}
	r.recordResolution(ctx, fc, res)

	return AccessDecision{Granted: true, Conflict: true, Path: fc.Path}, nil
}

// resolveIsolated redirects the requester to a private copy of the
// contested file. The holder keeps the real file; reconciliation of the
// copies happens outside the coordinator.
func (r *ResolverService) resolveIsolated(ctx context.Context, fc *conflict.FileConflict, holderID, requesterID string) (AccessDecision, error) {
	overlay := filepath.Join(r.isolationDir, requesterID, fc.Path)
	if r.copies != nil {
		if err := r.copies.CopyFile(ctx, fc.Path, overlay); err != nil {
			return AccessDecision{}, fmt.Errorf("isolate %s for agent %s: %w", fc.Path, requesterID, err)
		}
	}
	r.scopes.setOverlay(requesterID, fc.Path, overlay)

	r.recordResolution(ctx, fc, &conflict.ResolutionResult{
		Strategy:       conflict.StrategyIsolated,
		WinningAgentID: holderID,
		ResolvedAt:     time.Now(),
	})

	return AccessDecision{Granted: true, Conflict: true, Path: overlay}, nil
}

func (r *ResolverService) recordResolution(ctx context.Context, fc *conflict.FileConflict, res *conflict.ResolutionResult) {
	r.mu.Lock()
	fc.Resolution = res
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ConflictsResolved.Add(ctx, 1)
	}
	r.coord.appendEvent(ctx, event.TypeConflictResolved, res.WinningAgentID, map[string]string{
		"conflict_id": fc.ID,
		"path":        fc.Path,
		"strategy":    string(res.Strategy),
		"winner":      res.WinningAgentID,
	})
}

// OnLockReleased hands a freed path to the next serialized waiter. Waiters
// that reached a terminal status while paused are skipped; the survivor
// acquires the lock and is resumed.
func (r *ResolverService) OnLockReleased(ctx context.Context, path string) {
	for {
		r.mu.Lock()
		queue := r.waiters[path]
		if len(queue) == 0 {
			delete(r.waiters, path)
			r.mu.Unlock()
			return
		}
		next := queue[0]
		r.waiters[path] = queue[1:]
		r.mu.Unlock()

		inst, err := r.coord.GetAgent(next)
		if err != nil || inst.Status != agent.StatusWaitingConflict {
			continue
		}
		if !r.scopes.acquireDirect(next, path) {
			// Lock grabbed by someone else in between; the waiter stays
			// queued for the next release.
			r.mu.Lock()
			r.waiters[path] = append([]string{next}, r.waiters[path]...)
			r.mu.Unlock()
			return
		}
		if err := r.coord.ResumeAgent(ctx, next, path); err != nil {
			slog.Error("resume serialized agent", "agent_id", next, "path", path, "error", err)
		}
		return
	}
}

// DropWaiter removes agentID from every waiter queue. Called when the agent
// reaches a terminal status so a freed lock is never handed to a dead agent.
func (r *ResolverService) DropWaiter(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for path, queue := range r.waiters {
		kept := queue[:0]
		for _, id := range queue {
			if id != agentID {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(r.waiters, path)
		} else {
			r.waiters[path] = kept
		}
	}
}
