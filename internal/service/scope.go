package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	csotel "github.com/Strob0t/CodeSwarm/internal/adapter/otel"
	"github.com/Strob0t/CodeSwarm/internal/domain"
	"github.com/Strob0t/CodeSwarm/internal/domain/agent"
	"github.com/Strob0t/CodeSwarm/internal/port/locktable"
)

// AccessDecision is the outcome of a write-access request. Path is the
// path the agent must actually write: it differs from the requested path
// only when the isolated strategy redirected the agent to a private copy.
type AccessDecision struct {
	Granted  bool   `json:"granted"`
	Conflict bool   `json:"conflict,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Path     string `json:"path"`
}

// ScopeService owns access scopes and mediates every write an agent makes.
// Lock acquisition is a single atomic insert-if-absent against the shared
// lock table, so two concurrent requests for the same path can never both
// be granted.
type ScopeService struct {
	mu     sync.Mutex
	scopes map[string]*agent.AccessScope

	locks    locktable.Table
	coord    *Coordinator
	resolver *ResolverService
	metrics  *csotel.Metrics
}

// NewScopeService creates a ScopeService over the given lock table.
func NewScopeService(locks locktable.Table, coord *Coordinator) *ScopeService {
	return &ScopeService{
		scopes: make(map[string]*agent.AccessScope),
		locks:  locks,
		coord:  coord,
	}
}

// SetResolver wires the conflict resolver consulted when a lock is contested.
func (s *ScopeService) SetResolver(r *ResolverService) { s.resolver = r }

// SetMetrics wires the scope metric instruments.
func (s *ScopeService) SetMetrics(m *csotel.Metrics) { s.metrics = m }

// CreateScope registers an access scope for a starting instance. Creating a
// scope that already exists replaces it.
func (s *ScopeService) CreateScope(agentID string, cfg *agent.SpawnConfig) *agent.AccessScope {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope := agent.NewAccessScope(agentID, cfg)
	s.scopes[agentID] = scope
	return scope
}

// GetScope returns the scope for agentID.
func (s *ScopeService) GetScope(agentID string) (*agent.AccessScope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope, ok := s.scopes[agentID]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", agentID, domain.ErrNoScope)
	}
	return scope, nil
}

// IsPathAllowed reports whether agentID's scope permits access to path.
// Denied prefixes always win over allowed ones.
func (s *ScopeService) IsPathAllowed(agentID, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope, ok := s.scopes[agentID]
	if !ok {
		return false, fmt.Errorf("agent %s: %w", agentID, domain.ErrNoScope)
	}
	return scope.PathAllowed(path), nil
}

// RequestWriteAccess runs the full admission pipeline for one write: scope
// check, path rules, then atomic lock acquisition. On contention the
// conflict resolver decides the outcome; the decision reports whether the
// write may proceed and at which path.
func (s *ScopeService) RequestWriteAccess(ctx context.Context, agentID, path string) (AccessDecision, error) {
	ctx, span := csotel.StartWriteAccessSpan(ctx, agentID, path)
	defer span.End()

	s.mu.Lock()
	scope, ok := s.scopes[agentID]
	if !ok {
		s.mu.Unlock()
		return AccessDecision{}, fmt.Errorf("agent %s: %w", agentID, domain.ErrNoScope)
	}
	if !scope.PathAllowed(path) {
		s.mu.Unlock()
		s.denied(ctx)
		return AccessDecision{Granted: false, Reason: "path not allowed", Path: path}, nil
	}
	if overlay, ok := scope.Overlays[path]; ok {
		s.mu.Unlock()
		return AccessDecision{Granted: true, Conflict: true, Path: overlay}, nil
	}
	s.mu.Unlock()

	acquired, holder := s.locks.TryAcquire(path, agentID)
	if acquired {
		s.trackLock(agentID, path)
		return AccessDecision{Granted: true, Path: path}, nil
	}

	if s.resolver == nil {
		s.denied(ctx)
		return AccessDecision{Granted: false, Conflict: true, Reason: "file locked by another agent", Path: path}, nil
	}

	decision, err := s.resolver.ResolveContention(ctx, path, holder, agentID)
	if err != nil {
		return AccessDecision{}, err
	}
	if !decision.Granted {
		s.denied(ctx)
	}
	return decision, nil
}

// acquireDirect retries the atomic acquisition after the resolver has
// evicted the previous holder.
func (s *ScopeService) acquireDirect(agentID, path string) bool {
	acquired, _ := s.locks.TryAcquire(path, agentID)
	if acquired {
		s.trackLock(agentID, path)
	}
	return acquired
}

func (s *ScopeService) trackLock(agentID, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if scope, ok := s.scopes[agentID]; ok {
		scope.LockedFiles[path] = struct{}{}
	}
}

func (s *ScopeService) setOverlay(agentID, path, overlay string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if scope, ok := s.scopes[agentID]; ok {
		scope.Overlays[path] = overlay
	}
}

func (s *ScopeService) denied(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.WriteDenials.Add(ctx, 1)
	}
}

// RecordModification appends path to the scope's modified-files list.
// Idempotent on repeats; the list survives lock release and is only
// destroyed with the scope itself.
func (s *ScopeService) RecordModification(agentID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope, ok := s.scopes[agentID]
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, domain.ErrNoScope)
	}
	scope.RecordModification(path)
	return nil
}

// GetModifiedFiles returns the files agentID has modified so far. A missing
// scope yields an empty list.
func (s *ScopeService) GetModifiedFiles(agentID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope, ok := s.scopes[agentID]
	if !ok {
		return nil
	}
	out := make([]string, len(scope.ModifiedFiles))
	copy(out, scope.ModifiedFiles)
	return out
}

// ReleaseWriteAccess releases agentID's lock on path and wakes any agent
// serialized behind it. A release by a non-holder leaves the lock in place
// and triggers no handover.
func (s *ScopeService) ReleaseWriteAccess(ctx context.Context, agentID, path string) {
	s.locks.Release(path, agentID)

	s.mu.Lock()
	if scope, ok := s.scopes[agentID]; ok {
		delete(scope.LockedFiles, path)
	}
	s.mu.Unlock()

	if s.resolver != nil && s.locks.Owner(path) == "" {
		s.resolver.OnLockReleased(ctx, path)
	}
}

// CleanupScope releases every lock agentID holds, wakes serialized waiters,
// and destroys the scope. Safe to call on an agent with no scope; cleanup
// runs on every terminal transition so double cleanup is the common case.
func (s *ScopeService) CleanupScope(ctx context.Context, agentID string) {
	released := s.locks.ReleaseAll(agentID)

	s.mu.Lock()
	_, existed := s.scopes[agentID]
	delete(s.scopes, agentID)
	s.mu.Unlock()

	if s.resolver != nil {
		s.resolver.DropWaiter(agentID)
		for _, path := range released {
			s.resolver.OnLockReleased(ctx, path)
		}
	}

	if existed {
		slog.Debug("scope cleaned up", "agent_id", agentID, "released_locks", len(released))
	}
}
