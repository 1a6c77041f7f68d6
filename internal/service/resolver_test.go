package service_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Strob0t/CodeSwarm/internal/adapter/memlock"
	"github.com/Strob0t/CodeSwarm/internal/config"
	"github.com/Strob0t/CodeSwarm/internal/domain/agent"
	"github.com/Strob0t/CodeSwarm/internal/domain/conflict"
	"github.com/Strob0t/CodeSwarm/internal/domain/event"
	"github.com/Strob0t/CodeSwarm/internal/port/locktable"
	"github.com/Strob0t/CodeSwarm/internal/port/messagequeue"
	"github.com/Strob0t/CodeSwarm/internal/service"
	"github.com/Strob0t/CodeSwarm/internal/workspace"
)

func TestSerialize_PausesAndResumesLoser(t *testing.T) {
	env := newTestEnv(t, conflict.StrategySerialize, 5)
	ctx := context.Background()
	a := env.spawnRunning(t, "task a")
	b := env.spawnRunning(t, "task b")

	// A takes the lock; B collides and is paused behind it.
	if d, err := env.scopes.RequestWriteAccess(ctx, a, "shared.go"); err != nil || !d.Granted {
		t.Fatalf("expected grant for a, got %+v err=%v", d, err)
	}
	d, err := env.scopes.RequestWriteAccess(ctx, b, "shared.go")
	if err != nil {
		t.Fatalf("contested request failed: %v", err)
	}
	if d.Granted {
		t.Fatal("expected denial for b while a holds the lock")
	}
	if d.Reason != "file locked by another agent" {
		t.Fatalf("unexpected reason %q", d.Reason)
	}

	if inst, _ := env.coord.GetAgent(b); inst.Status != agent.StatusWaitingConflict {
		t.Fatalf("expected b waiting_conflict, got %s", inst.Status)
	}

	conflicts := env.resolver.ListConflicts()
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	if !conflicts[0].Resolved() {
		t.Fatal("expected conflict to carry a resolution")
	}
	if conflicts[0].Resolution.WinningAgentID != a {
		t.Fatalf("expected winner %s, got %s", a, conflicts[0].Resolution.WinningAgentID)
	}
	if env.es.countType(event.TypeConflictDetected) != 1 || env.es.countType(event.TypeConflictResolved) != 1 {
		t.Fatal("expected conflict.detected and conflict.resolved events")
	}

	// A releases: B acquires the lock and is resumed.
	env.scopes.ReleaseWriteAccess(ctx, a, "shared.go")

	if inst, _ := env.coord.GetAgent(b); inst.Status != agent.StatusRunning {
		t.Fatalf("expected b resumed, got %s", inst.Status)
	}
	if _, ok := env.queue.lastMessage(messagequeue.SubjectAgentResume); !ok {
		t.Fatal("expected resume message on the queue")
	}
	// B now owns the lock: a re-request by a third party collides with B.
	c := env.spawnRunning(t, "task c")
	d, _ = env.scopes.RequestWriteAccess(ctx, c, "shared.go")
	if d.Granted {
		t.Fatal("expected denial while b holds the handed-over lock")
	}
}

// releaseInWindowTable wraps a lock table and frees the holder's lock the
// instant an acquisition fails, simulating a release that lands between a
// failed attempt and the requester being queued behind the holder. The
// release bypasses ReleaseWriteAccess, so no handover notification fires.
type releaseInWindowTable struct {
	inner locktable.Table
	once  sync.Once
}

func (t *releaseInWindowTable) TryAcquire(path, agentID string) (bool, string) {
	acquired, holder := t.inner.TryAcquire(path, agentID)
	if !acquired {
		t.once.Do(func() { t.inner.Release(path, holder) })
	}
	return acquired, holder
}

func (t *releaseInWindowTable) Release(path, agentID string) { t.inner.Release(path, agentID) }
func (t *releaseInWindowTable) Owner(path string) string     { return t.inner.Owner(path) }
func (t *releaseInWindowTable) ReleaseAll(agentID string) []string {
	return t.inner.ReleaseAll(agentID)
}

func TestSerialize_ReleaseDuringEnqueueStillGrants(t *testing.T) {
	defs, err := agent.NewDefinitionSet([]agent.Definition{
		{Name: "coder", SystemPrompt: "You write code.", Model: "claude-sonnet"},
	})
	if err != nil {
		t.Fatalf("build definition set: %v", err)
	}
	cfg := &config.Coordinator{
		MaxConcurrent:    5,
		DefaultTimeoutMS: 300_000,
		ConflictStrategy: string(conflict.StrategySerialize),
		IsolationDir:     t.TempDir(),
	}

	table := &releaseInWindowTable{inner: memlock.New()}
	queue := &mockQueue{}
	coord := service.NewCoordinator(defs, cfg, queue, &mockBroadcaster{}, &mockEventStore{}, nil)
	scopes := service.NewScopeService(table, coord)
	resolver := service.NewResolverService(conflict.StrategySerialize, coord, scopes, workspace.NewCopyPool(2), cfg.IsolationDir)
	coord.SetScopes(scopes)
	scopes.SetResolver(resolver)
	env := &testEnv{coord: coord, scopes: scopes, resolver: resolver, queue: queue}

	ctx := context.Background()
	a := env.spawnRunning(t, "task a")
	b := env.spawnRunning(t, "task b")

	if d, err := env.scopes.RequestWriteAccess(ctx, a, "shared.go"); err != nil || !d.Granted {
		t.Fatalf("expected grant for a, got %+v err=%v", d, err)
	}

	// The lock frees up right after b's failed acquisition. No release
	// notification will ever arrive for b, so the contested request must
	// detect the free lock on its own instead of parking b forever.
	d, err := env.scopes.RequestWriteAccess(ctx, b, "shared.go")
	if err != nil {
		t.Fatalf("contested request failed: %v", err)
	}
	if !d.Granted {
		t.Fatalf("expected grant on the freed lock, got %+v", d)
	}
	if inst, _ := env.coord.GetAgent(b); inst.Status != agent.StatusRunning {
		t.Fatalf("expected b running after taking the freed lock, got %s", inst.Status)
	}
	if owner := table.Owner("shared.go"); owner != b {
		t.Fatalf("expected b to hold the lock, got %q", owner)
	}
}

func TestSerialize_SkipsCancelledWaiter(t *testing.T) {
	env := newTestEnv(t, conflict.StrategySerialize, 5)
	ctx := context.Background()
	a := env.spawnRunning(t, "task a")
	b := env.spawnRunning(t, "task b")

	if _, err := env.scopes.RequestWriteAccess(ctx, a, "shared.go"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := env.scopes.RequestWriteAccess(ctx, b, "shared.go"); err != nil {
		t.Fatalf("contested request: %v", err)
	}

	// The waiter dies before the lock frees up.
	if err := env.coord.CancelAgent(ctx, b, ""); err != nil {
		t.Fatalf("cancel waiter: %v", err)
	}
	env.scopes.ReleaseWriteAccess(ctx, a, "shared.go")

	if inst, _ := env.coord.GetAgent(b); inst.Status != agent.StatusCancelled {
		t.Fatalf("freed lock must not revive a cancelled waiter, got %s", inst.Status)
	}

	// The lock is genuinely free for the next agent.
	c := env.spawnRunning(t, "task c")
	d, err := env.scopes.RequestWriteAccess(ctx, c, "shared.go")
	if err != nil || !d.Granted {
		t.Fatalf("expected grant on freed lock, got %+v err=%v", d, err)
	}
}

func TestAbortNewer_RequesterIsNewer(t *testing.T) {
	env := newTestEnv(t, conflict.StrategyAbortNewer, 5)
	ctx := context.Background()
	a := env.spawnRunning(t, "task a") // older
	b := env.spawnRunning(t, "task b") // newer

	if _, err := env.scopes.RequestWriteAccess(ctx, a, "shared.go"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	d, err := env.scopes.RequestWriteAccess(ctx, b, "shared.go")
	if err != nil {
		t.Fatalf("contested request failed: %v", err)
	}
	if d.Granted {
		t.Fatal("expected denial for superseded requester")
	}
	if d.Reason != "conflict: superseded" {
		t.Fatalf("unexpected reason %q", d.Reason)
	}

	inst, _ := env.coord.GetAgent(b)
	if inst.Status != agent.StatusCancelled {
		t.Fatalf("expected newer agent cancelled, got %s", inst.Status)
	}
	if inst.Error != "conflict: superseded" {
		t.Fatalf("unexpected cancel reason %q", inst.Error)
	}
	// Holder keeps running and keeps the lock.
	if inst, _ := env.coord.GetAgent(a); inst.Status != agent.StatusRunning {
		t.Fatalf("expected holder unaffected, got %s", inst.Status)
	}
}

func TestAbortNewer_HolderIsNewer(t *testing.T) {
	env := newTestEnv(t, conflict.StrategyAbortNewer, 5)
	ctx := context.Background()
	a := env.spawnRunning(t, "task a") // older, will request second
	b := env.spawnRunning(t, "task b") // newer, takes the lock first

	// Force distinct start order: b started after a by construction.
	if _, err := env.scopes.RequestWriteAccess(ctx, b, "shared.go"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	d, err := env.scopes.RequestWriteAccess(ctx, a, "shared.go")
	if err != nil {
		t.Fatalf("contested request failed: %v", err)
	}
	if !d.Granted {
		t.Fatalf("expected older requester to win the lock, got %+v", d)
	}

	if inst, _ := env.coord.GetAgent(b); inst.Status != agent.StatusCancelled {
		t.Fatalf("expected newer holder cancelled, got %s", inst.Status)
	}
	if inst, _ := env.coord.GetAgent(a); inst.Status != agent.StatusRunning {
		t.Fatalf("expected requester still running, got %s", inst.Status)
	}

	conflicts := env.resolver.ListConflicts()
	if len(conflicts) != 1 || conflicts[0].Resolution.WinningAgentID != a {
		t.Fatalf("expected conflict resolved in favour of %s", a)
	}
}

func TestMergeResults_BothProceed(t *testing.T) {
	env := newTestEnv(t, conflict.StrategyMergeResults, 5)
	ctx := context.Background()
	a := env.spawnRunning(t, "task a")
	b := env.spawnRunning(t, "task b")

	env.resolver.SetMerger(mergerFunc(func(_ context.Context, path string, agentIDs []string) (string, error) {
		return "merged:" + path, nil
	}))

	if _, err := env.scopes.RequestWriteAccess(ctx, a, "shared.go"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	d, err := env.scopes.RequestWriteAccess(ctx, b, "shared.go")
	if err != nil {
		t.Fatalf("contested request failed: %v", err)
	}
	if !d.Granted || !d.Conflict {
		t.Fatalf("expected conflicted grant, got %+v", d)
	}

	// Neither agent is paused or cancelled.
	for _, id := range []string{a, b} {
		if inst, _ := env.coord.GetAgent(id); inst.Status != agent.StatusRunning {
			t.Fatalf("expected %s running, got %s", id, inst.Status)
		}
	}

	conflicts := env.resolver.ListConflicts()
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	if conflicts[0].Resolution.MergedContent != "merged:shared.go" {
		t.Fatalf("expected merged content recorded, got %q", conflicts[0].Resolution.MergedContent)
	}
}

func TestIsolated_RedirectsToPrivateCopy(t *testing.T) {
	env := newTestEnv(t, conflict.StrategyIsolated, 5)
	ctx := context.Background()
	a := env.spawnRunning(t, "task a")
	b := env.spawnRunning(t, "task b")

	dir := t.TempDir()
	contested := filepath.Join(dir, "shared.go")
	if err := os.WriteFile(contested, []byte("package shared\n"), 0o644); err != nil {
		t.Fatalf("write contested file: %v", err)
	}

	if _, err := env.scopes.RequestWriteAccess(ctx, a, contested); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	d, err := env.scopes.RequestWriteAccess(ctx, b, contested)
	if err != nil {
		t.Fatalf("contested request failed: %v", err)
	}
	if !d.Granted {
		t.Fatalf("expected grant on private copy, got %+v", d)
	}
	if d.Path == contested {
		t.Fatal("expected redirect away from the contested path")
	}
	if !strings.Contains(d.Path, b) {
		t.Fatalf("expected overlay path scoped to agent %s, got %q", b, d.Path)
	}

	data, err := os.ReadFile(d.Path)
	if err != nil {
		t.Fatalf("read private copy: %v", err)
	}
	if string(data) != "package shared\n" {
		t.Fatalf("expected copy of contested content, got %q", data)
	}

	// Repeated requests land on the same overlay without a new conflict.
	d2, err := env.scopes.RequestWriteAccess(ctx, b, contested)
	if err != nil {
		t.Fatalf("repeat request failed: %v", err)
	}
	if d2.Path != d.Path {
		t.Fatalf("expected stable overlay path, got %q and %q", d.Path, d2.Path)
	}
	if n := len(env.resolver.ListConflicts()); n != 1 {
		t.Fatalf("expected a single conflict, got %d", n)
	}
}

type mergerFunc func(ctx context.Context, path string, agentIDs []string) (string, error)

func (f mergerFunc) Merge(ctx context.Context, path string, agentIDs []string) (string, error) {
	return f(ctx, path, agentIDs)
}
