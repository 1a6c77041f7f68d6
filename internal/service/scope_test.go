package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Strob0t/CodeSwarm/internal/domain"
	"github.com/Strob0t/CodeSwarm/internal/domain/agent"
	"github.com/Strob0t/CodeSwarm/internal/domain/conflict"
)

func TestRequestWriteAccess_NoScope(t *testing.T) {
	env := newTestEnv(t, conflict.StrategySerialize, 5)

	_, err := env.scopes.RequestWriteAccess(context.Background(), "ghost", "main.go")
	if !errors.Is(err, domain.ErrNoScope) {
		t.Fatalf("expected ErrNoScope, got %v", err)
	}
}

func TestRequestWriteAccess_DeniedPathWins(t *testing.T) {
	env := newTestEnv(t, conflict.StrategySerialize, 5)
	ctx := context.Background()

	inst, err := env.coord.CreateAgentInstance(ctx, &agent.SpawnConfig{
		AgentName:    "coder",
		Task:         "task",
		AllowedPaths: []string{"src/"},
		DeniedPaths:  []string{"src/secrets/"},
	})
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}
	if err := env.coord.StartAgent(ctx, inst.ID); err != nil {
		t.Fatalf("start agent: %v", err)
	}

	// A path under both an allowed and a denied prefix is denied.
	d, err := env.scopes.RequestWriteAccess(ctx, inst.ID, "src/secrets/key.pem")
	if err != nil {
		t.Fatalf("RequestWriteAccess failed: %v", err)
	}
	if d.Granted {
		t.Fatal("expected denial for path under denied prefix")
	}
	if d.Reason != "path not allowed" {
		t.Fatalf("expected reason %q, got %q", "path not allowed", d.Reason)
	}

	// Outside the allowed prefixes: denied.
	d, _ = env.scopes.RequestWriteAccess(ctx, inst.ID, "docs/readme.md")
	if d.Granted {
		t.Fatal("expected denial outside allowed prefixes")
	}

	// Inside allowed, outside denied: granted.
	d, _ = env.scopes.RequestWriteAccess(ctx, inst.ID, "src/main.go")
	if !d.Granted {
		t.Fatalf("expected grant, got %+v", d)
	}
}

func TestRequestWriteAccess_EmptyAllowedMeansAllowAll(t *testing.T) {
	env := newTestEnv(t, conflict.StrategySerialize, 5)
	ctx := context.Background()
	id := env.spawnRunning(t, "task")

	d, err := env.scopes.RequestWriteAccess(ctx, id, "anything/anywhere.go")
	if err != nil {
		t.Fatalf("RequestWriteAccess failed: %v", err)
	}
	if !d.Granted {
		t.Fatalf("expected grant with empty allowed list, got %+v", d)
	}
}

func TestRequestWriteAccess_Reentrant(t *testing.T) {
	env := newTestEnv(t, conflict.StrategySerialize, 5)
	ctx := context.Background()
	id := env.spawnRunning(t, "task")

	for i := 0; i < 2; i++ {
		d, err := env.scopes.RequestWriteAccess(ctx, id, "main.go")
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if !d.Granted {
			t.Fatalf("expected repeat grant for holder, got %+v", d)
		}
	}
	if n := len(env.resolver.ListConflicts()); n != 0 {
		t.Fatalf("re-acquisition by the holder is no conflict, got %d", n)
	}
}

func TestRequestWriteAccess_ConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t, conflict.StrategySerialize, 8)
	ctx := context.Background()

	ids := make([]string, 6)
	for i := range ids {
		ids[i] = env.spawnRunning(t, "task")
	}

	var wg sync.WaitGroup
	granted := make(chan string, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			d, err := env.scopes.RequestWriteAccess(ctx, id, "contested.go")
			if err == nil && d.Granted {
				granted <- id
			}
		}(id)
	}
	wg.Wait()
	close(granted)

	var winners []string
	for id := range granted {
		winners = append(winners, id)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one grant, got %d", len(winners))
	}
}

func TestRecordModification_SurvivesRelease(t *testing.T) {
	env := newTestEnv(t, conflict.StrategySerialize, 5)
	ctx := context.Background()
	id := env.spawnRunning(t, "task")

	if _, err := env.scopes.RequestWriteAccess(ctx, id, "main.go"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := env.scopes.RecordModification(id, "main.go"); err != nil {
		t.Fatalf("RecordModification failed: %v", err)
	}
	// Idempotent on repeats.
	if err := env.scopes.RecordModification(id, "main.go"); err != nil {
		t.Fatalf("repeat RecordModification failed: %v", err)
	}

	env.scopes.ReleaseWriteAccess(ctx, id, "main.go")

	files := env.scopes.GetModifiedFiles(id)
	if len(files) != 1 || files[0] != "main.go" {
		t.Fatalf("expected [main.go] after release, got %v", files)
	}
}

func TestCompleteAgent_CarriesScopeModifications(t *testing.T) {
	env := newTestEnv(t, conflict.StrategySerialize, 5)
	ctx := context.Background()
	id := env.spawnRunning(t, "task")

	if _, err := env.scopes.RequestWriteAccess(ctx, id, "a.go"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := env.scopes.RecordModification(id, "a.go"); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := env.coord.CompleteAgent(ctx, id, &agent.ExecutionResult{Success: true, ModifiedFiles: []string{"b.go"}}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	inst, _ := env.coord.GetAgent(id)
	if len(inst.ModifiedFiles) != 2 {
		t.Fatalf("expected scope and result files merged, got %v", inst.ModifiedFiles)
	}
}

func TestCleanupScope_Idempotent(t *testing.T) {
	env := newTestEnv(t, conflict.StrategySerialize, 5)
	ctx := context.Background()
	id := env.spawnRunning(t, "task")

	if _, err := env.scopes.RequestWriteAccess(ctx, id, "main.go"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	env.scopes.CleanupScope(ctx, id)
	env.scopes.CleanupScope(ctx, id) // second cleanup is the common case

	if _, err := env.scopes.GetScope(id); !errors.Is(err, domain.ErrNoScope) {
		t.Fatalf("expected scope destroyed, got %v", err)
	}
}

func TestIsPathAllowed(t *testing.T) {
	env := newTestEnv(t, conflict.StrategySerialize, 5)
	ctx := context.Background()

	inst, err := env.coord.CreateAgentInstance(ctx, &agent.SpawnConfig{
		AgentName:   "coder",
		Task:        "task",
		DeniedPaths: []string{"vendor/"},
	})
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}
	if err := env.coord.StartAgent(ctx, inst.ID); err != nil {
		t.Fatalf("start agent: %v", err)
	}

	ok, err := env.scopes.IsPathAllowed(inst.ID, "vendor/lib.go")
	if err != nil {
		t.Fatalf("IsPathAllowed failed: %v", err)
	}
	if ok {
		t.Fatal("expected denied prefix to deny")
	}
	ok, _ = env.scopes.IsPathAllowed(inst.ID, "cmd/main.go")
	if !ok {
		t.Fatal("expected allow outside denied prefixes")
	}
}
