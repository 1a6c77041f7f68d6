package service_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/Strob0t/CodeSwarm/internal/domain/conflict"
	"github.com/Strob0t/CodeSwarm/internal/service"
)

type mockInnerExecutor struct {
	mu    sync.Mutex
	calls []innerCall
	out   string
}

type innerCall struct {
	AgentID string
	Tool    string
	Input   json.RawMessage
}

func (m *mockInnerExecutor) Execute(_ context.Context, agentID, tool string, input json.RawMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, innerCall{AgentID: agentID, Tool: tool, Input: input})
	return m.out, nil
}

func TestContextualExecutor_ReadToolPassesThrough(t *testing.T) {
	env := newTestEnv(t, conflict.StrategySerialize, 5)
	id := env.spawnRunning(t, "task")

	inner := &mockInnerExecutor{out: "file contents"}
	exec := service.NewContextualToolExecutor(inner, env.scopes, env.coord)

	out, err := exec.Execute(context.Background(), id, "read_file", json.RawMessage(`{"file_path":"main.go"}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out != "file contents" {
		t.Fatalf("unexpected output %q", out)
	}
	// Read tools never touch the lock table.
	if got := env.scopes.GetModifiedFiles(id); len(got) != 0 {
		t.Fatalf("expected no modifications recorded, got %v", got)
	}
}

func TestContextualExecutor_WriteToolRecordsModification(t *testing.T) {
	env := newTestEnv(t, conflict.StrategySerialize, 5)
	id := env.spawnRunning(t, "task")

	inner := &mockInnerExecutor{out: "ok"}
	exec := service.NewContextualToolExecutor(inner, env.scopes, env.coord)

	if _, err := exec.Execute(context.Background(), id, "write_file", json.RawMessage(`{"file_path":"main.go","content":"x"}`)); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	files := env.scopes.GetModifiedFiles(id)
	if len(files) != 1 || files[0] != "main.go" {
		t.Fatalf("expected [main.go], got %v", files)
	}
	inst, _ := env.coord.GetAgent(id)
	if inst.Conversation.Len() != 1 {
		t.Fatalf("expected tool-call record in conversation, got %d entries", inst.Conversation.Len())
	}
	if inst.Conversation.Messages[0].ToolName != "write_file" {
		t.Fatalf("unexpected tool name %q", inst.Conversation.Messages[0].ToolName)
	}
}

func TestContextualExecutor_DeniedWrite(t *testing.T) {
	env := newTestEnv(t, conflict.StrategySerialize, 5)
	a := env.spawnRunning(t, "task a")
	b := env.spawnRunning(t, "task b")

	inner := &mockInnerExecutor{out: "ok"}
	exec := service.NewContextualToolExecutor(inner, env.scopes, env.coord)
	ctx := context.Background()

	if _, err := exec.Execute(ctx, a, "write_file", json.RawMessage(`{"file_path":"shared.go","content":"a"}`)); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	_, err := exec.Execute(ctx, b, "edit_file", json.RawMessage(`{"file_path":"shared.go","content":"b"}`))
	if err == nil {
		t.Fatal("expected denial for contested write")
	}
	if !strings.Contains(err.Error(), "denied") {
		t.Fatalf("unexpected error %v", err)
	}
	// Only the granted write reached the inner executor.
	if len(inner.calls) != 1 {
		t.Fatalf("expected 1 inner call, got %d", len(inner.calls))
	}
}

func TestContextualExecutor_MissingPath(t *testing.T) {
	env := newTestEnv(t, conflict.StrategySerialize, 5)
	id := env.spawnRunning(t, "task")

	exec := service.NewContextualToolExecutor(&mockInnerExecutor{}, env.scopes, env.coord)
	_, err := exec.Execute(context.Background(), id, "write_file", json.RawMessage(`{"content":"x"}`))
	if err == nil {
		t.Fatal("expected error for write tool without a path")
	}
}

func TestContextualExecutor_IsolatedRedirect(t *testing.T) {
	env := newTestEnv(t, conflict.StrategyIsolated, 5)
	a := env.spawnRunning(t, "task a")
	b := env.spawnRunning(t, "task b")

	inner := &mockInnerExecutor{out: "ok"}
	exec := service.NewContextualToolExecutor(inner, env.scopes, env.coord)
	ctx := context.Background()

	if _, err := exec.Execute(ctx, a, "write_file", json.RawMessage(`{"file_path":"shared.go","content":"a"}`)); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if _, err := exec.Execute(ctx, b, "write_file", json.RawMessage(`{"file_path":"shared.go","content":"b"}`)); err != nil {
		t.Fatalf("isolated write failed: %v", err)
	}

	// The second agent's inner call was redirected to its private copy.
	var input map[string]string
	if err := json.Unmarshal(inner.calls[1].Input, &input); err != nil {
		t.Fatalf("unmarshal redirected input: %v", err)
	}
	if input["file_path"] == "shared.go" {
		t.Fatal("expected redirected path for isolated write")
	}
	if !strings.Contains(input["file_path"], b) {
		t.Fatalf("expected overlay scoped to %s, got %q", b, input["file_path"])
	}
	// The modification is recorded against the requested path.
	files := env.scopes.GetModifiedFiles(b)
	if len(files) != 1 || files[0] != "shared.go" {
		t.Fatalf("expected [shared.go], got %v", files)
	}
}
