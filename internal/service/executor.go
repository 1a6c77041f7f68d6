package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/CodeSwarm/internal/domain/agent"
)

// ToolExecutor runs one tool call on behalf of an agent and returns its
// textual result.
type ToolExecutor interface {
	Execute(ctx context.Context, agentID, tool string, input json.RawMessage) (string, error)
}

// writeTools are the tool names whose execution mutates the working tree
// and therefore must hold the file lock first.
var writeTools = map[string]struct{}{
	"write_file":  {},
	"edit_file":   {},
	"append_file": {},
	"delete_file": {},
}

// pathKeys are the input fields probed, in order, for the target path of a
// write tool.
var pathKeys = []string{"file_path", "path"}

// ContextualToolExecutor wraps a ToolExecutor with the coordinator's access
// discipline: write tools must obtain write access before running, writes
// redirected by the isolated strategy are rewritten to the private copy,
// and successful writes are recorded on the agent's scope and conversation.
type ContextualToolExecutor struct {
	inner  ToolExecutor
	scopes *ScopeService
	coord  *Coordinator
}

// NewContextualToolExecutor creates the scope-enforcing executor.
func NewContextualToolExecutor(inner ToolExecutor, scopes *ScopeService, coord *Coordinator) *ContextualToolExecutor {
	return &ContextualToolExecutor{inner: inner, scopes: scopes, coord: coord}
}

// RequiresWriteAccess reports whether tool mutates files.
func RequiresWriteAccess(tool string) bool {
	_, ok := writeTools[tool]
	return ok
}

// ExtractPath returns the target path of a tool input, or "" when the input
// carries none.
func ExtractPath(input json.RawMessage) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(input, &fields); err != nil {
		return ""
	}
	for _, key := range pathKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var path string
		if err := json.Unmarshal(raw, &path); err == nil && path != "" {
			return path
		}
	}
	return ""
}

// Execute runs one tool call. Read tools pass straight through; write tools
// go through the full write-access pipeline first and record the
// modification after the inner executor succeeds.
func (e *ContextualToolExecutor) Execute(ctx context.Context, agentID, tool string, input json.RawMessage) (string, error) {
	if !RequiresWriteAccess(tool) {
		return e.inner.Execute(ctx, agentID, tool, input)
	}

	path := ExtractPath(input)
	if path == "" {
		return "", fmt.Errorf("tool %s: input carries no target path", tool)
	}

	decision, err := e.scopes.RequestWriteAccess(ctx, agentID, path)
	if err != nil {
		return "", fmt.Errorf("request write access to %s: %w", path, err)
	}
	if !decision.Granted {
		return "", fmt.Errorf("write access to %s denied: %s", path, decision.Reason)
	}

	if decision.Path != path {
		input, err = rewritePath(input, decision.Path)
		if err != nil {
			return "", fmt.Errorf("redirect write to %s: %w", decision.Path, err)
		}
	}

	out, err := e.inner.Execute(ctx, agentID, tool, input)
	if err != nil {
		return "", err
	}

	if recErr := e.scopes.RecordModification(agentID, path); recErr != nil {
		return "", fmt.Errorf("record modification of %s: %w", path, recErr)
	}
	if e.coord != nil {
		_ = e.coord.AppendMessage(agentID, agent.Message{
			Role:      agent.RoleTool,
			Content:   out,
			ToolName:  tool,
			ToolInput: string(input),
		})
	}
	return out, nil
}

// rewritePath replaces every known path field in input with newPath.
func rewritePath(input json.RawMessage, newPath string) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(input, &fields); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(newPath)
	if err != nil {
		return nil, err
	}
	for _, key := range pathKeys {
		if _, ok := fields[key]; ok {
			fields[key] = encoded
		}
	}
	return json.Marshal(fields)
}
