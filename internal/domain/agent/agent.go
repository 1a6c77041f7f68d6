// Package agent defines the agent instance domain entities and lifecycle states.
package agent

import "time"

// Status represents the current state of an agent instance.
type Status string

const (
	StatusPending         Status = "pending"
	StatusRunning         Status = "running"
	StatusWaitingConflict Status = "waiting_conflict"
	StatusCompleted       Status = "completed"
	StatusError           Status = "error"
	StatusCancelled       Status = "cancelled"
)

// Terminal reports whether the status is absorbing: once an instance reaches
// it, no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// Definition is a named task template resolved by name from a DefinitionSet.
// The coordinator only reads definitions; it never mutates them.
type Definition struct {
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description,omitempty" yaml:"description"`
	SystemPrompt string   `json:"system_prompt" yaml:"system_prompt"`
	Model        string   `json:"model" yaml:"model"`
	Tools        []string `json:"tools,omitempty" yaml:"tools"`
}

// SpawnConfig is a request to start an agent. Immutable once submitted.
type SpawnConfig struct {
	AgentName            string   `json:"agent_name"`
	Task                 string   `json:"task"`
	ContextFiles         []string `json:"context_files,omitempty"`
	Priority             int      `json:"priority,omitempty"`
	TimeoutMS            int64    `json:"timeout_ms,omitempty"`
	AllowedTools         []string `json:"allowed_tools,omitempty"`
	SystemPromptOverride string   `json:"system_prompt_override,omitempty"`
	WorkingDir           string   `json:"working_dir,omitempty"`
	AllowedPaths         []string `json:"allowed_paths,omitempty"`
	DeniedPaths          []string `json:"denied_paths,omitempty"`
}

// ExecutionResult is reported by an agent's run loop when it finishes.
type ExecutionResult struct {
	Success       bool     `json:"success"`
	Output        string   `json:"output,omitempty"`
	Error         string   `json:"error,omitempty"`
	ModifiedFiles []string `json:"modified_files,omitempty"`
	ToolCallCount int      `json:"tool_call_count"`
	TokensIn      int64    `json:"tokens_in"`
	TokensOut     int64    `json:"tokens_out"`
	DurationMS    int64    `json:"duration_ms"`
}

// Instance is one running execution of a definition against a task.
// All mutation goes through registry operations so every status change can
// be paired with an audit event.
type Instance struct {
	ID            string           `json:"id"`
	Definition    *Definition      `json:"definition"`
	Config        SpawnConfig      `json:"config"`
	Status        Status           `json:"status"`
	Conversation  Conversation     `json:"conversation"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	Error         string           `json:"error,omitempty"`
	ModifiedFiles []string         `json:"modified_files"`
	Result        *ExecutionResult `json:"result,omitempty"`
}

// Clone returns a snapshot of the instance safe to hand outside the
// registry while lifecycle operations keep mutating the original. The
// Definition pointer is shared (definitions are read-only after load) and
// so is Result (written once on completion, never mutated after).
func (i *Instance) Clone() *Instance {
	out := *i
	if i.CompletedAt != nil {
		t := *i.CompletedAt
		out.CompletedAt = &t
	}
	out.ModifiedFiles = append([]string(nil), i.ModifiedFiles...)
	out.Conversation = Conversation{Messages: append([]Message(nil), i.Conversation.Messages...)}
	return &out
}

// Stats is a point-in-time projection of instance counts per status.
type Stats struct {
	Running   int `json:"running"`
	Waiting   int `json:"waiting"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}
