package messagequeue

import "github.com/Strob0t/CodeSwarm/internal/domain/agent"

// AgentSpawnPayload is the schema for agents.spawn messages.
type AgentSpawnPayload struct {
	AgentID      string   `json:"agent_id"`
	AgentName    string   `json:"agent_name"`
	Task         string   `json:"task"`
	SystemPrompt string   `json:"system_prompt"`
	Model        string   `json:"model"`
	Tools        []string `json:"tools,omitempty"`
	ContextFiles []string `json:"context_files,omitempty"`
	WorkingDir   string   `json:"working_dir,omitempty"`
	TimeoutMS    int64    `json:"timeout_ms,omitempty"`
}

// AgentCancelPayload is the schema for agents.cancel messages.
type AgentCancelPayload struct {
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason,omitempty"`
}

// AgentResumePayload is the schema for agents.resume messages.
type AgentResumePayload struct {
	AgentID string `json:"agent_id"`
	Path    string `json:"path,omitempty"` // contested path that became available
}

// WriteRequestPayload is the schema for agents.write.request messages.
type WriteRequestPayload struct {
	AgentID   string `json:"agent_id"`
	RequestID string `json:"request_id"`
	Path      string `json:"path"`
}

// WriteResponsePayload is the schema for agents.write.response messages.
type WriteResponsePayload struct {
	AgentID   string `json:"agent_id"`
	RequestID string `json:"request_id"`
	Path      string `json:"path"`
	Granted   bool   `json:"granted"`
	Conflict  bool   `json:"conflict,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// WriteReleasePayload is the schema for agents.write.release messages.
type WriteReleasePayload struct {
	AgentID string `json:"agent_id"`
	Path    string `json:"path"`
}

// FileModifiedPayload is the schema for agents.file.modified messages.
type FileModifiedPayload struct {
	AgentID string `json:"agent_id"`
	Path    string `json:"path"`
}

// AgentCompletePayload is the schema for agents.complete messages.
type AgentCompletePayload struct {
	AgentID string                `json:"agent_id"`
	Result  agent.ExecutionResult `json:"result"`
}
