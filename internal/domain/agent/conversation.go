package agent

import "time"

// Role identifies the author of a conversation entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in an instance's conversation log: either a chat
// message or a tool-call record (ToolName set).
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	ToolName  string    `json:"tool_name,omitempty"`
	ToolInput string    `json:"tool_input,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is the ordered, append-only sequence of messages and
// tool-call records for one instance.
type Conversation struct {
	Messages []Message `json:"messages"`
}

// Append adds a message to the end of the conversation.
func (c *Conversation) Append(m Message) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	c.Messages = append(c.Messages, m)
}

// Len returns the number of entries in the conversation.
func (c *Conversation) Len() int { return len(c.Messages) }
