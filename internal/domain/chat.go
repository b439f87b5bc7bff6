package domain

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatMessage is the provider-agnostic chat message shape exchanged with the
// model port. Assistant messages may carry the tool calls the model asked
// for; tool messages carry the results of those calls.
type ChatMessage struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ModelReply is one completion returned by the model port.
type ModelReply struct {
	Text      string
	ToolCalls []ToolCall
}
