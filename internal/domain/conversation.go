package domain

import "time"

// Message is a single entry in a conversation history. Messages are never
// modified after they are appended.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Text        string       `json:"text"`
	Timestamp   time.Time    `json:"timestamp"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ConversationKey addresses one history. Histories are scoped per user, so
// two users reusing a conversation id never see each other's messages.
type ConversationKey struct {
	UserID         string
	ConversationID string
}

func (k ConversationKey) String() string {
	return k.UserID + "/" + k.ConversationID
}

// ConversationHistory is the ordered message log of one conversation.
type ConversationHistory struct {
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
	CreatedAt      time.Time `json:"created_at"`
	LastUpdated    time.Time `json:"last_updated"`
}

// RateState is the per-conversation call budget and activity marker.
type RateState struct {
	CallCount    int
	LastActiveAt time.Time
}

// TurnRecord is what the turn journal persists after a completed turn.
type TurnRecord struct {
	UserID           string
	ConversationID   string
	UserMessage      Message
	AssistantMessage Message
	CallCount        int
	Outcome          string
}
