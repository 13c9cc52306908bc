package models

// Message is a single entry of a conversation transcript. The transcript is append-only except for
// its last element, whose Content grows while an assistant reply is streaming.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed or spoken by the human.
	RoleUser Role = "user"
	// RoleAssistant represents a message produced by the companion.
	RoleAssistant Role = "assistant"
)

// CloneMessages returns a copy of messages that shares no backing array with the input.
func CloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}

// LastN returns at most the n trailing messages.
func LastN(messages []Message, n int) []Message {
	if n <= 0 {
		return nil
	}
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
