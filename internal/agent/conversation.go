// Package agent implements scout's ReAct loop: it keeps the conversation
// with the language model, parses the actions the model asks for, runs
// them through the tool server and feeds the observations back.
package agent

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Conversation is an append-only message history whose first message is
// always the system prompt. It belongs to a single run.
type Conversation struct {
	messages []Message
}

// NewConversation starts a history with the given system prompt.
func NewConversation(systemPrompt string) *Conversation {
	return &Conversation{
		messages: []Message{{Role: RoleSystem, Content: systemPrompt}},
	}
}

// AddUser appends a user turn.
func (c *Conversation) AddUser(content string) {
	c.messages = append(c.messages, Message{Role: RoleUser, Content: content})
}

// AddAssistant appends a model turn.
func (c *Conversation) AddAssistant(content string) {
	c.messages = append(c.messages, Message{Role: RoleAssistant, Content: content})
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len reports the number of messages, system prompt included.
func (c *Conversation) Len() int {
	return len(c.messages)
}
