package types

// Sender distinguishes who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// MessageStatus tracks the delivery state of a message. Only optimistic
// user messages ever leave StatusSent.
type MessageStatus string

const (
	StatusSent    MessageStatus = "sent"
	StatusPending MessageStatus = "pending"
	StatusFailed  MessageStatus = "failed"
)

type Message struct {
	Sender Sender        `json:"sender"`
	Text   string        `json:"text"`
	Status MessageStatus `json:"status,omitempty"`
}

// Chat is one conversation in the collection. Messages are ordered by send
// time and only ever appended to.
type Chat struct {
	ID          ChatID    `json:"id"`
	Name        string    `json:"name"`
	Messages    []Message `json:"messages"`
	Provisional bool      `json:"provisional,omitempty"`
}

// Clone returns a deep copy of the chat.
func (c *Chat) Clone() *Chat {
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	return &cp
}

// ChatSummary is the list/rename projection of a chat returned by the backend.
type ChatSummary struct {
	ID   ChatID `json:"id"`
	Name string `json:"name"`
}
