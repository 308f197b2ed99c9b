package entities

import (
	"errors"
	"time"
)

// ConversationStatus represents the status of a conversation
type ConversationStatus string

const (
	ConversationStatusActive     ConversationStatus = "active"
	ConversationStatusExpired    ConversationStatus = "expired"
	ConversationStatusTerminated ConversationStatus = "terminated"
)

const (
	conversationTTL = 24 * time.Hour
	// A gap longer than this between messages starts a new conversation.
	continuationWindow = 30 * time.Minute
)

// Conversation is the persisted transcript of one voice/chat session
type Conversation struct {
	ID            string             `json:"id" bson:"-"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	LastActiveAt  time.Time          `json:"last_active_at" bson:"last_active_at"`
	LastMessageAt *time.Time         `json:"last_message_at" bson:"last_message_at"`
	ExpiresAt     time.Time          `json:"expires_at" bson:"expires_at"`
	Status        ConversationStatus `json:"status" bson:"status"`
	Messages      []Message          `json:"messages" bson:"messages"`
	// AutomationSessionID links the transcript to the remote browser session, if one was opened.
	AutomationSessionID string `json:"automation_session_id,omitempty" bson:"automation_session_id,omitempty"`
}

// NewConversation creates an active, empty conversation
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(conversationTTL),
		Status:       ConversationStatusActive,
		Messages:     make([]Message, 0),
	}
}

// AddMessage appends messages and refreshes activity timestamps
func (c *Conversation) AddMessage(messages ...Message) {
	if len(messages) == 0 {
		return
	}
	c.Messages = append(c.Messages, messages...)
	last := messages[len(messages)-1].Timestamp
	if last.IsZero() {
		last = time.Now()
	}
	c.LastMessageAt = &last
	c.UpdateLastActive()
}

// FindMessage looks up a message by id
func (c *Conversation) FindMessage(id string) (Message, bool) {
	for _, m := range c.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// UpdateLastActive updates the last active timestamp and extends expiration
func (c *Conversation) UpdateLastActive() {
	c.LastActiveAt = time.Now()
	c.ExpiresAt = c.LastActiveAt.Add(conversationTTL)
}

// IsExpired checks if the conversation has expired
func (c *Conversation) IsExpired() bool {
	return time.Now().After(c.ExpiresAt) || c.Status != ConversationStatusActive
}

// ShouldStartNew applies the 30-minute rule
func (c *Conversation) ShouldStartNew() bool {
	if c.LastMessageAt == nil {
		return false
	}
	return time.Since(*c.LastMessageAt) > continuationWindow
}

// CanContinue reports whether new messages may be appended to c.
func (c *Conversation) CanContinue() bool {
	return c != nil && !c.IsExpired() && !c.ShouldStartNew()
}

// Terminate marks the conversation as terminated
func (c *Conversation) Terminate() {
	c.Status = ConversationStatusTerminated
	c.UpdateLastActive()
}

// Expire marks the conversation as expired
func (c *Conversation) Expire() {
	c.Status = ConversationStatusExpired
}

// Validate validates the conversation data
func (c *Conversation) Validate() error {
	switch c.Status {
	case ConversationStatusActive, ConversationStatusExpired, ConversationStatusTerminated:
	default:
		return errors.New("invalid conversation status")
	}

	for _, m := range c.Messages {
		if m.ID == "" {
			return errors.New("message id is required")
		}
		if !m.Role.Valid() {
			return errors.New("invalid message role")
		}
	}
	return nil
}
