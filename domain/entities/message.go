package entities

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleHuman || r == RoleAssistant
}

// Message is a single conversation entry. Values are immutable after
// NewMessage returns; callers receive copies.
type Message struct {
	ID        string    `json:"id" bson:"id"`
	Role      Role      `json:"role" bson:"role"`
	Text      string    `json:"text" bson:"text"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	// AudioData holds a WAV clip of the spoken reply, when there was one.
	AudioData []byte `json:"audio_data,omitempty" bson:"audio_data,omitempty"`
}

// NewMessage creates a message with a fresh id and the current time.
func NewMessage(role Role, text string, audio []byte) Message {
	var data []byte
	if len(audio) > 0 {
		data = make([]byte, len(audio))
		copy(data, audio)
	}
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
		AudioData: data,
	}
}

// HasAudio reports whether the message carries a playable clip
func (m Message) HasAudio() bool {
	return len(m.AudioData) > 0
}
