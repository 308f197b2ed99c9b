package live

import (
	"time"

	"github.com/amirulhamizan12/agent-ui/domain/entities"
)

// Event is delivered to socket listeners in the order it happened.
type Event interface {
	isEvent()
}

// SetupCompleteEvent fires once per connection, when the socket becomes ready.
type SetupCompleteEvent struct{}

// TextEvent carries the concatenated text parts of one model-turn frame.
type TextEvent struct {
	Text string
}

// AudioEvent carries one decoded inline-data part (raw little-endian PCM).
type AudioEvent struct {
	MIMEType string
	Data     []byte
}

// TurnCompleteEvent marks the end of a model turn.
type TurnCompleteEvent struct{}

// InterruptedEvent is sent when the service cut the current turn short.
type InterruptedEvent struct{}

// StateEvent reports every phase transition.
type StateEvent struct {
	State entities.ConnectionState

	seq uint64
}

// ReconnectScheduledEvent reports the retry number and its delay.
type ReconnectScheduledEvent struct {
	Attempt int
	Delay   time.Duration
}

func (SetupCompleteEvent) isEvent()      {}
func (TextEvent) isEvent()               {}
func (AudioEvent) isEvent()              {}
func (TurnCompleteEvent) isEvent()       {}
func (InterruptedEvent) isEvent()        {}
func (StateEvent) isEvent()              {}
func (ReconnectScheduledEvent) isEvent() {}

// Listener receives socket events. It runs on the socket's goroutines and
// must not block; inbound frames wait for it.
type Listener func(Event)
