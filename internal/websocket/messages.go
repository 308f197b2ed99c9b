package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/amirulhamizan12/agent-ui/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Commands sent by the UI
const (
	MessageTypeSendMessage MessageType = "send_message"
	MessageTypeSpeak       MessageType = "speak"
	MessageTypeStopAudio   MessageType = "stop_audio"
	MessageTypeMicStart    MessageType = "mic_start"
	MessageTypeMicStop     MessageType = "mic_stop"
	MessageTypePlayMessage MessageType = "play_message"
	MessageTypePing        MessageType = "ping"
)

// Messages sent to the UI. Service events use their event kind as type.
const (
	MessageTypePong     MessageType = "pong"
	MessageTypeError    MessageType = "error"
	MessageTypeSnapshot MessageType = "snapshot"
	MessageTypeAck      MessageType = "ack"
)

const maxTextLength = 8000

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	// RequestID correlates an ack or error with the command that caused it.
	RequestID string `json:"request_id,omitempty"`
}

// TextCommand carries user text for send_message and speak
type TextCommand struct {
	BaseMessage
	Text string `json:"text"`
}

// PlayMessageCommand replays the stored audio of one message
type PlayMessageCommand struct {
	BaseMessage
	MessageID string `json:"message_id"`
}

// ControlCommand is a command without arguments
type ControlCommand struct {
	BaseMessage
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// AckMessage confirms a command was executed
type AckMessage struct {
	BaseMessage
	Payload any `json:"payload,omitempty"`
}

// EventMessage wraps one service event
type EventMessage struct {
	BaseMessage
	Payload any `json:"payload,omitempty"`
}

// SnapshotMessage is sent to a client when it connects
type SnapshotMessage struct {
	BaseMessage
	Connections  map[string]entities.ConnectionState `json:"connections"`
	Conversation *entities.Conversation              `json:"conversation,omitempty"`
	Microphone   bool                                `json:"microphone"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses and validates an incoming command
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeSendMessage, MessageTypeSpeak:
		var msg TextCommand
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid %s message: %w", base.Type, err)
		}
		if err := v.validateText(msg.Text); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypePlayMessage:
		var msg PlayMessageCommand
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid play message: %w", err)
		}
		if msg.MessageID == "" {
			return nil, fmt.Errorf("message_id is required")
		}
		return &msg, nil

	case MessageTypeStopAudio, MessageTypeMicStart, MessageTypeMicStop:
		return &ControlCommand{BaseMessage: base}, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case "":
		return nil, fmt.Errorf("type is required")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func (v *MessageValidator) validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text is required")
	}
	if len(text) > maxTextLength {
		return fmt.Errorf("text must be at most %d bytes", maxTextLength)
	}
	return nil
}

func newBase(t MessageType, requestID string) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
		RequestID: requestID,
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(requestID, code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError, requestID),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(requestID, data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong, requestID),
		Data:        data,
	}
}

func CreateAckMessage(requestID string, payload any) *AckMessage {
	return &AckMessage{
		BaseMessage: newBase(MessageTypeAck, requestID),
		Payload:     payload,
	}
}

// CreateEventMessage wraps a service event of the given kind
func CreateEventMessage(kind string, payload any) *EventMessage {
	return &EventMessage{
		BaseMessage: newBase(MessageType(kind), ""),
		Payload:     payload,
	}
}
