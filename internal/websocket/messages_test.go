package websocket

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestMessageValidator_ValidateTextCommands(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{
			name:    "valid send_message",
			message: `{"type": "send_message", "text": "open the docs", "request_id": "r1"}`,
			wantErr: false,
		},
		{
			name:    "valid speak",
			message: `{"type": "speak", "text": "hello"}`,
			wantErr: false,
		},
		{
			name:    "missing text",
			message: `{"type": "send_message"}`,
			wantErr: true,
		},
		{
			name:    "blank text",
			message: `{"type": "speak", "text": "   "}`,
			wantErr: true,
		},
		{
			name:    "text too long",
			message: `{"type": "send_message", "text": "` + strings.Repeat("a", maxTextLength+1) + `"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageValidator_ValidateTextCommandFields(t *testing.T) {
	validator := NewMessageValidator()

	result, err := validator.ValidateMessage([]byte(`{"type": "send_message", "text": "hi", "request_id": "r1"}`))
	if err != nil {
		t.Fatalf("ValidateMessage() error = %v", err)
	}

	cmd, ok := result.(*TextCommand)
	if !ok {
		t.Fatalf("Expected *TextCommand, got %T", result)
	}
	if cmd.Text != "hi" {
		t.Errorf("Expected text 'hi', got '%s'", cmd.Text)
	}
	if cmd.RequestID != "r1" {
		t.Errorf("Expected request id 'r1', got '%s'", cmd.RequestID)
	}
}

func TestMessageValidator_ValidatePlayMessage(t *testing.T) {
	validator := NewMessageValidator()

	result, err := validator.ValidateMessage([]byte(`{"type": "play_message", "message_id": "m-1"}`))
	if err != nil {
		t.Fatalf("ValidateMessage() error = %v", err)
	}
	if cmd := result.(*PlayMessageCommand); cmd.MessageID != "m-1" {
		t.Errorf("Expected message id 'm-1', got '%s'", cmd.MessageID)
	}

	if _, err := validator.ValidateMessage([]byte(`{"type": "play_message"}`)); err == nil {
		t.Error("Expected error for missing message_id")
	}
}

func TestMessageValidator_ValidateControlCommands(t *testing.T) {
	validator := NewMessageValidator()

	for _, typ := range []MessageType{MessageTypeStopAudio, MessageTypeMicStart, MessageTypeMicStop} {
		result, err := validator.ValidateMessage([]byte(`{"type": "` + string(typ) + `"}`))
		if err != nil {
			t.Errorf("%s: ValidateMessage() error = %v", typ, err)
			continue
		}
		cmd, ok := result.(*ControlCommand)
		if !ok || cmd.Type != typ {
			t.Errorf("%s: expected control command, got %#v", typ, result)
		}
	}
}

func TestMessageValidator_ValidatePing(t *testing.T) {
	validator := NewMessageValidator()

	message := `{
		"type": "ping",
		"data": "test-ping"
	}`

	result, err := validator.ValidateMessage([]byte(message))
	if err != nil {
		t.Errorf("ValidateMessage() error = %v", err)
	}

	pingMsg, ok := result.(*PingMessage)
	if !ok {
		t.Fatalf("Expected *PingMessage, got %T", result)
	}

	if pingMsg.Data != "test-ping" {
		t.Errorf("Expected data 'test-ping', got '%s'", pingMsg.Data)
	}
}

func TestMessageValidator_InvalidJSON(t *testing.T) {
	validator := NewMessageValidator()

	tests := []string{
		`{"type": "ping"`,
		`not json`,
		``,
	}

	for _, message := range tests {
		if _, err := validator.ValidateMessage([]byte(message)); err == nil {
			t.Errorf("Expected error for invalid JSON %q, got nil", message)
		}
	}
}

func TestMessageValidator_UnsupportedMessageType(t *testing.T) {
	validator := NewMessageValidator()

	for _, message := range []string{
		`{"type": "unsupported_type", "data": "some data"}`,
		`{"data": "no type"}`,
	} {
		if _, err := validator.ValidateMessage([]byte(message)); err == nil {
			t.Errorf("Expected error for %s, got nil", message)
		}
	}
}

func TestCreateErrorMessage(t *testing.T) {
	errorMsg := CreateErrorMessage("r1", "not_ready", "Command failed", "connection not ready")

	if errorMsg.Type != MessageTypeError {
		t.Errorf("Expected type %s, got %s", MessageTypeError, errorMsg.Type)
	}
	if errorMsg.RequestID != "r1" {
		t.Errorf("Expected request id r1, got %s", errorMsg.RequestID)
	}
	if errorMsg.Code != "not_ready" {
		t.Errorf("Expected code not_ready, got %s", errorMsg.Code)
	}
	if errorMsg.Details != "connection not ready" {
		t.Errorf("Expected details, got %s", errorMsg.Details)
	}

	// Verify timestamp is recent
	timestamp, err := time.Parse(time.RFC3339, errorMsg.Timestamp)
	if err != nil {
		t.Errorf("Invalid timestamp format: %v", err)
	}
	if time.Since(timestamp) > 2*time.Second {
		t.Errorf("Timestamp is not recent: %s", errorMsg.Timestamp)
	}
}

func TestCreateEventMessage(t *testing.T) {
	data, err := json.Marshal(CreateEventMessage("mic_level", 0.5))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["type"] != "mic_level" {
		t.Errorf("Expected type mic_level, got %v", decoded["type"])
	}
	if decoded["payload"] != 0.5 {
		t.Errorf("Expected payload 0.5, got %v", decoded["payload"])
	}
	if _, ok := decoded["request_id"]; ok {
		t.Error("Events should not carry a request id")
	}
}

func BenchmarkMessageValidation(b *testing.B) {
	validator := NewMessageValidator()
	message := []byte(`{"type": "send_message", "text": "search for flights to Lisbon", "request_id": "r1"}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := validator.ValidateMessage(message); err != nil {
			b.Errorf("Validation failed: %v", err)
		}
	}
}
