package api

import (
	"github.com/amirulhamizan12/agent-ui/domain/entities"
	"github.com/amirulhamizan12/agent-ui/domain/repositories"
)

// TextRequest is the payload of POST /messages and POST /speak
type TextRequest struct {
	Text string `json:"text"`
}

// TaskUpdateRequest is the payload of PATCH /tasks/:id
type TaskUpdateRequest struct {
	Action repositories.TaskAction `json:"action"`
}

// HealthResponse reports process and connection health
type HealthResponse struct {
	Status      string                              `json:"status"`
	Service     string                              `json:"service"`
	Ready       bool                                `json:"ready"`
	Connections map[string]entities.ConnectionState `json:"connections"`
}

// ConnectionResponse is returned by GET /connection
type ConnectionResponse struct {
	Ready       bool                                `json:"ready"`
	Connections map[string]entities.ConnectionState `json:"connections"`
	Microphone  bool                                `json:"microphone"`
}

// SessionResponse is returned by GET /session
type SessionResponse struct {
	Session *repositories.AutomationSession `json:"session"`
}

// TasksResponse is returned by GET /tasks
type TasksResponse struct {
	Tasks []repositories.AutomationTask `json:"tasks"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
