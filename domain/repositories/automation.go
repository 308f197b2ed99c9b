package repositories

import (
	"context"
	"time"
)

// TaskStatus is the lifecycle state reported by the automation service
type TaskStatus string

const (
	TaskStatusStarted  TaskStatus = "started"
	TaskStatusPaused   TaskStatus = "paused"
	TaskStatusFinished TaskStatus = "finished"
	TaskStatusStopped  TaskStatus = "stopped"
)

// Running reports whether the task still holds a browser
func (s TaskStatus) Running() bool {
	return s == TaskStatusStarted || s == TaskStatusPaused
}

// TaskAction is an update verb accepted by the automation service
type TaskAction string

const (
	TaskActionStop               TaskAction = "stop"
	TaskActionPause              TaskAction = "pause"
	TaskActionResume             TaskAction = "resume"
	TaskActionStopTaskAndSession TaskAction = "stop_task_and_session"
)

// Valid reports whether a is a known update verb
func (a TaskAction) Valid() bool {
	switch a {
	case TaskActionStop, TaskActionPause, TaskActionResume, TaskActionStopTaskAndSession:
		return true
	}
	return false
}

// AutomationSession is a remote browser session
type AutomationSession struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	LiveURL    string     `json:"liveUrl,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// CreateTaskRequest submits an instruction to run inside a session
type CreateTaskRequest struct {
	Task              string `json:"task"`
	SessionID         string `json:"sessionId,omitempty"`
	StartURL          string `json:"startUrl,omitempty"`
	MaxSteps          int    `json:"maxSteps,omitempty"`
	HighlightElements bool   `json:"highlightElements"`
	Vision            bool   `json:"vision"`
	Thinking          bool   `json:"thinking"`
	FlashMode         bool   `json:"flashMode"`
}

// TaskStep is one agent step of a running task
type TaskStep struct {
	Number                 int      `json:"number"`
	Memory                 string   `json:"memory"`
	EvaluationPreviousGoal string   `json:"evaluationPreviousGoal"`
	NextGoal               string   `json:"nextGoal"`
	URL                    string   `json:"url"`
	Actions                []string `json:"actions"`
	ScreenshotURL          string   `json:"screenshotUrl,omitempty"`
}

// AutomationTask is the remote task view
type AutomationTask struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"sessionId,omitempty"`
	Task       string     `json:"task,omitempty"`
	Status     TaskStatus `json:"status,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Steps      []TaskStep `json:"steps,omitempty"`
	Output     *string    `json:"output,omitempty"`
	IsSuccess  *bool      `json:"isSuccess,omitempty"`
	LiveURL    *string    `json:"liveUrl,omitempty"`
}

// Automation is the browser-automation collaborator used by action dispatch
type Automation interface {
	CreateSession(ctx context.Context) (*AutomationSession, error)
	DeleteSession(ctx context.Context, sessionID string) error
	CreateTask(ctx context.Context, req CreateTaskRequest) (*AutomationTask, error)
	GetTask(ctx context.Context, taskID string) (*AutomationTask, error)
	UpdateTask(ctx context.Context, taskID string, action TaskAction) (*AutomationTask, error)
	ListTasks(ctx context.Context, sessionID string) ([]AutomationTask, error)
}
