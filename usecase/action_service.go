package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/amirulhamizan12/agent-ui/domain/entities"
	"github.com/amirulhamizan12/agent-ui/domain/repositories"
	"github.com/amirulhamizan12/agent-ui/internal/metrics"
)

const (
	defaultMaxSteps = 30
	recentTaskLimit = 64
)

var (
	// ErrAutomationDisabled is reported when no automation client is configured.
	ErrAutomationDisabled = errors.New("browser automation is not configured")
	// ErrNoSession is returned when an operation needs an automation session and none is open.
	ErrNoSession = errors.New("no automation session")
)

// DispatchResult is the outcome of executing one parsed action.
type DispatchResult struct {
	Success        bool                `json:"success"`
	Kind           entities.ActionKind `json:"kind"`
	TaskID         string              `json:"task_id,omitempty"`
	SessionID      string              `json:"session_id,omitempty"`
	SessionLiveURL string              `json:"session_live_url,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// ActionService executes browser actions against the automation service.
// It opens one session on first use and reuses it for every later task.
type ActionService struct {
	automation repositories.Automation
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	session *repositories.AutomationSession

	// recent holds the last views of dispatched tasks, keyed by task id.
	recent *lru.Cache[string, repositories.AutomationTask]
}

// NewActionService creates an ActionService. automation may be nil, in
// which case browser actions fail with ErrAutomationDisabled.
func NewActionService(automation repositories.Automation, logger *zap.Logger, m *metrics.Metrics) *ActionService {
	recent, _ := lru.New[string, repositories.AutomationTask](recentTaskLimit)
	return &ActionService{
		automation: automation,
		logger:     logger,
		metrics:    m,
		recent:     recent,
	}
}

// Enabled reports whether an automation client is configured.
func (s *ActionService) Enabled() bool {
	return s.automation != nil
}

// Dispatch executes action. It never panics and never returns an error:
// every failure is described by the result.
func (s *ActionService) Dispatch(ctx context.Context, action entities.ParsedAction) (result DispatchResult) {
	result.Kind = action.Kind
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Action dispatch panicked", zap.Any("panic", r))
			result = DispatchResult{Kind: action.Kind, Error: fmt.Sprint("dispatch failed: ", r)}
		}
		outcome := "success"
		if !result.Success {
			outcome = "failure"
		}
		s.metrics.Dispatch(string(action.Kind), outcome)
	}()

	if action.Kind != entities.ActionBrowser {
		result.Success = true
		return result
	}
	if !action.HasCommand() {
		result.Error = "browser action has no instruction"
		return result
	}
	if s.automation == nil {
		result.Error = ErrAutomationDisabled.Error()
		return result
	}

	session, err := s.ensureSession(ctx)
	if err != nil {
		s.logger.Error("Failed to open automation session", zap.Error(err))
		result.Error = fmt.Sprintf("failed to create automation session: %v", err)
		return result
	}
	result.SessionID = session.ID
	result.SessionLiveURL = session.LiveURL

	task, err := s.automation.CreateTask(ctx, repositories.CreateTaskRequest{
		Task:              *action.Command,
		SessionID:         session.ID,
		MaxSteps:          defaultMaxSteps,
		HighlightElements: true,
		Vision:            true,
	})
	if err != nil {
		s.logger.Error("Failed to create automation task",
			zap.String("sessionID", session.ID),
			zap.Error(err))
		result.Error = fmt.Sprintf("failed to create automation task: %v", err)
		return result
	}

	s.logger.Info("Browser action dispatched",
		zap.String("taskID", task.ID),
		zap.String("sessionID", session.ID))
	s.recent.Add(task.ID, *task)
	result.Success = true
	result.TaskID = task.ID
	if task.SessionID != "" {
		result.SessionID = task.SessionID
	}
	return result
}

// ensureSession returns the open session, creating it on first use. The
// lock is held across creation so concurrent dispatches share one session.
func (s *ActionService) ensureSession(ctx context.Context) (*repositories.AutomationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return s.session, nil
	}
	session, err := s.automation.CreateSession(ctx)
	if err != nil {
		return nil, err
	}
	s.session = session
	return session, nil
}

// CurrentSession returns a copy of the open session, or nil.
func (s *ActionService) CurrentSession() *repositories.AutomationSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	session := *s.session
	return &session
}

// ResetSession forgets the open session and asks the service to end it.
// The next browser action opens a new one even if the delete fails.
func (s *ActionService) ResetSession(ctx context.Context) error {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()

	if session == nil {
		return ErrNoSession
	}
	if err := s.automation.DeleteSession(ctx, session.ID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", session.ID, err)
	}
	s.logger.Info("Automation session reset", zap.String("sessionID", session.ID))
	return nil
}

// EndSession deletes sessionID, forgetting it if it is the open session.
func (s *ActionService) EndSession(ctx context.Context, sessionID string) error {
	if s.automation == nil {
		return ErrAutomationDisabled
	}
	s.mu.Lock()
	if s.session != nil && s.session.ID == sessionID {
		s.session = nil
	}
	s.mu.Unlock()
	return s.automation.DeleteSession(ctx, sessionID)
}

func (s *ActionService) Task(ctx context.Context, taskID string) (*repositories.AutomationTask, error) {
	if s.automation == nil {
		return nil, ErrAutomationDisabled
	}
	task, err := s.automation.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s.remember(task)
	return task, nil
}

func (s *ActionService) ControlTask(ctx context.Context, taskID string, action repositories.TaskAction) (*repositories.AutomationTask, error) {
	if s.automation == nil {
		return nil, ErrAutomationDisabled
	}
	if !action.Valid() {
		return nil, fmt.Errorf("unknown task action %q", action)
	}
	task, err := s.automation.UpdateTask(ctx, taskID, action)
	if err != nil {
		return nil, err
	}
	s.remember(task)
	return task, nil
}

// RecentTasks returns the last known view of dispatched tasks, most
// recently updated first.
func (s *ActionService) RecentTasks() []repositories.AutomationTask {
	keys := s.recent.Keys()
	tasks := make([]repositories.AutomationTask, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if task, ok := s.recent.Peek(keys[i]); ok {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

// remember refreshes a known task without promoting unknown ones into
// the recent set.
func (s *ActionService) remember(task *repositories.AutomationTask) {
	if task == nil || task.ID == "" {
		return
	}
	previous, ok := s.recent.Peek(task.ID)
	if !ok {
		return
	}
	if task.Task == "" {
		task.Task = previous.Task
	}
	if task.SessionID == "" {
		task.SessionID = previous.SessionID
	}
	s.recent.Add(task.ID, *task)
}

// KeepAlive polls a task so the remote session is not reaped while the UI
// is watching it. It returns the task's current view.
func (s *ActionService) KeepAlive(ctx context.Context, taskID string) (*repositories.AutomationTask, error) {
	task, err := s.Task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Task keepalive", zap.String("taskID", taskID), zap.String("status", string(task.Status)))
	return task, nil
}
