package browseruse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/amirulhamizan12/agent-ui/domain/repositories"
)

const (
	defaultBaseURL       = "https://api.browser-use.com/api/v2"
	defaultTimeout       = 30 * time.Second
	defaultMaxRetries    = 3
	defaultRetryInterval = 250 * time.Millisecond
	apiKeyHeader         = "X-Browser-Use-API-Key"
	listPageSize         = 100
)

// Config holds configuration for the browser-use client
// Required fields:
// - APIKey: the browser-use API key
// Optional fields with defaults:
// - BaseURL: API root (default: "https://api.browser-use.com/api/v2")
// - Timeout: per-request timeout (default: 30s)
// - MaxRetries: retries for idempotent requests (default: 3)
// - RetryInterval: first retry delay, doubled each time (default: 250ms)
type Config struct {
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

// APIError is a non-2xx response from the automation service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("browser-use API returned %d: %s", e.StatusCode, e.Body)
}

// Client talks to the browser-use REST API
type Client struct {
	apiKey        string
	baseURL       string
	httpClient    *http.Client
	maxRetries    int
	retryInterval time.Duration
	logger        *zap.Logger
}

// Ensure Client implements the Automation interface
var _ repositories.Automation = (*Client)(nil)

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("browser-use API key is required")
	}
	if config.BaseURL != "" {
		u, err := url.Parse(config.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid browser-use base URL %q", config.BaseURL)
		}
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}
	if config.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", config.MaxRetries)
	}
	return nil
}

// NewClient creates a browser-use client
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
		logger.Info("Using default browser-use base URL", zap.String("baseURL", baseURL))
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	maxRetries := config.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}

	retryInterval := config.RetryInterval
	if retryInterval == 0 {
		retryInterval = defaultRetryInterval
	}

	return &Client{
		apiKey:        config.APIKey,
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: timeout},
		maxRetries:    maxRetries,
		retryInterval: retryInterval,
		logger:        logger,
	}, nil
}

// CreateSession starts a new remote browser session
func (c *Client) CreateSession(ctx context.Context) (*repositories.AutomationSession, error) {
	var session repositories.AutomationSession
	if err := c.do(ctx, http.MethodPost, "/sessions", struct{}{}, &session); err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, fmt.Errorf("create session: response has no session id")
	}
	c.logger.Info("Automation session created", zap.String("sessionID", session.ID))
	return &session, nil
}

// DeleteSession ends a session. Deployments that reject DELETE with 405
// are handled by stopping every running task of the session together with
// the session itself.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	err := c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(sessionID), nil, nil)
	var apiErr *APIError
	if err == nil || !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusMethodNotAllowed {
		if err == nil {
			c.logger.Info("Automation session deleted", zap.String("sessionID", sessionID))
		}
		return err
	}

	c.logger.Info("Session delete not allowed, stopping its tasks instead", zap.String("sessionID", sessionID))
	tasks, err := c.ListTasks(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list tasks of session %s: %w", sessionID, err)
	}
	var errs []error
	for _, task := range tasks {
		if !task.Status.Running() {
			continue
		}
		if _, err := c.UpdateTask(ctx, task.ID, repositories.TaskActionStopTaskAndSession); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CreateTask submits an instruction
func (c *Client) CreateTask(ctx context.Context, req repositories.CreateTaskRequest) (*repositories.AutomationTask, error) {
	if strings.TrimSpace(req.Task) == "" {
		return nil, fmt.Errorf("task cannot be empty")
	}

	var task repositories.AutomationTask
	if err := c.do(ctx, http.MethodPost, "/tasks", req, &task); err != nil {
		return nil, err
	}
	if task.ID == "" {
		return nil, fmt.Errorf("create task: response has no task id")
	}
	if task.SessionID == "" {
		task.SessionID = req.SessionID
	}
	c.logger.Info("Automation task created",
		zap.String("taskID", task.ID),
		zap.String("sessionID", task.SessionID))
	return &task, nil
}

func (c *Client) GetTask(ctx context.Context, taskID string) (*repositories.AutomationTask, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task id is required")
	}
	var task repositories.AutomationTask
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask applies stop, pause, resume or stop_task_and_session
func (c *Client) UpdateTask(ctx context.Context, taskID string, action repositories.TaskAction) (*repositories.AutomationTask, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task id is required")
	}
	if !action.Valid() {
		return nil, fmt.Errorf("unknown task action %q", action)
	}

	body := struct {
		Action repositories.TaskAction `json:"action"`
	}{Action: action}

	var task repositories.AutomationTask
	if err := c.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(taskID), body, &task); err != nil {
		return nil, err
	}
	if task.ID == "" {
		task.ID = taskID
	}
	c.logger.Info("Automation task updated", zap.String("taskID", taskID), zap.String("action", string(action)))
	return &task, nil
}

// ListTasks returns the first page of tasks bound to sessionID
func (c *Client) ListTasks(ctx context.Context, sessionID string) ([]repositories.AutomationTask, error) {
	query := url.Values{}
	query.Set("pageSize", fmt.Sprint(listPageSize))
	if sessionID != "" {
		query.Set("sessionId", sessionID)
	}

	var page struct {
		Items      []repositories.AutomationTask `json:"items"`
		TotalItems int                           `json:"totalItems"`
		PageNumber int                           `json:"pageNumber"`
		PageSize   int                           `json:"pageSize"`
	}
	if err := c.do(ctx, http.MethodGet, "/tasks?"+query.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// do sends one request. GET and DELETE are retried on transport errors,
// 429 and 5xx; other methods are sent once.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	retries := 0
	if method == http.MethodGet || method == http.MethodDelete {
		retries = c.maxRetries
	}

	operation := func() error {
		var reader io.Reader = http.NoBody
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		req.Header.Set(apiKeyHeader, c.apiKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
			if resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(apiErr)
			}
			return apiErr
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
			}
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)

	err := backoff.RetryNotify(operation, retry, func(err error, delay time.Duration) {
		c.logger.Warn("Retrying browser-use request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("delay", delay),
			zap.Error(err))
	})
	if err != nil {
		c.logger.Error("Browser-use request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return nil
}
