package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/amirulhamizan12/agent-ui/adapters/browseruse"
	"github.com/amirulhamizan12/agent-ui/domain/entities"
	"github.com/amirulhamizan12/agent-ui/domain/repositories"
	"github.com/amirulhamizan12/agent-ui/internal/audio"
	"github.com/amirulhamizan12/agent-ui/internal/websocket"
	"github.com/amirulhamizan12/agent-ui/usecase"
)

// Actions is the automation surface exposed over HTTP
type Actions interface {
	CurrentSession() *repositories.AutomationSession
	EndSession(ctx context.Context, sessionID string) error
	Task(ctx context.Context, taskID string) (*repositories.AutomationTask, error)
	ControlTask(ctx context.Context, taskID string, action repositories.TaskAction) (*repositories.AutomationTask, error)
	KeepAlive(ctx context.Context, taskID string) (*repositories.AutomationTask, error)
	RecentTasks() []repositories.AutomationTask
}

// Dependencies are the services the routes call into
type Dependencies struct {
	Conversation websocket.Controller
	Actions      Actions
	Hub          *websocket.Hub
	// Gatherer serves /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

type handler struct {
	conversation websocket.Controller
	actions      Actions
	logger       *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies, logger *zap.Logger) {
	h := &handler{
		conversation: deps.Conversation,
		actions:      deps.Actions,
		logger:       logger,
	}

	e.GET("/health", h.health)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := e.Group("/api/v1")

	// Conversation APIs
	v1.GET("/connection", h.connection)
	v1.GET("/conversation", h.getConversation)
	v1.POST("/messages", h.sendMessage)
	v1.POST("/messages/:id/play", h.playMessage)
	v1.POST("/speak", h.speak)
	v1.POST("/audio/stop", h.stopAudio)
	v1.POST("/mic/start", h.startMic)
	v1.POST("/mic/stop", h.stopMic)

	// Automation APIs
	v1.GET("/session", h.getSession)
	v1.DELETE("/sessions/:id", h.endSession)
	v1.GET("/tasks", h.listTasks)
	v1.GET("/tasks/:id", h.getTask)
	v1.PATCH("/tasks/:id", h.updateTask)
	v1.POST("/tasks/:id/keepalive", h.keepAlive)

	if deps.Hub != nil {
		e.GET("/ws", deps.Hub.HandleWebSocket)
	}
}

func (h *handler) health(c echo.Context) error {
	states := h.conversation.ConnectionStates()
	return c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Service:     "agent-ui",
		Ready:       allReady(states),
		Connections: states,
	})
}

func (h *handler) connection(c echo.Context) error {
	states := h.conversation.ConnectionStates()
	return c.JSON(http.StatusOK, ConnectionResponse{
		Ready:       allReady(states),
		Connections: states,
		Microphone:  h.conversation.MicrophoneRunning(),
	})
}

func (h *handler) getConversation(c echo.Context) error {
	conversation, err := h.conversation.Conversation(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, conversation)
}

func (h *handler) sendMessage(c echo.Context) error {
	var req TextRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	msg, err := h.conversation.SendMessage(c.Request().Context(), req.Text)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (h *handler) playMessage(c echo.Context) error {
	if err := h.conversation.PlayMessage(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *handler) speak(c echo.Context) error {
	var req TextRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if err := h.conversation.Speak(req.Text); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *handler) stopAudio(c echo.Context) error {
	h.conversation.StopAudio()
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) startMic(c echo.Context) error {
	// The capture outlives the request.
	if err := h.conversation.StartMicrophone(context.Background()); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) stopMic(c echo.Context) error {
	h.conversation.StopMicrophone()
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) getSession(c echo.Context) error {
	return c.JSON(http.StatusOK, SessionResponse{Session: h.actions.CurrentSession()})
}

func (h *handler) endSession(c echo.Context) error {
	if err := h.actions.EndSession(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, TasksResponse{Tasks: h.actions.RecentTasks()})
}

func (h *handler) getTask(c echo.Context) error {
	task, err := h.actions.Task(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handler) updateTask(c echo.Context) error {
	var req TaskUpdateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if !req.Action.Valid() {
		return badRequest(c, "action must be one of stop, pause, resume, stop_task_and_session")
	}
	task, err := h.actions.ControlTask(c.Request().Context(), c.Param("id"), req.Action)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handler) keepAlive(c echo.Context) error {
	task, err := h.actions.KeepAlive(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

// fail maps service errors to HTTP responses
func (h *handler) fail(c echo.Context, err error) error {
	status, code := http.StatusInternalServerError, "internal_error"

	var apiErr *browseruse.APIError
	switch {
	case errors.Is(err, usecase.ErrEmptyMessage):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, usecase.ErrNotReady):
		status, code = http.StatusServiceUnavailable, "not_ready"
	case errors.Is(err, usecase.ErrMessageNotFound), errors.Is(err, repositories.ErrConversationNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, usecase.ErrNoSession):
		status, code = http.StatusNotFound, "no_session"
	case errors.Is(err, usecase.ErrNoAudio):
		status, code = http.StatusConflict, "no_audio"
	case errors.Is(err, usecase.ErrMicrophoneDisabled), errors.Is(err, audio.ErrDeviceUnavailable):
		status, code = http.StatusServiceUnavailable, "device_unavailable"
	case errors.Is(err, usecase.ErrAutomationDisabled):
		status, code = http.StatusServiceUnavailable, "automation_disabled"
	case errors.As(err, &apiErr):
		status, code = http.StatusBadGateway, "upstream_error"
		if apiErr.StatusCode == http.StatusNotFound {
			status, code = http.StatusNotFound, "not_found"
		}
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.Path()),
			zap.Error(err))
	}
	return c.JSON(status, ErrorResponse{Error: code, Message: err.Error()})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: strings.TrimSpace(message),
	})
}

func allReady(states map[string]entities.ConnectionState) bool {
	if len(states) == 0 {
		return false
	}
	for _, s := range states {
		if s.Phase != entities.PhaseReady {
			return false
		}
	}
	return true
}
