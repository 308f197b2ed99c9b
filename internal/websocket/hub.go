package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/amirulhamizan12/agent-ui/domain/entities"
	"github.com/amirulhamizan12/agent-ui/internal/audio"
	"github.com/amirulhamizan12/agent-ui/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	commandTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	// The UI is served from a local dev server on another port.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Controller executes UI commands
type Controller interface {
	SendMessage(ctx context.Context, text string) (entities.Message, error)
	Speak(text string) error
	StopAudio()
	StartMicrophone(ctx context.Context) error
	StopMicrophone()
	MicrophoneRunning() bool
	PlayMessage(ctx context.Context, id string) error
	Conversation(ctx context.Context) (*entities.Conversation, error)
	ConnectionStates() map[string]entities.ConnectionState
}

// Hub maintains the set of UI clients and broadcasts service events to them.
// It implements usecase.Notifier.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Events to fan out to every client.
	broadcast chan []byte

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	controller Controller
	validator  *MessageValidator
	logger     *zap.Logger

	done chan struct{}
}

var _ usecase.Notifier = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		validator:  NewMessageValidator(),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// SetController sets the command target. It must be called before Run.
func (h *Hub) SetController(c Controller) {
	h.controller = c
}

// Run starts the hub's main loop. It returns when ctx is done, after
// closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("clientID", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("clientID", client.id))

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Too slow to keep up; drop it.
					delete(h.clients, id)
					close(client.send)
					h.logger.Warn("Dropping slow client", zap.String("clientID", id))
				}
			}
			h.mu.Unlock()
		}
	}
}

// Notify broadcasts a service event. Events are dropped when the hub is
// backed up.
func (h *Hub) Notify(kind string, payload any) {
	data, err := json.Marshal(CreateEventMessage(kind, payload))
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("kind", kind), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("Event dropped, hub is backed up", zap.String("kind", kind))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	id string

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	logger *zap.Logger
}

// HandleWebSocket upgrades a UI connection and registers it with the hub.
func (h *Hub) HandleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	id := uuid.NewString()
	client := &Client{
		hub:    h,
		id:     id,
		conn:   conn,
		send:   make(chan []byte, 256),
		logger: h.logger.With(zap.String("clientID", id)),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	client.sendSnapshot()
	return nil
}

func (c *Client) sendSnapshot() {
	if c.hub.controller == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snapshot := &SnapshotMessage{
		BaseMessage: newBase(MessageTypeSnapshot, ""),
		Connections: c.hub.controller.ConnectionStates(),
		Microphone:  c.hub.controller.MicrophoneRunning(),
	}
	conversation, err := c.hub.controller.Conversation(ctx)
	if err != nil {
		c.logger.Warn("Snapshot without conversation", zap.Error(err))
	} else {
		snapshot.Conversation = conversation
	}
	c.enqueue(snapshot)
}

// readPump pumps commands from the websocket connection to the controller.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		if messageType != websocket.TextMessage {
			c.logger.Warn("Received unsupported message type", zap.Int("type", messageType))
			continue
		}
		c.processMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue sends v to this client only. It never blocks and never sends on
// a channel the hub already closed.
func (c *Client) enqueue(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to encode message", zap.Error(err))
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("Reply dropped, client is backed up")
	}
}

func (c *Client) processMessage(message []byte) {
	parsed, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		var base BaseMessage
		_ = json.Unmarshal(message, &base)
		c.enqueue(CreateErrorMessage(base.RequestID, "invalid_message", "Invalid message", err.Error()))
		return
	}

	if ping, ok := parsed.(*PingMessage); ok {
		c.enqueue(CreatePongMessage(ping.RequestID, ping.Data))
		return
	}
	if c.hub.controller == nil {
		c.enqueue(CreateErrorMessage("", "unavailable", "No controller attached", ""))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	requestID, payload, err := c.execute(ctx, parsed)
	if err != nil {
		c.logger.Warn("Command failed", zap.Error(err))
		c.enqueue(CreateErrorMessage(requestID, errorCode(err), "Command failed", err.Error()))
		return
	}
	c.enqueue(CreateAckMessage(requestID, payload))
}

func (c *Client) execute(ctx context.Context, parsed any) (string, any, error) {
	ctrl := c.hub.controller
	switch msg := parsed.(type) {
	case *TextCommand:
		if msg.Type == MessageTypeSpeak {
			return msg.RequestID, nil, ctrl.Speak(msg.Text)
		}
		sent, err := ctrl.SendMessage(ctx, msg.Text)
		if err != nil {
			return msg.RequestID, nil, err
		}
		return msg.RequestID, sent, nil

	case *PlayMessageCommand:
		return msg.RequestID, nil, ctrl.PlayMessage(ctx, msg.MessageID)

	case *ControlCommand:
		switch msg.Type {
		case MessageTypeStopAudio:
			ctrl.StopAudio()
		case MessageTypeMicStart:
			if err := ctrl.StartMicrophone(context.Background()); err != nil {
				return msg.RequestID, nil, err
			}
		case MessageTypeMicStop:
			ctrl.StopMicrophone()
		}
		return msg.RequestID, nil, nil
	}
	return "", nil, errors.New("unhandled command")
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, usecase.ErrNotReady):
		return "not_ready"
	case errors.Is(err, usecase.ErrMessageNotFound):
		return "not_found"
	case errors.Is(err, usecase.ErrNoAudio):
		return "no_audio"
	case errors.Is(err, usecase.ErrMicrophoneDisabled), errors.Is(err, audio.ErrDeviceUnavailable):
		return "device_unavailable"
	default:
		return "command_failed"
	}
}
