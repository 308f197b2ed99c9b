package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/amirulhamizan12/agent-ui/domain/entities"
	"github.com/amirulhamizan12/agent-ui/internal/metrics"
)

const intentionalCloseReason = "Intentional disconnect"

// Socket owns one bidirectional stream to the realtime model endpoint.
//
// Phases: Idle → Connecting → Handshaking → Ready → {Closing, Reconnecting} → Idle.
// Application frames can only be sent while Ready. Every connection attempt
// carries a generation number; callbacks from a superseded attempt (a dial
// that finished after Disconnect, a read loop of a closed conn, a stale
// reconnect timer) compare it and do nothing.
type Socket struct {
	cfg      Config
	endpoint string
	dialer   *websocket.Dialer
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu             sync.Mutex
	phase          entities.Phase
	attempts       int
	retries        int
	lastConnected  *time.Time
	lastErr        string
	conn           *websocket.Conn
	gen            uint64
	retry          backoff.BackOff
	reconnectTimer *time.Timer
	stateSeq       uint64

	writeMu sync.Mutex

	emitMu     sync.Mutex
	emittedSeq uint64

	listenersMu sync.RWMutex
	listeners   []listenerEntry
	nextID      uint64
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// Option customizes a Socket
type Option func(*Socket)

// WithMetrics records socket activity into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Socket) { s.metrics = m }
}

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(s *Socket) { s.dialer = d }
}

// NewSocket creates an idle socket. Call Connect to open it.
func NewSocket(cfg Config, logger *zap.Logger, opts ...Option) (*Socket, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s socket config: %w", cfg.Name, err)
	}
	endpoint, err := cfg.endpoint()
	if err != nil {
		return nil, fmt.Errorf("invalid %s socket url: %w", cfg.Name, err)
	}

	s := &Socket{
		cfg:      cfg,
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout,
		},
		logger: logger.With(zap.String("socket", cfg.Name)),
		phase:  entities.PhaseIdle,
		retry:  newReconnectBackOff(cfg.ReconnectBaseDelay, cfg.MaxReconnectAttempts),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger.Info("Socket created",
		zap.String("url", cfg.URL),
		zap.String("model", cfg.Model),
		zap.String("modality", string(cfg.Modality)),
		zap.Duration("reconnectBaseDelay", cfg.ReconnectBaseDelay),
		zap.Int("maxReconnectAttempts", cfg.MaxReconnectAttempts))
	return s, nil
}

// Name returns the socket label
func (s *Socket) Name() string { return s.cfg.Name }

// Modality returns the response modality negotiated in the setup frame
func (s *Socket) Modality() genai.Modality { return s.cfg.Modality }

// State returns a snapshot of the connection state
func (s *Socket) State() entities.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// IsReady reports whether application frames can be sent
func (s *Socket) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == entities.PhaseReady
}

// AddListener registers l for every subsequent event and returns a function that removes it.
func (s *Socket) AddListener(l Listener) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: l})
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			defer s.listenersMu.Unlock()
			for i, entry := range s.listeners {
				if entry.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Connect starts a connection attempt in the background. It returns false
// when the socket is already connected or an attempt is in flight.
func (s *Socket) Connect() bool {
	s.mu.Lock()
	switch s.phase {
	case entities.PhaseReady, entities.PhaseConnecting, entities.PhaseHandshaking:
		s.mu.Unlock()
		return false
	case entities.PhaseIdle:
		s.retries = 0
		s.retry.Reset()
	}
	s.stopReconnectTimerLocked()
	gen, state := s.startAttemptLocked()
	s.mu.Unlock()

	s.emit(state)
	go s.dial(gen)
	return true
}

// Disconnect closes the stream with a normal close code and returns to
// Idle. It cancels any pending reconnect, supersedes an in-flight dial and
// is safe to call repeatedly.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	s.stopReconnectTimerLocked()
	s.gen++
	gen := s.gen
	conn := s.conn
	s.conn = nil
	changed := s.phase != entities.PhaseIdle || s.attempts != 0
	s.attempts = 0
	s.retries = 0
	s.retry.Reset()

	var closing []Event
	if conn != nil {
		closing = append(closing, s.transitionLocked(entities.PhaseClosing))
	}
	s.mu.Unlock()
	s.emit(closing...)

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, intentionalCloseReason)
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
			s.logger.Debug("Close frame not delivered", zap.Error(err))
		}
		conn.Close()
	}

	s.mu.Lock()
	if gen != s.gen || !changed {
		s.mu.Unlock()
		return
	}
	state := s.transitionLocked(entities.PhaseIdle)
	s.mu.Unlock()

	s.logger.Info("Socket disconnected")
	s.emit(state)
}

// SendText sends one complete user turn. It returns false unless the socket is Ready.
func (s *Socket) SendText(text string) bool {
	conn, phase := s.readyConn()
	if conn == nil {
		s.logger.Debug("Text not sent, socket not ready", zap.String("phase", string(phase)))
		return false
	}
	if err := s.write(conn, "text", newTextFrame(text)); err != nil {
		s.logger.Warn("Failed to send text", zap.Error(err))
		return false
	}
	return true
}

// SendAudioChunk sends one base64 PCM chunk as realtime input. It returns
// false unless the socket is Ready.
func (s *Socket) SendAudioChunk(b64, mimeType string) bool {
	conn, _ := s.readyConn()
	if conn == nil {
		return false
	}
	if err := s.write(conn, "audio", newAudioFrame(b64, mimeType)); err != nil {
		s.logger.Debug("Failed to send audio chunk", zap.Error(err))
		return false
	}
	return true
}

func (s *Socket) readyConn() (*websocket.Conn, entities.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != entities.PhaseReady {
		return nil, s.phase
	}
	return s.conn, s.phase
}

func (s *Socket) startAttemptLocked() (uint64, StateEvent) {
	s.gen++
	s.attempts++
	s.lastErr = ""
	return s.gen, s.transitionLocked(entities.PhaseConnecting)
}

func (s *Socket) dial(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DialTimeout)
	defer cancel()

	conn, resp, err := s.dialer.DialContext(ctx, s.endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		kind := classifyDial(resp)
		s.logger.Warn("Dial failed", zap.String("kind", kind.String()), zap.Error(err))
		s.fail(gen, fmt.Errorf("dial: %w", err), kind)
		return
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	state := s.transitionLocked(entities.PhaseHandshaking)
	s.mu.Unlock()
	s.emit(state)

	// The setup frame must be the first frame on the wire.
	if err := s.write(conn, "setup", newSetupFrame(s.cfg)); err != nil {
		conn.Close()
		s.fail(gen, fmt.Errorf("send setup: %w", err), closeRetryable)
		return
	}
	go s.readLoop(gen, conn)
}

func (s *Socket) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			kind := classifyClose(err)
			if kind == closeClean {
				s.logger.Info("Server closed the stream")
				err = nil
			} else if s.current(gen) {
				s.logger.Warn("Stream closed unexpectedly", zap.String("kind", kind.String()), zap.Error(err))
			}
			s.fail(gen, err, kind)
			return
		}
		s.handleFrame(gen, data)
	}
}

func (s *Socket) handleFrame(gen uint64, data []byte) {
	in, err := decodeFrame(data)
	if err != nil {
		s.metrics.FrameDropped(s.cfg.Name, "malformed")
		s.logger.Warn("Dropping malformed frame", zap.Int("size", len(data)), zap.Error(err))
		return
	}
	if !s.current(gen) {
		return
	}
	if in.empty() {
		s.metrics.FrameReceived(s.cfg.Name, "other")
		s.logger.Debug("Ignoring frame without handled fields", zap.Int("size", len(data)))
		return
	}

	if in.setupComplete {
		s.metrics.FrameReceived(s.cfg.Name, "setup_complete")
		s.completeSetup(gen)
	}

	var events []Event
	if in.text != "" {
		s.metrics.FrameReceived(s.cfg.Name, "text")
		events = append(events, TextEvent{Text: in.text})
	}
	for _, chunk := range in.audio {
		s.metrics.FrameReceived(s.cfg.Name, "audio")
		events = append(events, chunk)
	}
	if in.interrupted {
		events = append(events, InterruptedEvent{})
	}
	if in.turnComplete {
		s.metrics.FrameReceived(s.cfg.Name, "turn_complete")
		events = append(events, TurnCompleteEvent{})
	}
	if in.goAway {
		s.logger.Warn("Server announced it will close the stream soon")
	}
	s.emit(events...)
}

func (s *Socket) completeSetup(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.phase != entities.PhaseHandshaking {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	s.lastConnected = &now
	s.attempts = 0
	s.retries = 0
	s.retry.Reset()
	state := s.transitionLocked(entities.PhaseReady)
	s.mu.Unlock()

	s.logger.Info("Setup complete, socket ready")
	s.emit(state, SetupCompleteEvent{})
}

// fail ends the attempt identified by gen and decides what comes next:
// nothing for clean or fatal closes, a delayed reconnect otherwise.
func (s *Socket) fail(gen uint64, err error, kind closeKind) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	if err != nil {
		s.lastErr = err.Error()
	}

	if kind != closeRetryable {
		state := s.transitionLocked(entities.PhaseIdle)
		s.mu.Unlock()
		if kind == closeFatal {
			s.logger.Error("Stream rejected, not retrying", zap.String("lastError", state.State.LastError))
		}
		s.emit(state)
		return
	}

	delay := s.retry.NextBackOff()
	if delay == backoff.Stop {
		state := s.transitionLocked(entities.PhaseIdle)
		s.mu.Unlock()
		s.logger.Error("Reconnect attempts exhausted",
			zap.Int("maxReconnectAttempts", s.cfg.MaxReconnectAttempts),
			zap.String("lastError", state.State.LastError))
		s.emit(state)
		return
	}

	s.retries++
	attempt := s.retries
	state := s.transitionLocked(entities.PhaseReconnecting)
	s.reconnectTimer = time.AfterFunc(delay, func() { s.reconnect(gen) })
	s.mu.Unlock()

	s.metrics.ReconnectScheduled(s.cfg.Name)
	s.logger.Info("Reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))
	s.emit(state, ReconnectScheduledEvent{Attempt: attempt, Delay: delay})
}

func (s *Socket) reconnect(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.phase != entities.PhaseReconnecting {
		s.mu.Unlock()
		return
	}
	s.reconnectTimer = nil
	next, state := s.startAttemptLocked()
	s.mu.Unlock()

	s.emit(state)
	s.dial(next)
}

func (s *Socket) write(conn *websocket.Conn, kind string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", kind, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return err
	}
	s.metrics.FrameSent(s.cfg.Name, kind)
	return nil
}

func (s *Socket) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

func (s *Socket) stopReconnectTimerLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

// transitionLocked moves to phase and returns the event announcing it.
// Events are numbered so emit can drop one overtaken by a later transition.
func (s *Socket) transitionLocked(phase entities.Phase) StateEvent {
	if s.phase != phase {
		s.logger.Debug("Phase transition", zap.String("from", string(s.phase)), zap.String("to", string(phase)))
		s.metrics.SocketPhase(s.cfg.Name, string(phase))
	}
	s.phase = phase
	s.stateSeq++
	return StateEvent{State: s.stateLocked(), seq: s.stateSeq}
}

func (s *Socket) stateLocked() entities.ConnectionState {
	return entities.NewConnectionState(s.phase, s.attempts, s.lastConnected, s.lastErr)
}

// emit delivers events in order, one batch at a time. A batch whose state
// event is older than one already delivered is stale and dropped whole.
// Listeners must not call Connect or Disconnect on the same socket
// synchronously.
func (s *Socket) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	for _, event := range events {
		if ev, ok := event.(StateEvent); ok && ev.seq != 0 {
			if ev.seq <= s.emittedSeq {
				s.logger.Debug("Dropping stale state event", zap.String("phase", string(ev.State.Phase)))
				return
			}
			s.emittedSeq = ev.seq
		}
	}

	s.listenersMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	for i, entry := range s.listeners {
		listeners[i] = entry.fn
	}
	s.listenersMu.RUnlock()

	for _, event := range events {
		for _, l := range listeners {
			l(event)
		}
	}
}
