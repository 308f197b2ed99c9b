package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/amirulhamizan12/agent-ui/domain/entities"
	"github.com/amirulhamizan12/agent-ui/internal/live"
	"github.com/amirulhamizan12/agent-ui/internal/metrics"
)

var (
	// ErrNotReady is returned when a socket cannot accept frames yet.
	ErrNotReady = errors.New("connection not ready")
	// ErrConnectFailed is returned by Initialize when a socket gave up.
	ErrConnectFailed = errors.New("connection failed")
)

// ManagerConfig selects the sockets a ConnectionManager owns. At least one
// of Text and Speech must be set.
type ManagerConfig struct {
	Text         *live.Config
	Speech       *live.Config
	TextDebounce time.Duration
}

// UtteranceListener receives one debounced assistant utterance.
type UtteranceListener func(text string)

// ConnectionManager is the single send/initialize/cleanup surface over the
// text socket and the speech socket. Text streamed by the text socket is
// debounced into utterances.
type ConnectionManager struct {
	text   *live.Socket
	speech *live.Socket
	logger *zap.Logger

	debouncer *Debouncer

	mu         sync.Mutex
	releasers  []func()
	cleanedUp  bool
	listenerMu sync.RWMutex
	listeners  []UtteranceListener
}

// NewConnectionManager builds the configured sockets without connecting them.
func NewConnectionManager(cfg ManagerConfig, logger *zap.Logger, m *metrics.Metrics) (*ConnectionManager, error) {
	if cfg.Text == nil && cfg.Speech == nil {
		return nil, fmt.Errorf("at least one socket must be configured")
	}

	cm := &ConnectionManager{logger: logger}
	cm.debouncer = NewDebouncer(cfg.TextDebounce, cm.emitUtterance)

	if cfg.Text != nil {
		s, err := live.NewSocket(*cfg.Text, logger, live.WithMetrics(m))
		if err != nil {
			return nil, fmt.Errorf("failed to create text socket: %w", err)
		}
		cm.text = s
		s.AddListener(cm.handleTextEvent)
	}
	if cfg.Speech != nil {
		s, err := live.NewSocket(*cfg.Speech, logger, live.WithMetrics(m))
		if err != nil {
			return nil, fmt.Errorf("failed to create speech socket: %w", err)
		}
		cm.speech = s
	}

	logger.Info("Connection manager created",
		zap.Bool("text", cm.text != nil),
		zap.Bool("speech", cm.speech != nil),
		zap.Duration("textDebounce", cm.debouncer.window))
	return cm, nil
}

// Initialize connects every socket and blocks until all of them completed
// setup. If any socket gives up, or ctx ends first, everything is torn down
// with Cleanup and the error is returned.
func (cm *ConnectionManager) Initialize(ctx context.Context) error {
	cm.mu.Lock()
	cm.cleanedUp = false
	cm.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range cm.sockets() {
		g.Go(func() error { return waitReady(gctx, s) })
	}
	if err := g.Wait(); err != nil {
		cm.logger.Error("Initialize failed", zap.Error(err))
		cm.Cleanup()
		return fmt.Errorf("initialize: %w", err)
	}

	cm.logger.Info("All sockets ready")
	return nil
}

func waitReady(ctx context.Context, s *live.Socket) error {
	result := make(chan error, 1)
	report := func(err error) {
		select {
		case result <- err:
		default:
		}
	}
	remove := s.AddListener(func(e live.Event) {
		switch ev := e.(type) {
		case live.SetupCompleteEvent:
			report(nil)
		case live.StateEvent:
			if ev.State.Phase == entities.PhaseIdle {
				report(fmt.Errorf("%w: %s socket: %s", ErrConnectFailed, s.Name(), ev.State.LastError))
			}
		}
	})
	defer remove()

	if s.IsReady() {
		return nil
	}
	s.Connect()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendMessage sends a user turn on the text socket, or on the speech socket
// when no text socket is configured. When the socket is not ready it starts
// a reconnect and returns false without waiting.
func (cm *ConnectionManager) SendMessage(text string) bool {
	s := cm.text
	if s == nil {
		s = cm.speech
	}
	return sendOrReconnect(s, text)
}

// Speak sends text to the speech socket to be read out verbatim.
func (cm *ConnectionManager) Speak(text string) bool {
	return sendOrReconnect(cm.speech, text)
}

func sendOrReconnect(s *live.Socket, text string) bool {
	if s == nil {
		return false
	}
	if !s.IsReady() {
		s.Connect()
		return false
	}
	return s.SendText(text)
}

// SendAudioChunk forwards one base64 microphone chunk to the text socket.
// Chunks are dropped, not buffered, while the socket is not ready.
func (cm *ConnectionManager) SendAudioChunk(b64 string) bool {
	s := cm.text
	if s == nil {
		s = cm.speech
	}
	if s == nil {
		return false
	}
	return s.SendAudioChunk(b64, live.AudioInputMIMEType)
}

// AddUtteranceListener registers l for every flushed utterance.
func (cm *ConnectionManager) AddUtteranceListener(l UtteranceListener) {
	cm.listenerMu.Lock()
	defer cm.listenerMu.Unlock()
	cm.listeners = append(cm.listeners, l)
}

// OnCleanup registers a release function run by the next Cleanup.
func (cm *ConnectionManager) OnCleanup(release func()) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.releasers = append(cm.releasers, release)
}

// Cleanup cancels the debounce timer, disconnects every socket and runs
// the registered release functions. It is idempotent.
func (cm *ConnectionManager) Cleanup() {
	cm.mu.Lock()
	if cm.cleanedUp {
		cm.mu.Unlock()
		return
	}
	cm.cleanedUp = true
	releasers := cm.releasers
	cm.releasers = nil
	cm.mu.Unlock()

	cm.debouncer.Cancel()
	for _, s := range cm.sockets() {
		s.Disconnect()
	}
	for i := len(releasers) - 1; i >= 0; i-- {
		releasers[i]()
	}
	cm.logger.Info("Connection manager cleaned up")
}

func (cm *ConnectionManager) TextSocket() *live.Socket   { return cm.text }
func (cm *ConnectionManager) SpeechSocket() *live.Socket { return cm.speech }

// IsReady reports whether every configured socket is ready.
func (cm *ConnectionManager) IsReady() bool {
	for _, s := range cm.sockets() {
		if !s.IsReady() {
			return false
		}
	}
	return true
}

// State returns the state of the primary socket: text if configured, else speech.
func (cm *ConnectionManager) State() entities.ConnectionState {
	if cm.text != nil {
		return cm.text.State()
	}
	return cm.speech.State()
}

// States returns the state of every socket keyed by socket name.
func (cm *ConnectionManager) States() map[string]entities.ConnectionState {
	states := make(map[string]entities.ConnectionState, 2)
	for _, s := range cm.sockets() {
		states[s.Name()] = s.State()
	}
	return states
}

func (cm *ConnectionManager) sockets() []*live.Socket {
	var out []*live.Socket
	if cm.text != nil {
		out = append(out, cm.text)
	}
	if cm.speech != nil {
		out = append(out, cm.speech)
	}
	return out
}

func (cm *ConnectionManager) handleTextEvent(e live.Event) {
	switch ev := e.(type) {
	case live.TextEvent:
		cm.debouncer.Add(ev.Text)
	case live.TurnCompleteEvent:
		cm.debouncer.Flush()
	case live.InterruptedEvent:
		cm.debouncer.Flush()
	}
}

func (cm *ConnectionManager) emitUtterance(text string) {
	cm.logger.Debug("Utterance flushed", zap.Int("length", len(text)))

	cm.listenerMu.RLock()
	listeners := append([]UtteranceListener(nil), cm.listeners...)
	cm.listenerMu.RUnlock()

	for _, l := range listeners {
		l(text)
	}
}
