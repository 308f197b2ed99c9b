package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/amirulhamizan12/agent-ui/domain/entities"
	"github.com/amirulhamizan12/agent-ui/domain/repositories"
	"github.com/amirulhamizan12/agent-ui/internal/action"
	"github.com/amirulhamizan12/agent-ui/internal/audio"
	"github.com/amirulhamizan12/agent-ui/internal/live"
)

const dispatchTimeout = 2 * time.Minute

var (
	ErrEmptyMessage       = errors.New("message text is empty")
	ErrNoAudio            = errors.New("message has no audio")
	ErrMessageNotFound    = errors.New("message not found")
	ErrMicrophoneDisabled = errors.New("microphone is not available")
)

// Event kinds published to the Notifier.
const (
	EventConnection   = "connection"
	EventUtterance    = "utterance"
	EventMessage      = "message"
	EventDispatch     = "dispatch"
	EventAudioStarted = "audio_started"
	EventAudioEnded   = "audio_ended"
	EventMicLevel     = "mic_level"
)

// Notifier receives UI events.
type Notifier interface {
	Notify(kind string, payload any)
}

// AudioPlayer plays streamed assistant speech.
type AudioPlayer interface {
	Enqueue(pcm []byte)
	Clear()
	Stop()
	Resume()
	EndTurn()
}

// ClipPlayer replays a stored message clip.
type ClipPlayer interface {
	Play(wav []byte, onDone func()) error
	Stop()
	IsPlaying() bool
}

// Microphone streams capture chunks while running.
type Microphone interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// ConversationDeps are the collaborators of a ConversationService. Only
// Manager and Actions are required.
type ConversationDeps struct {
	Manager    *ConnectionManager
	Actions    *ActionService
	Repository repositories.ConversationRepository
	Player     AudioPlayer
	Clips      ClipPlayer
	Microphone Microphone
	Notifier   Notifier
}

// UtteranceEvent is published for every assistant utterance.
type UtteranceEvent struct {
	Text   string                `json:"text"`
	Action entities.ParsedAction `json:"action"`
}

// ConnectionEvent is published on every socket state change.
type ConnectionEvent struct {
	Socket string                   `json:"socket"`
	State  entities.ConnectionState `json:"state"`
}

// ConversationService orchestrates the conversation flow: user text and
// microphone audio go to the model, assistant utterances are parsed for
// actions, spoken through the speech socket and recorded in the transcript.
type ConversationService struct {
	manager  *ConnectionManager
	actions  *ActionService
	repo     repositories.ConversationRepository
	player   AudioPlayer
	clips    ClipPlayer
	mic      Microphone
	notifier Notifier
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	conversation *entities.Conversation
	// pending holds spoken replies waiting for their audio turn to finish.
	pending   []string
	turnAudio []byte
	speaking  bool
}

// NewConversationService wires the service to the manager's sockets.
func NewConversationService(deps ConversationDeps, logger *zap.Logger) (*ConversationService, error) {
	if deps.Manager == nil || deps.Actions == nil {
		return nil, fmt.Errorf("connection manager and action service are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &ConversationService{
		manager:  deps.Manager,
		actions:  deps.Actions,
		repo:     deps.Repository,
		player:   deps.Player,
		clips:    deps.Clips,
		mic:      deps.Microphone,
		notifier: deps.Notifier,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	s.manager.AddUtteranceListener(s.handleUtterance)
	for _, socket := range []*live.Socket{s.manager.TextSocket(), s.manager.SpeechSocket()} {
		if socket == nil {
			continue
		}
		name := socket.Name()
		socket.AddListener(func(e live.Event) {
			if ev, ok := e.(live.StateEvent); ok {
				s.notify(EventConnection, ConnectionEvent{Socket: name, State: ev.State})
			}
		})
	}
	if speech := s.manager.SpeechSocket(); speech != nil {
		speech.AddListener(s.handleSpeechEvent)
	}
	return s, nil
}

// SendMessage records a user message and sends it to the model. It fails
// with ErrNotReady, after starting a reconnect, when the socket is not ready.
func (s *ConversationService) SendMessage(ctx context.Context, text string) (entities.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return entities.Message{}, ErrEmptyMessage
	}
	if !s.manager.SendMessage(text) {
		return entities.Message{}, ErrNotReady
	}
	if s.player != nil {
		s.player.Resume()
	}

	msg := entities.NewMessage(entities.RoleHuman, text, nil)
	s.record(ctx, msg)
	return msg, nil
}

// Speak reads text out through the speech socket without recording it.
func (s *ConversationService) Speak(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if s.manager.SpeechSocket() == nil || !s.manager.Speak(text) {
		return ErrNotReady
	}
	if s.player != nil {
		s.player.Resume()
	}
	return nil
}

// StopAudio silences streamed speech and any replayed clip immediately.
func (s *ConversationService) StopAudio() {
	if s.player != nil {
		s.player.Stop()
	}
	if s.clips != nil {
		s.clips.Stop()
	}

	s.mu.Lock()
	wasSpeaking := s.speaking
	s.speaking = false
	s.turnAudio = nil
	s.mu.Unlock()

	if wasSpeaking {
		s.notify(EventAudioEnded, nil)
	}
}

func (s *ConversationService) StartMicrophone(ctx context.Context) error {
	if s.mic == nil {
		return ErrMicrophoneDisabled
	}
	return s.mic.Start(ctx)
}

func (s *ConversationService) StopMicrophone() {
	if s.mic != nil {
		s.mic.Stop()
	}
}

func (s *ConversationService) MicrophoneRunning() bool {
	return s.mic != nil && s.mic.IsRunning()
}

// HandleMicChunk is the capture sink: it forwards the chunk to the model
// and publishes the input level.
func (s *ConversationService) HandleMicChunk(chunk audio.Chunk) {
	s.manager.SendAudioChunk(chunk.Data)
	s.notify(EventMicLevel, chunk.Level)
}

// PlayMessage replays the stored audio of message id.
func (s *ConversationService) PlayMessage(ctx context.Context, id string) error {
	if s.clips == nil {
		return audio.ErrDeviceUnavailable
	}
	conversation, err := s.Conversation(ctx)
	if err != nil {
		return err
	}
	msg, ok := conversation.FindMessage(id)
	if !ok {
		return ErrMessageNotFound
	}
	if !msg.HasAudio() {
		return ErrNoAudio
	}

	if err := s.clips.Play(msg.AudioData, func() {
		s.notify(EventAudioEnded, map[string]string{"message_id": id})
	}); err != nil {
		return err
	}
	s.notify(EventAudioStarted, map[string]string{"message_id": id})
	return nil
}

// Conversation returns the current transcript, loading the latest
// continuable one from the repository when none is held.
func (s *ConversationService) Conversation(ctx context.Context) (*entities.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureConversationLocked(ctx); err != nil {
		return nil, err
	}
	copied := *s.conversation
	copied.Messages = append([]entities.Message(nil), s.conversation.Messages...)
	return &copied, nil
}

func (s *ConversationService) ConnectionStates() map[string]entities.ConnectionState {
	return s.manager.States()
}

// Close stops the microphone and waits for in-flight dispatches.
func (s *ConversationService) Close() {
	s.StopMicrophone()
	s.cancel()
	s.wg.Wait()
}

func (s *ConversationService) handleUtterance(text string) {
	parsed := action.Parse(text)
	s.notify(EventUtterance, UtteranceEvent{Text: text, Action: parsed})
	s.logger.Info("Assistant utterance",
		zap.String("action", string(parsed.Kind)),
		zap.Int("length", len(text)))

	if reply := strings.TrimSpace(parsed.CleanedText); reply != "" {
		s.reply(reply)
	}
	if parsed.Kind == entities.ActionBrowser {
		s.dispatch(parsed)
	}
}

// reply speaks the text when a speech socket is available; the message is
// recorded once its audio turn completes. Otherwise it is recorded now.
func (s *ConversationService) reply(text string) {
	if s.manager.SpeechSocket() != nil {
		s.mu.Lock()
		s.pending = append(s.pending, text)
		s.mu.Unlock()

		if s.manager.Speak(text) {
			if s.player != nil {
				s.player.Resume()
			}
			return
		}

		s.mu.Lock()
		s.pending = s.pending[:len(s.pending)-1]
		s.mu.Unlock()
		s.logger.Warn("Speech socket not ready, reply is text only")
	}
	s.record(s.ctx, entities.NewMessage(entities.RoleAssistant, text, nil))
}

func (s *ConversationService) dispatch(parsed entities.ParsedAction) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, dispatchTimeout)
		defer cancel()

		result := s.actions.Dispatch(ctx, parsed)
		s.notify(EventDispatch, result)
		if result.Success {
			if result.SessionID != "" {
				s.linkSession(ctx, result.SessionID)
			}
			return
		}
		s.record(ctx, entities.NewMessage(entities.RoleAssistant,
			"I couldn't start that browser task: "+result.Error, nil))
	}()
}

func (s *ConversationService) handleSpeechEvent(e live.Event) {
	switch ev := e.(type) {
	case live.AudioEvent:
		if s.player != nil {
			s.player.Enqueue(ev.Data)
		}
		s.mu.Lock()
		started := !s.speaking
		s.speaking = true
		s.turnAudio = append(s.turnAudio, ev.Data...)
		s.mu.Unlock()
		if started {
			s.notify(EventAudioStarted, nil)
		}

	case live.TurnCompleteEvent:
		if s.player != nil {
			s.player.EndTurn()
		}
		s.mu.Lock()
		pcm := s.turnAudio
		wasSpeaking := s.speaking
		s.turnAudio = nil
		s.speaking = false
		var text string
		if len(s.pending) > 0 {
			text = s.pending[0]
			s.pending = s.pending[1:]
		}
		s.mu.Unlock()

		if text != "" {
			var wav []byte
			if len(pcm) > 0 {
				wav = audio.PCMToWAV(pcm, audio.PlaybackSampleRate)
			}
			s.record(s.ctx, entities.NewMessage(entities.RoleAssistant, text, wav))
		}
		if wasSpeaking {
			s.notify(EventAudioEnded, nil)
		}

	case live.InterruptedEvent:
		if s.player != nil {
			s.player.Clear()
		}
		s.mu.Lock()
		s.turnAudio = nil
		s.mu.Unlock()
	}
}

func (s *ConversationService) record(ctx context.Context, msg entities.Message) {
	s.mu.Lock()
	if err := s.ensureConversationLocked(ctx); err != nil {
		s.mu.Unlock()
		s.logger.Error("Failed to load conversation", zap.Error(err))
		s.notify(EventMessage, msg)
		return
	}
	s.conversation.AddMessage(msg)
	snapshot := *s.conversation
	s.mu.Unlock()

	s.notify(EventMessage, msg)
	if s.repo == nil {
		return
	}
	if err := s.repo.Update(ctx, &snapshot); err != nil {
		s.logger.Error("Failed to save conversation",
			zap.String("conversationID", snapshot.ID),
			zap.Error(err))
	}
}

func (s *ConversationService) linkSession(ctx context.Context, sessionID string) {
	s.mu.Lock()
	if s.conversation == nil || s.conversation.AutomationSessionID == sessionID {
		s.mu.Unlock()
		return
	}
	s.conversation.AutomationSessionID = sessionID
	snapshot := *s.conversation
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Update(ctx, &snapshot); err != nil {
			s.logger.Error("Failed to link automation session", zap.Error(err))
		}
	}
}

// ensureConversationLocked makes s.conversation a conversation that can
// take another message: the current one, the latest stored one, or a new one.
func (s *ConversationService) ensureConversationLocked(ctx context.Context) error {
	if s.conversation.CanContinue() {
		return nil
	}
	if s.repo != nil {
		latest, err := s.repo.GetLatest(ctx)
		if err != nil {
			return fmt.Errorf("failed to load latest conversation: %w", err)
		}
		if latest.CanContinue() {
			s.conversation = latest
			return nil
		}
	}

	conversation := entities.NewConversation()
	if s.repo != nil {
		if err := s.repo.Create(ctx, conversation); err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
	}
	s.logger.Info("Started new conversation", zap.String("conversationID", conversation.ID))
	s.conversation = conversation
	return nil
}

func (s *ConversationService) notify(kind string, payload any) {
	if s.notifier != nil {
		s.notifier.Notify(kind, payload)
	}
}
