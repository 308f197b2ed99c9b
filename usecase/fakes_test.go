package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amirulhamizan12/agent-ui/domain/repositories"
	"github.com/amirulhamizan12/agent-ui/internal/live"
)

const waitTimeout = 2 * time.Second

// fakeModel acks the setup frame and answers every user turn with the
// frames returned by respond.
type fakeModel struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	rejectStatus int
	respond      func(text string) [][]byte

	mu          sync.Mutex
	texts       []string
	audioChunks []string
}

func newFakeModel(t *testing.T, respond func(text string) [][]byte) *fakeModel {
	t.Helper()
	f := &fakeModel{respond: respond}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeModel) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

type clientFrame struct {
	ClientContent *struct {
		Turns []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"turns"`
	} `json:"client_content"`
	RealtimeInput *struct {
		MediaChunks []struct {
			Data string `json:"data"`
		} `json:"media_chunks"`
	} `json:"realtime_input"`
}

func (f *fakeModel) handle(w http.ResponseWriter, r *http.Request) {
	if f.rejectStatus != 0 {
		http.Error(w, "API key not valid", f.rejectStatus)
		return
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if _, _, err := conn.ReadMessage(); err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		switch {
		case frame.ClientContent != nil:
			var text string
			for _, turn := range frame.ClientContent.Turns {
				for _, part := range turn.Parts {
					text += part.Text
				}
			}
			f.mu.Lock()
			f.texts = append(f.texts, text)
			f.mu.Unlock()
			if f.respond == nil {
				continue
			}
			for _, out := range f.respond(text) {
				if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
					return
				}
			}
		case frame.RealtimeInput != nil:
			f.mu.Lock()
			for _, chunk := range frame.RealtimeInput.MediaChunks {
				f.audioChunks = append(f.audioChunks, chunk.Data)
			}
			f.mu.Unlock()
		}
	}
}

func (f *fakeModel) receivedTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeModel) receivedAudio() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.audioChunks...)
}

func textFrame(text string) []byte {
	return mustJSON(map[string]any{
		"serverContent": map[string]any{
			"modelTurn": map[string]any{"parts": []any{map[string]any{"text": text}}},
		},
	})
}

func audioFrame(pcm []byte) []byte {
	return mustJSON(map[string]any{
		"serverContent": map[string]any{
			"modelTurn": map[string]any{"parts": []any{map[string]any{
				"inlineData": map[string]any{
					"mimeType": live.AudioOutputMIMEType,
					"data":     base64.StdEncoding.EncodeToString(pcm),
				},
			}}},
		},
	})
}

func turnCompleteFrame() []byte {
	return []byte(`{"serverContent":{"turnComplete":true}}`)
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func testSocketConfig(cfg live.Config, url string) *live.Config {
	cfg.URL = url
	cfg.ReconnectBaseDelay = 10 * time.Millisecond
	cfg.MaxReconnectAttempts = 1
	cfg.DialTimeout = time.Second
	return &cfg
}

func textConfig(url string) *live.Config {
	return testSocketConfig(live.NewTextConfig("test-key"), url)
}

func speechConfig(url string) *live.Config {
	return testSocketConfig(live.NewSpeechConfig("test-key", live.SpeechConfig{}), url)
}

// fakeAutomation records calls made by the action service.
type fakeAutomation struct {
	mu sync.Mutex

	sessionErr error
	taskErr    error
	panicOn    string

	sessionsCreated int
	deleted         []string
	tasks           []repositories.CreateTaskRequest
	updates         []repositories.TaskAction
}

var _ repositories.Automation = (*fakeAutomation)(nil)

func (f *fakeAutomation) CreateSession(ctx context.Context) (*repositories.AutomationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	f.sessionsCreated++
	return &repositories.AutomationSession{
		ID:      "session-" + strconv.Itoa(f.sessionsCreated),
		Status:  "active",
		LiveURL: "https://live.example/" + strconv.Itoa(f.sessionsCreated),
	}, nil
}

func (f *fakeAutomation) DeleteSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, sessionID)
	return nil
}

func (f *fakeAutomation) CreateTask(ctx context.Context, req repositories.CreateTaskRequest) (*repositories.AutomationTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn != "" && req.Task == f.panicOn {
		panic("automation exploded")
	}
	if f.taskErr != nil {
		return nil, f.taskErr
	}
	f.tasks = append(f.tasks, req)
	return &repositories.AutomationTask{
		ID:        "task-" + strconv.Itoa(len(f.tasks)),
		SessionID: req.SessionID,
		Task:      req.Task,
		Status:    repositories.TaskStatusStarted,
	}, nil
}

func (f *fakeAutomation) GetTask(ctx context.Context, taskID string) (*repositories.AutomationTask, error) {
	return &repositories.AutomationTask{ID: taskID, Status: repositories.TaskStatusStarted}, nil
}

func (f *fakeAutomation) UpdateTask(ctx context.Context, taskID string, action repositories.TaskAction) (*repositories.AutomationTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, action)
	return &repositories.AutomationTask{ID: taskID, Status: repositories.TaskStatusStopped}, nil
}

func (f *fakeAutomation) ListTasks(ctx context.Context, sessionID string) ([]repositories.AutomationTask, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAutomation) taskRequests() []repositories.CreateTaskRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]repositories.CreateTaskRequest(nil), f.tasks...)
}

func (f *fakeAutomation) createdSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionsCreated
}
