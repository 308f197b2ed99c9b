package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/amirulhamizan12/agent-ui/domain/entities"
	"github.com/amirulhamizan12/agent-ui/domain/repositories"
	"github.com/amirulhamizan12/agent-ui/internal/action"
)

func browserAction(command string) entities.ParsedAction {
	return entities.ParsedAction{Kind: entities.ActionBrowser, Command: &command}
}

func TestDispatchNonBrowserActions(t *testing.T) {
	automation := &fakeAutomation{}
	svc := NewActionService(automation, zaptest.NewLogger(t), nil)

	for _, text := range []string{"just talking", `ok <action>browser("idle")</action>`} {
		result := svc.Dispatch(context.Background(), action.Parse(text))
		assert.True(t, result.Success, text)
		assert.Empty(t, result.TaskID)
	}
	assert.Zero(t, automation.createdSessions())
	assert.Empty(t, automation.taskRequests())
}

func TestDispatchRequiresCommand(t *testing.T) {
	svc := NewActionService(&fakeAutomation{}, zaptest.NewLogger(t), nil)

	result := svc.Dispatch(context.Background(), browserAction(""))
	assert.False(t, result.Success)
	assert.Equal(t, entities.ActionBrowser, result.Kind)
	assert.NotEmpty(t, result.Error)
}

func TestDispatchWithoutAutomation(t *testing.T) {
	svc := NewActionService(nil, zaptest.NewLogger(t), nil)
	assert.False(t, svc.Enabled())

	result := svc.Dispatch(context.Background(), browserAction("open example.com"))
	assert.False(t, result.Success)
	assert.Equal(t, ErrAutomationDisabled.Error(), result.Error)

	_, err := svc.Task(context.Background(), "task-1")
	assert.ErrorIs(t, err, ErrAutomationDisabled)
	_, err = svc.ControlTask(context.Background(), "task-1", repositories.TaskActionStop)
	assert.ErrorIs(t, err, ErrAutomationDisabled)
	assert.ErrorIs(t, svc.EndSession(context.Background(), "session-1"), ErrAutomationDisabled)
}

func TestDispatchReusesOneSession(t *testing.T) {
	automation := &fakeAutomation{}
	svc := NewActionService(automation, zaptest.NewLogger(t), nil)
	require.True(t, svc.Enabled())

	first := svc.Dispatch(context.Background(), browserAction("search for flights"))
	second := svc.Dispatch(context.Background(), browserAction("open the first result"))

	require.True(t, first.Success, first.Error)
	require.True(t, second.Success, second.Error)
	assert.Equal(t, "session-1", first.SessionID)
	assert.Equal(t, "session-1", second.SessionID)
	assert.Equal(t, "https://live.example/1", first.SessionLiveURL)
	assert.Equal(t, "task-1", first.TaskID)
	assert.Equal(t, "task-2", second.TaskID)
	assert.Equal(t, 1, automation.createdSessions())

	requests := automation.taskRequests()
	require.Len(t, requests, 2)
	assert.Equal(t, "search for flights", requests[0].Task)
	assert.Equal(t, "session-1", requests[0].SessionID)
	assert.Equal(t, defaultMaxSteps, requests[0].MaxSteps)
	assert.True(t, requests[0].HighlightElements)
	assert.True(t, requests[0].Vision)

	session := svc.CurrentSession()
	require.NotNil(t, session)
	assert.Equal(t, "session-1", session.ID)
}

func TestDispatchConcurrentCallsShareSession(t *testing.T) {
	automation := &fakeAutomation{}
	svc := NewActionService(automation, zaptest.NewLogger(t), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Dispatch(context.Background(), browserAction("scroll down"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, automation.createdSessions())
	assert.Len(t, automation.taskRequests(), 8)
}

func TestDispatchSessionFailureIsRetriedNextTime(t *testing.T) {
	automation := &fakeAutomation{sessionErr: errors.New("quota exceeded")}
	svc := NewActionService(automation, zaptest.NewLogger(t), nil)

	result := svc.Dispatch(context.Background(), browserAction("open mail"))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "quota exceeded")
	assert.Nil(t, svc.CurrentSession())

	automation.mu.Lock()
	automation.sessionErr = nil
	automation.mu.Unlock()

	result = svc.Dispatch(context.Background(), browserAction("open mail"))
	assert.True(t, result.Success, result.Error)
}

func TestDispatchTaskFailure(t *testing.T) {
	automation := &fakeAutomation{taskErr: errors.New("bad request")}
	svc := NewActionService(automation, zaptest.NewLogger(t), nil)

	result := svc.Dispatch(context.Background(), browserAction("open mail"))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "bad request")
	assert.Equal(t, "session-1", result.SessionID, "the session stays open")
}

func TestDispatchRecoversPanic(t *testing.T) {
	automation := &fakeAutomation{panicOn: "explode"}
	svc := NewActionService(automation, zaptest.NewLogger(t), nil)

	var result DispatchResult
	require.NotPanics(t, func() {
		result = svc.Dispatch(context.Background(), browserAction("explode"))
	})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "automation exploded")
}

func TestResetSession(t *testing.T) {
	automation := &fakeAutomation{}
	svc := NewActionService(automation, zaptest.NewLogger(t), nil)

	assert.ErrorIs(t, svc.ResetSession(context.Background()), ErrNoSession)

	require.True(t, svc.Dispatch(context.Background(), browserAction("open docs")).Success)
	require.NoError(t, svc.ResetSession(context.Background()))
	assert.Nil(t, svc.CurrentSession())
	assert.Equal(t, []string{"session-1"}, automation.deleted)

	result := svc.Dispatch(context.Background(), browserAction("open docs again"))
	assert.Equal(t, "session-2", result.SessionID)
}

func TestEndSessionForgetsCurrent(t *testing.T) {
	automation := &fakeAutomation{}
	svc := NewActionService(automation, zaptest.NewLogger(t), nil)
	require.True(t, svc.Dispatch(context.Background(), browserAction("open docs")).Success)

	require.NoError(t, svc.EndSession(context.Background(), "other"))
	assert.NotNil(t, svc.CurrentSession())

	require.NoError(t, svc.EndSession(context.Background(), "session-1"))
	assert.Nil(t, svc.CurrentSession())
	assert.Equal(t, []string{"other", "session-1"}, automation.deleted)
}

func TestControlTaskAndKeepAlive(t *testing.T) {
	automation := &fakeAutomation{}
	svc := NewActionService(automation, zaptest.NewLogger(t), nil)

	task, err := svc.ControlTask(context.Background(), "task-9", repositories.TaskActionPause)
	require.NoError(t, err)
	assert.Equal(t, "task-9", task.ID)
	assert.Equal(t, []repositories.TaskAction{repositories.TaskActionPause}, automation.updates)

	task, err = svc.KeepAlive(context.Background(), "task-9")
	require.NoError(t, err)
	assert.Equal(t, repositories.TaskStatusStarted, task.Status)
}

func TestRecentTasks(t *testing.T) {
	automation := &fakeAutomation{}
	svc := NewActionService(automation, zaptest.NewLogger(t), nil)
	assert.Empty(t, svc.RecentTasks())

	require.True(t, svc.Dispatch(context.Background(), browserAction("first")).Success)
	require.True(t, svc.Dispatch(context.Background(), browserAction("second")).Success)

	recent := svc.RecentTasks()
	require.Len(t, recent, 2)
	assert.Equal(t, "second", recent[0].Task)
	assert.Equal(t, "first", recent[1].Task)

	// A status refresh keeps the instruction and moves the task to the front.
	task, err := svc.ControlTask(context.Background(), "task-1", repositories.TaskActionStop)
	require.NoError(t, err)
	assert.Equal(t, "first", task.Task)

	recent = svc.RecentTasks()
	assert.Equal(t, "task-1", recent[0].ID)
	assert.Equal(t, repositories.TaskStatusStopped, recent[0].Status)
	assert.Equal(t, "session-1", recent[0].SessionID)
}

func TestControlTaskRejectsUnknownAction(t *testing.T) {
	automation := &fakeAutomation{}
	svc := NewActionService(automation, zaptest.NewLogger(t), nil)

	_, err := svc.ControlTask(context.Background(), "task-1", repositories.TaskAction("explode"))
	assert.Error(t, err)
	assert.Empty(t, automation.updates)
}
