package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushes struct {
	mu  sync.Mutex
	out []string
}

func (f *flushes) add(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, text)
}

func (f *flushes) get() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.out...)
}

func TestDebouncerJoinsFragmentsWithinWindow(t *testing.T) {
	var got flushes
	d := NewDebouncer(100*time.Millisecond, got.add)

	d.Add("Hel")
	time.Sleep(20 * time.Millisecond)
	d.Add("lo ")
	time.Sleep(20 * time.Millisecond)
	d.Add("world")

	require.Eventually(t, func() bool { return len(got.get()) == 1 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, []string{"Hello world"}, got.get())
	assert.False(t, d.Pending())

	time.Sleep(150 * time.Millisecond)
	assert.Len(t, got.get(), 1)
}

func TestDebouncerSplitsOnQuietPeriods(t *testing.T) {
	var got flushes
	d := NewDebouncer(30*time.Millisecond, got.add)

	for _, fragment := range []string{"one", "two", "three"} {
		d.Add(fragment)
		time.Sleep(80 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return len(got.get()) == 3 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, []string{"one", "two", "three"}, got.get())
}

func TestDebouncerFlushAndCancel(t *testing.T) {
	var got flushes
	d := NewDebouncer(time.Hour, got.add)

	d.Flush()
	assert.Empty(t, got.get(), "flushing an empty buffer emits nothing")

	d.Add("")
	assert.False(t, d.Pending())

	d.Add("now")
	assert.True(t, d.Pending())
	d.Flush()
	assert.Equal(t, []string{"now"}, got.get())

	d.Add("dropped")
	d.Cancel()
	assert.False(t, d.Pending())
	d.Flush()
	assert.Equal(t, []string{"now"}, got.get())
}

func TestDebouncerDefaultsWindow(t *testing.T) {
	d := NewDebouncer(0, func(string) {})
	assert.Equal(t, DefaultTextDebounce, d.window)
}

func TestDebouncerDeliversInOrderWhileFlushIsSlow(t *testing.T) {
	var got flushes
	entered := make(chan struct{})
	release := make(chan struct{})
	d := NewDebouncer(10*time.Millisecond, func(text string) {
		if text == "first " {
			close(entered)
			<-release
		}
		got.add(text)
	})

	d.Add("first ")
	select {
	case <-entered:
	case <-time.After(waitTimeout):
		t.Fatal("timer flush did not start")
	}

	d.Add("second")
	flushed := make(chan struct{})
	go func() {
		d.Flush()
		close(flushed)
	}()

	select {
	case <-flushed:
		t.Fatal("Flush returned while an earlier delivery was still running")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)

	select {
	case <-flushed:
	case <-time.After(waitTimeout):
		t.Fatal("Flush did not return")
	}
	assert.Equal(t, []string{"first ", "second"}, got.get())
	assert.False(t, d.Pending())
}
