package audio

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestOneShot(t *testing.T) (*OneShotPlayer, *fakeClipOutput) {
	t.Helper()
	out := &fakeClipOutput{}
	p := NewOneShotPlayer(out, zaptest.NewLogger(t))
	p.pollInterval = time.Millisecond
	t.Cleanup(p.Stop)
	return p, out
}

func TestOneShotReportsCompletionOnce(t *testing.T) {
	p, out := newTestOneShot(t)
	var done atomic.Int32

	pcm := pcmOf(0.5, 10)
	require.NoError(t, p.Play(PCMToWAV(pcm, 24000), func() { done.Add(1) }))
	assert.True(t, p.IsPlaying())

	clip := out.clip(0)
	assert.Equal(t, pcm, clip.pcm)
	assert.Equal(t, 24000, out.rates[0])

	clip.playing.Store(false)
	require.Eventually(t, func() bool { return done.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, p.IsPlaying())

	p.Stop()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), done.Load())
	assert.Equal(t, int32(1), clip.closed.Load())
}

func TestOneShotReplacesCurrentClip(t *testing.T) {
	p, out := newTestOneShot(t)
	var first, second atomic.Int32

	wav := PCMToWAV(pcmOf(0.5, 10), 24000)
	require.NoError(t, p.Play(wav, func() { first.Add(1) }))
	require.NoError(t, p.Play(wav, func() { second.Add(1) }))

	assert.Equal(t, int32(1), first.Load(), "previous clip ends when a new one starts")
	assert.Equal(t, int32(1), out.clip(0).closed.Load())
	assert.True(t, out.clip(1).IsPlaying())
	assert.Zero(t, second.Load())
}

func TestOneShotStop(t *testing.T) {
	p, out := newTestOneShot(t)
	var done atomic.Int32

	require.NoError(t, p.Play(PCMToWAV(pcmOf(0.5, 10), 24000), func() { done.Add(1) }))
	p.Stop()

	assert.False(t, p.IsPlaying())
	assert.False(t, out.clip(0).IsPlaying())
	assert.Equal(t, int32(1), done.Load())
}

func TestOneShotRejectsBadInput(t *testing.T) {
	p, _ := newTestOneShot(t)
	assert.ErrorIs(t, p.Play([]byte("nope"), nil), ErrInvalidWAV)

	noOutput := NewOneShotPlayer(nil, zaptest.NewLogger(t))
	assert.ErrorIs(t, noOutput.Play(PCMToWAV(nil, 24000), nil), ErrDeviceUnavailable)

	failing := NewOneShotPlayer(&fakeClipOutput{err: errNoDevice}, zaptest.NewLogger(t))
	assert.ErrorIs(t, failing.Play(PCMToWAV(nil, 24000), nil), errNoDevice)
	assert.False(t, failing.IsPlaying())
}
