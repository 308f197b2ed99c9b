package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// pcmOf encodes n samples of value v.
func pcmOf(v float32, n int) []byte {
	return Float32ToPCM16(constant(v, n))
}

func newRealtimePlayer(t *testing.T) (*StreamPlayer, *fakeOutput) {
	t.Helper()
	out := &fakeOutput{}
	p := NewStreamPlayer(out, 0, zaptest.NewLogger(t), nil)
	require.Equal(t, ModeRealtime, p.Start())
	assert.Equal(t, PlaybackSampleRate, out.rate)
	return p, out
}

func TestStreamPlayerZeroFills(t *testing.T) {
	p, out := newRealtimePlayer(t)

	assert.Equal(t, constant(0, 64), out.block(64), "silence before any audio")

	p.Enqueue(pcmOf(0.5, 100))
	first := out.block(64)
	assert.InDelta(t, 0.5, first[0], 1e-4)
	assert.InDelta(t, 0.5, first[63], 1e-4)
	assert.Equal(t, 36, p.Buffered())

	second := out.block(64)
	assert.InDelta(t, 0.5, second[35], 1e-4)
	assert.Equal(t, constant(0, 28), second[36:])
	assert.Zero(t, p.Buffered())
}

func TestStreamPlayerPlaysChunksInOrder(t *testing.T) {
	p, out := newRealtimePlayer(t)

	p.Enqueue(pcmOf(0.25, 10))
	p.Enqueue(pcmOf(-0.5, 10))
	block := out.block(20)
	assert.InDelta(t, 0.25, block[9], 1e-4)
	assert.InDelta(t, -0.5, block[10], 1e-4)
}

func TestStreamPlayerClear(t *testing.T) {
	p, out := newRealtimePlayer(t)

	p.Enqueue(pcmOf(0.5, 1000))
	out.block(10)
	p.Clear()
	assert.Equal(t, constant(0, 10), out.block(10), "clear applies on the next block")

	p.Enqueue(pcmOf(0.25, 10))
	assert.InDelta(t, 0.25, out.block(10)[0], 1e-4)
}

func TestStreamPlayerStopAndResume(t *testing.T) {
	p, out := newRealtimePlayer(t)

	p.Enqueue(pcmOf(0.5, 1000))
	p.Stop()
	p.Enqueue(pcmOf(0.5, 1000))
	assert.Equal(t, constant(0, 32), out.block(32))
	assert.Zero(t, p.Buffered())

	p.Resume()
	p.Enqueue(pcmOf(0.25, 32))
	assert.InDelta(t, 0.25, out.block(32)[31], 1e-4)
}

func TestStreamPlayerTurnBoundary(t *testing.T) {
	p, out := newRealtimePlayer(t)

	p.Enqueue(pcmOf(0.5, 100))
	p.EndTurn()
	// The tail of a finished turn keeps playing.
	assert.InDelta(t, 0.5, out.block(50)[49], 1e-4)

	// A new turn drops whatever the previous one left.
	p.Enqueue(pcmOf(-0.25, 10))
	block := out.block(20)
	assert.InDelta(t, -0.25, block[0], 1e-4)
	assert.Equal(t, constant(0, 10), block[10:])
}

func TestStreamPlayerAccumulateFallback(t *testing.T) {
	p := NewStreamPlayer(&fakeOutput{startErr: errNoDevice}, 24000, zaptest.NewLogger(t), nil)
	require.Equal(t, ModeAccumulate, p.Start())
	assert.Equal(t, "accumulate", p.Mode().String())

	p.Enqueue([]byte{1, 0, 2, 0, 3})
	p.Enqueue([]byte{4, 0})
	p.EndTurn()
	assert.Equal(t, []byte{1, 0, 2, 0, 4, 0}, p.Accumulated())

	pcm, rate, err := DecodeWAV(p.AccumulatedWAV())
	require.NoError(t, err)
	assert.Equal(t, 24000, rate)
	assert.Equal(t, []byte{1, 0, 2, 0, 4, 0}, pcm)

	assert.Equal(t, []byte{1, 0, 2, 0, 4, 0}, p.Drain())
	assert.Empty(t, p.Accumulated())

	p.Enqueue([]byte{5, 0})
	p.Clear()
	assert.Empty(t, p.Drain())
	assert.NoError(t, p.Close())
}

func TestStreamPlayerWithoutDevice(t *testing.T) {
	p := NewStreamPlayer(nil, 0, zaptest.NewLogger(t), nil)
	assert.Equal(t, ModeAccumulate, p.Start())
	assert.Equal(t, ModeAccumulate, p.Start())
}

func TestStreamPlayerClose(t *testing.T) {
	p, out := newRealtimePlayer(t)
	require.NoError(t, p.Close())
	assert.True(t, out.stopped)
	require.NoError(t, p.Close())
}

func TestStreamPlayerCommandsAfterCloseDoNotBlock(t *testing.T) {
	p, out := newRealtimePlayer(t)
	require.NoError(t, p.Close())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < controlQueueSize+10; i++ {
			p.Enqueue(pcmOf(0.5, 4))
			p.EndTurn()
			p.Clear()
			p.Stop()
			p.Resume()
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("control commands blocked after Close")
	}
	assert.Empty(t, p.controls)
	assert.True(t, out.stopped)
}
