package audio

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/amirulhamizan12/agent-ui/internal/metrics"
)

const controlQueueSize = 1024

// Mode tells how a StreamPlayer renders enqueued audio.
type Mode int

const (
	// ModeRealtime plays through the output device as chunks arrive.
	ModeRealtime Mode = iota
	// ModeAccumulate buffers chunks for the caller to drain.
	ModeAccumulate
)

func (m Mode) String() string {
	if m == ModeAccumulate {
		return "accumulate"
	}
	return "realtime"
}

type controlKind int

const (
	ctlEnqueue controlKind = iota
	ctlClear
	ctlStop
	ctlResume
	ctlEndTurn
)

type control struct {
	kind    controlKind
	samples []float32
}

// StreamPlayer plays a stream of PCM chunks. Every command is a message on
// a channel that the render callback drains at the start of each block, so
// the queue itself is only touched by the device thread.
type StreamPlayer struct {
	device     OutputDevice
	sampleRate int
	logger     *zap.Logger
	metrics    *metrics.Metrics

	controls chan control
	mode     atomic.Int32
	buffered atomic.Int64
	// running is true while the device renders, i.e. something drains controls.
	running atomic.Bool

	mu      sync.Mutex
	started bool
	acc     []byte

	// Owned by the render callback.
	queue   []float32
	stopped bool
	// boundary is set by end-of-turn; the next enqueue drops the leftovers.
	boundary bool
	playing  bool
}

// NewStreamPlayer creates a player for sampleRate PCM. device may be nil,
// in which case Start selects ModeAccumulate.
func NewStreamPlayer(device OutputDevice, sampleRate int, logger *zap.Logger, m *metrics.Metrics) *StreamPlayer {
	if sampleRate == 0 {
		sampleRate = PlaybackSampleRate
	}
	return &StreamPlayer{
		device:     device,
		sampleRate: sampleRate,
		logger:     logger,
		metrics:    m,
		controls:   make(chan control, controlQueueSize),
	}
}

// Start opens the output device, falling back to ModeAccumulate when it
// cannot be opened. It returns the selected mode.
func (p *StreamPlayer) Start() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return p.Mode()
	}
	p.started = true

	if p.device == nil {
		p.logger.Info("No output device, accumulating playback audio")
		p.mode.Store(int32(ModeAccumulate))
		return ModeAccumulate
	}
	if err := p.device.Start(p.sampleRate, p.render); err != nil {
		p.logger.Warn("Output device unavailable, accumulating playback audio", zap.Error(err))
		p.mode.Store(int32(ModeAccumulate))
		return ModeAccumulate
	}
	p.mode.Store(int32(ModeRealtime))
	p.running.Store(true)
	p.logger.Info("Streaming playback started", zap.Int("sampleRate", p.sampleRate))
	return ModeRealtime
}

// Close stops the output device. Commands sent afterwards are ignored.
func (p *StreamPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}
	p.started = false
	p.running.Store(false)
	if p.Mode() == ModeRealtime && p.device != nil {
		return p.device.Stop()
	}
	return nil
}

func (p *StreamPlayer) Mode() Mode {
	return Mode(p.mode.Load())
}

// Enqueue schedules one chunk of int16 LE PCM.
func (p *StreamPlayer) Enqueue(pcm []byte) {
	if len(pcm) < 2 {
		return
	}
	if p.Mode() == ModeAccumulate {
		p.mu.Lock()
		p.acc = append(p.acc, pcm[:len(pcm)&^1]...)
		p.mu.Unlock()
		p.metrics.AudioChunk("playback", "accumulated")
		return
	}

	if !p.running.Load() {
		p.metrics.AudioChunk("playback", "dropped")
		return
	}
	select {
	case p.controls <- control{kind: ctlEnqueue, samples: PCM16ToFloat32(pcm)}:
		p.metrics.AudioChunk("playback", "queued")
	default:
		p.metrics.AudioChunk("playback", "dropped")
		p.logger.Warn("Playback control queue full, dropping chunk", zap.Int("bytes", len(pcm)))
	}
}

// Clear drops everything queued. Playback continues with the next chunk.
func (p *StreamPlayer) Clear() {
	if p.Mode() == ModeAccumulate {
		p.resetAccumulated()
		return
	}
	p.send(ctlClear)
}

// Stop silences the output and drops queued and incoming audio until Resume.
func (p *StreamPlayer) Stop() {
	if p.Mode() == ModeAccumulate {
		p.resetAccumulated()
		return
	}
	p.send(ctlStop)
}

func (p *StreamPlayer) Resume() {
	if p.Mode() == ModeAccumulate {
		return
	}
	p.send(ctlResume)
}

// EndTurn marks a turn boundary. Audio already queued still plays out; it
// is discarded if the next turn starts before it finished.
func (p *StreamPlayer) EndTurn() {
	if p.Mode() == ModeAccumulate {
		return
	}
	p.send(ctlEndTurn)
}

// Buffered returns the number of samples waiting as of the last rendered block.
func (p *StreamPlayer) Buffered() int {
	return int(p.buffered.Load())
}

// Accumulated returns a copy of the PCM collected in ModeAccumulate.
func (p *StreamPlayer) Accumulated() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.acc...)
}

// AccumulatedWAV returns the accumulated PCM as a WAV clip.
func (p *StreamPlayer) AccumulatedWAV() []byte {
	return PCMToWAV(p.Accumulated(), p.sampleRate)
}

// Drain returns the accumulated PCM and empties the buffer.
func (p *StreamPlayer) Drain() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.acc
	p.acc = nil
	return out
}

func (p *StreamPlayer) resetAccumulated() {
	p.mu.Lock()
	p.acc = nil
	p.mu.Unlock()
}

// send blocks until the render callback has room for the command. Without
// a running device nothing would drain it, so the command is dropped.
func (p *StreamPlayer) send(kind controlKind) {
	if !p.running.Load() {
		return
	}
	p.controls <- control{kind: kind}
}

// render is the device callback.
func (p *StreamPlayer) render(out []float32) {
	p.drainControls()

	n := 0
	if !p.stopped {
		n = copy(out, p.queue)
		p.queue = p.queue[n:]
	}
	clear(out[n:])

	if n < len(out) && p.playing {
		p.playing = false
		if !p.boundary && !p.stopped {
			p.metrics.PlaybackUnderrun()
		}
	} else if n > 0 {
		p.playing = true
	}
	if len(p.queue) == 0 {
		p.queue = nil
	}
	p.buffered.Store(int64(len(p.queue)))
}

func (p *StreamPlayer) drainControls() {
	for {
		select {
		case c := <-p.controls:
			p.apply(c)
		default:
			return
		}
	}
}

func (p *StreamPlayer) apply(c control) {
	switch c.kind {
	case ctlEnqueue:
		if p.stopped {
			return
		}
		if p.boundary {
			p.queue = nil
			p.boundary = false
		}
		p.queue = append(p.queue, c.samples...)
	case ctlClear:
		p.queue = nil
		p.boundary = false
	case ctlStop:
		p.stopped = true
		p.queue = nil
		p.boundary = false
	case ctlResume:
		p.stopped = false
	case ctlEndTurn:
		p.boundary = true
	}
}
