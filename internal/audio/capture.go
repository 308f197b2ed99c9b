package audio

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/amirulhamizan12/agent-ui/internal/metrics"
)

const chunkQueueSize = 16

// Chunk is one encoded capture block.
type Chunk struct {
	// Data is base64 of int16 LE PCM at the capture rate.
	Data string
	// Level is the RMS of the block before quantization.
	Level float64
	Seq   uint64
}

// ChunkSink receives chunks on the encoder's own goroutine, in order.
type ChunkSink func(Chunk)

// Encoder turns a microphone stream into base64 PCM chunks of BlockFrames
// frames each. The device thread only accumulates and encodes; delivery to
// the sink happens on a separate goroutine fed by a channel.
type Encoder struct {
	device  CaptureDevice
	cfg     CaptureConfig
	sink    ChunkSink
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewEncoder creates a stopped encoder. A zero cfg.SampleRate uses CaptureSampleRate.
func NewEncoder(device CaptureDevice, cfg CaptureConfig, sink ChunkSink, logger *zap.Logger, m *metrics.Metrics) *Encoder {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = CaptureSampleRate
	}
	return &Encoder{
		device:  device,
		cfg:     cfg,
		sink:    sink,
		logger:  logger,
		metrics: m,
	}
}

// Start acquires the device and begins delivering chunks. Calling Start on
// a running encoder does nothing. The encoder stops itself when ctx ends.
func (e *Encoder) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	if e.device == nil {
		return fmt.Errorf("%w: no capture device", ErrDeviceUnavailable)
	}

	chunks := make(chan Chunk, chunkQueueSize)
	stop := make(chan struct{})
	if err := e.device.Start(e.cfg, e.collector(chunks, stop)); err != nil {
		if stopErr := e.device.Stop(); stopErr != nil {
			e.logger.Debug("Releasing capture device after failed start", zap.Error(stopErr))
		}
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	done := make(chan struct{})
	e.running = true
	e.stop = stop
	e.done = done
	go e.pump(chunks, stop, done)
	go func() {
		select {
		case <-ctx.Done():
			e.Stop()
		case <-stop:
		}
	}()

	e.logger.Info("Microphone capture started",
		zap.Int("sampleRate", e.cfg.SampleRate),
		zap.Int("blockFrames", BlockFrames))
	return nil
}

// Stop releases the device. No chunk reaches the sink after Stop returns.
// It is safe to call at any time and more than once, but not from the sink.
func (e *Encoder) Stop() {
	e.mu.Lock()
	done := e.done
	if e.running {
		e.running = false
		close(e.stop)
		if err := e.device.Stop(); err != nil {
			e.logger.Warn("Failed to stop capture device", zap.Error(err))
		}
		e.logger.Info("Microphone capture stopped")
	}
	e.mu.Unlock()

	if done != nil {
		<-done
	}
}

// IsRunning reports whether the device is capturing.
func (e *Encoder) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// collector returns the device callback. It owns the partial block and
// never blocks: a chunk that does not fit in the queue is dropped.
func (e *Encoder) collector(chunks chan<- Chunk, stop <-chan struct{}) func([]float32) {
	block := make([]float32, 0, BlockFrames)
	var seq uint64

	return func(samples []float32) {
		for len(samples) > 0 {
			n := min(BlockFrames-len(block), len(samples))
			block = append(block, samples[:n]...)
			samples = samples[n:]
			if len(block) < BlockFrames {
				return
			}

			chunk := Chunk{Data: EncodeChunk(block), Level: Level(block), Seq: seq}
			seq++
			block = block[:0]

			select {
			case <-stop:
				return
			default:
			}
			select {
			case chunks <- chunk:
				e.metrics.AudioChunk("capture", "queued")
			default:
				e.metrics.AudioChunk("capture", "dropped")
			}
		}
	}
}

func (e *Encoder) pump(chunks <-chan Chunk, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case chunk := <-chunks:
			select {
			case <-stop:
				return
			default:
			}
			if e.sink != nil {
				e.sink(chunk)
			}
		}
	}
}
