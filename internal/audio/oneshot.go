package audio

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultPollInterval = 20 * time.Millisecond

// OneShotPlayer plays complete WAV clips, one at a time.
type OneShotPlayer struct {
	output       ClipOutput
	logger       *zap.Logger
	pollInterval time.Duration

	playMu  sync.Mutex
	mu      sync.Mutex
	current *clip
}

type clip struct {
	player ClipPlayer
	onDone func()
	cancel chan struct{}
	once   sync.Once
}

func NewOneShotPlayer(output ClipOutput, logger *zap.Logger) *OneShotPlayer {
	return &OneShotPlayer{
		output:       output,
		logger:       logger,
		pollInterval: defaultPollInterval,
	}
}

// Play stops the current clip, if any, and starts wav. onDone runs exactly
// once, when the clip ends or is stopped.
func (p *OneShotPlayer) Play(wav []byte, onDone func()) error {
	pcm, rate, err := DecodeWAV(wav)
	if err != nil {
		return err
	}
	if p.output == nil {
		return fmt.Errorf("%w: no clip output", ErrDeviceUnavailable)
	}

	p.playMu.Lock()
	defer p.playMu.Unlock()
	p.stopCurrent()

	player, err := p.output.NewClip(pcm, rate)
	if err != nil {
		return fmt.Errorf("open clip: %w", err)
	}
	c := &clip{player: player, onDone: onDone, cancel: make(chan struct{})}

	p.mu.Lock()
	p.current = c
	p.mu.Unlock()

	player.Play()
	p.logger.Debug("Clip playback started", zap.Int("bytes", len(pcm)), zap.Int("sampleRate", rate))
	go p.watch(c)
	return nil
}

// Stop ends the current clip immediately and releases it.
func (p *OneShotPlayer) Stop() {
	p.playMu.Lock()
	defer p.playMu.Unlock()
	p.stopCurrent()
}

func (p *OneShotPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

func (p *OneShotPlayer) stopCurrent() {
	p.mu.Lock()
	c := p.current
	p.mu.Unlock()
	if c != nil {
		p.finish(c, true)
	}
}

func (p *OneShotPlayer) watch(c *clip) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.cancel:
			return
		case <-ticker.C:
			if !c.player.IsPlaying() {
				p.finish(c, false)
				return
			}
		}
	}
}

func (p *OneShotPlayer) finish(c *clip, stopped bool) {
	c.once.Do(func() {
		close(c.cancel)
		if err := c.player.Close(); err != nil {
			p.logger.Debug("Failed to close clip", zap.Error(err))
		}

		p.mu.Lock()
		if p.current == c {
			p.current = nil
		}
		p.mu.Unlock()

		p.logger.Debug("Clip playback ended", zap.Bool("stopped", stopped))
		if c.onDone != nil {
			c.onDone()
		}
	})
}
