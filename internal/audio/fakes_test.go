package audio

import (
	"errors"
	"sync"
	"sync/atomic"
)

type fakeCapture struct {
	mu        sync.Mutex
	onSamples func([]float32)
	cfg       CaptureConfig
	startErr  error
	starts    int
	stops     int
}

func (f *fakeCapture) Start(cfg CaptureConfig, onSamples func([]float32)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.cfg = cfg
	f.onSamples = onSamples
	return nil
}

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.onSamples = nil
	return nil
}

// push feeds samples as the device thread would; it is a no-op once stopped.
func (f *fakeCapture) push(samples []float32) {
	f.mu.Lock()
	cb := f.onSamples
	f.mu.Unlock()
	if cb != nil {
		cb(samples)
	}
}

// callback returns the registered device callback.
func (f *fakeCapture) callback() func([]float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onSamples
}

type fakeOutput struct {
	render   func([]float32)
	rate     int
	startErr error
	stopped  bool
}

func (f *fakeOutput) Start(sampleRate int, render func([]float32)) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.rate = sampleRate
	f.render = render
	return nil
}

func (f *fakeOutput) Stop() error {
	f.stopped = true
	return nil
}

func (f *fakeOutput) block(frames int) []float32 {
	out := make([]float32, frames)
	for i := range out {
		out[i] = 99 // render must overwrite every sample
	}
	f.render(out)
	return out
}

type fakeClip struct {
	playing atomic.Bool
	closed  atomic.Int32
	pcm     []byte
}

func (c *fakeClip) Play()           { c.playing.Store(true) }
func (c *fakeClip) IsPlaying() bool { return c.playing.Load() }
func (c *fakeClip) Close() error {
	c.closed.Add(1)
	c.playing.Store(false)
	return nil
}

type fakeClipOutput struct {
	mu    sync.Mutex
	clips []*fakeClip
	rates []int
	err   error
}

func (o *fakeClipOutput) NewClip(pcm []byte, sampleRate int) (ClipPlayer, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	c := &fakeClip{pcm: pcm}
	o.clips = append(o.clips, c)
	o.rates = append(o.rates, sampleRate)
	return c, nil
}

func (o *fakeClipOutput) clip(i int) *fakeClip {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clips[i]
}

var errNoDevice = errors.New("no such device")

func constant(v float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}
