package audio

import "errors"

// ErrDeviceUnavailable wraps failures to acquire a sound device.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// CaptureConfig describes the requested microphone stream.
type CaptureConfig struct {
	SampleRate       int
	EchoCancellation bool
	AutoGainControl  bool
	NoiseSuppression bool
}

// DefaultCaptureConfig requests 16 kHz mono with all voice processing on.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:       CaptureSampleRate,
		EchoCancellation: true,
		AutoGainControl:  true,
		NoiseSuppression: true,
	}
}

// CaptureDevice delivers mono float32 samples on the device thread. The
// slice passed to onSamples is only valid during the call.
type CaptureDevice interface {
	Start(cfg CaptureConfig, onSamples func([]float32)) error
	Stop() error
}

// OutputDevice pulls mono float32 blocks from render on the device thread.
// render must fill the whole slice.
type OutputDevice interface {
	Start(sampleRate int, render func([]float32)) error
	Stop() error
}

// ClipOutput creates players for complete PCM clips.
type ClipOutput interface {
	NewClip(pcm []byte, sampleRate int) (ClipPlayer, error)
}

// ClipPlayer plays one clip. *oto.Player satisfies it.
type ClipPlayer interface {
	Play()
	IsPlaying() bool
	Close() error
}
