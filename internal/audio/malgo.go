package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// MalgoBackend opens capture and playback devices through miniaudio.
type MalgoBackend struct {
	ctx    *malgo.AllocatedContext
	logger *zap.Logger
}

func NewMalgoBackend(logger *zap.Logger) (*MalgoBackend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", zap.String("message", message))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return &MalgoBackend{ctx: ctx, logger: logger}, nil
}

// Close releases the miniaudio context. Devices must be stopped first.
func (b *MalgoBackend) Close() error {
	if err := b.ctx.Uninit(); err != nil {
		return err
	}
	b.ctx.Free()
	return nil
}

func (b *MalgoBackend) Capture() CaptureDevice {
	return &malgoCapture{ctx: b.ctx.Context, logger: b.logger}
}

func (b *MalgoBackend) Output() OutputDevice {
	return &malgoOutput{ctx: b.ctx.Context, logger: b.logger}
}

type malgoCapture struct {
	ctx    malgo.Context
	logger *zap.Logger

	mu     sync.Mutex
	device *malgo.Device
}

func (c *malgoCapture) Start(cfg CaptureConfig, onSamples func([]float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		return fmt.Errorf("capture device already started")
	}
	if cfg.EchoCancellation || cfg.AutoGainControl || cfg.NoiseSuppression {
		c.logger.Info("Voice processing requested but not available from miniaudio",
			zap.Bool("echoCancellation", cfg.EchoCancellation),
			zap.Bool("autoGainControl", cfg.AutoGainControl),
			zap.Bool("noiseSuppression", cfg.NoiseSuppression))
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)

	var scratch []float32
	device, err := malgo.InitDevice(c.ctx, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			scratch = bytesToFloat32(scratch, input)
			onSamples(scratch)
		},
	})
	if err != nil {
		return err
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return err
	}
	c.device = device
	return nil
}

func (c *malgoCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return nil
	}
	err := c.device.Stop()
	c.device.Uninit()
	c.device = nil
	return err
}

type malgoOutput struct {
	ctx    malgo.Context
	logger *zap.Logger

	mu     sync.Mutex
	device *malgo.Device
}

func (o *malgoOutput) Start(sampleRate int, render func([]float32)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.device != nil {
		return fmt.Errorf("output device already started")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)

	var block []float32
	device, err := malgo.InitDevice(o.ctx, deviceConfig, malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frames uint32) {
			if cap(block) < int(frames) {
				block = make([]float32, frames)
			}
			block = block[:frames]
			render(block)
			float32ToBytes(output, block)
		},
	})
	if err != nil {
		return err
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return err
	}
	o.device = device
	return nil
}

func (o *malgoOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.device == nil {
		return nil
	}
	err := o.device.Stop()
	o.device.Uninit()
	o.device = nil
	return err
}
