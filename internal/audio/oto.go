package audio

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// OtoOutput plays clips through an oto context. The context is created on
// the first clip because oto allows one per process and fixes its rate.
type OtoOutput struct {
	logger *zap.Logger

	mu   sync.Mutex
	ctx  *oto.Context
	rate int
}

func NewOtoOutput(logger *zap.Logger) *OtoOutput {
	return &OtoOutput{logger: logger}
}

func (o *OtoOutput) NewClip(pcm []byte, sampleRate int) (ClipPlayer, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctx == nil {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		<-ready
		o.ctx = ctx
		o.rate = sampleRate
		o.logger.Info("Clip output opened", zap.Int("sampleRate", sampleRate))
	}
	if sampleRate != o.rate {
		return nil, fmt.Errorf("clip rate %d does not match output rate %d", sampleRate, o.rate)
	}

	return o.ctx.NewPlayer(bytes.NewReader(pcm)), nil
}
