package live

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"google.golang.org/genai"
)

const (
	DefaultModel         = "models/gemini-2.0-flash-live-001"
	DefaultURL           = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"
	DefaultVoice         = "Leda"
	DefaultReconnectBase = time.Second
	DefaultMaxReconnects = 5
	// MaxReconnectLimit bounds MaxReconnectAttempts so the last delay stays finite.
	MaxReconnectLimit = 30

	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

// SpeechConfig selects the synthesized voice of an audio-modality socket
type SpeechConfig struct {
	Voice        string
	SpeakingRate *float64
	Pitch        *float64
	VolumeGainDB *float64
}

// Clamped returns a copy with every parameter forced into the range the service accepts.
func (s SpeechConfig) Clamped() SpeechConfig {
	out := SpeechConfig{Voice: s.Voice}
	if out.Voice == "" {
		out.Voice = DefaultVoice
	}
	out.SpeakingRate = clampPtr(s.SpeakingRate, 0.25, 4)
	out.Pitch = clampPtr(s.Pitch, -20, 20)
	out.VolumeGainDB = clampPtr(s.VolumeGainDB, -96, 16)
	return out
}

func clampPtr(v *float64, lo, hi float64) *float64 {
	if v == nil {
		return nil
	}
	c := min(max(*v, lo), hi)
	return &c
}

// Config parameterizes one streaming socket. Text and speech sockets
// differ only in Modality and the generation parameters.
type Config struct {
	// Name labels logs and metrics, e.g. "text" or "speech".
	Name              string
	URL               string
	APIKey            string
	Model             string
	Modality          genai.Modality
	SystemInstruction string
	Temperature       *float64
	// Speech is required for genai.ModalityAudio and ignored otherwise.
	Speech *SpeechConfig

	ReconnectBaseDelay time.Duration
	// MaxReconnectAttempts is the number of retries after a drop; 0 disables
	// reconnecting.
	MaxReconnectAttempts int
	DialTimeout          time.Duration
	WriteTimeout         time.Duration
}

// NewTextConfig returns the configuration of the text-modality agent socket.
func NewTextConfig(apiKey string) Config {
	return Config{
		Name:                 "text",
		URL:                  DefaultURL,
		APIKey:               apiKey,
		Model:                DefaultModel,
		Modality:             genai.ModalityText,
		SystemInstruction:    AgentInstruction,
		MaxReconnectAttempts: DefaultMaxReconnects,
	}
}

// NewSpeechConfig returns the configuration of the audio-modality repeater socket.
func NewSpeechConfig(apiKey string, speech SpeechConfig) Config {
	return Config{
		Name:                 "speech",
		URL:                  DefaultURL,
		APIKey:               apiKey,
		Model:                DefaultModel,
		Modality:             genai.ModalityAudio,
		SystemInstruction:    SpeechInstruction,
		Temperature:          genai.Ptr(0.0),
		Speech:               &speech,
		MaxReconnectAttempts: DefaultMaxReconnects,
	}
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = string(c.Modality)
	}
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = DefaultReconnectBase
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.Modality == genai.ModalityAudio {
		speech := SpeechConfig{}
		if c.Speech != nil {
			speech = *c.Speech
		}
		speech = speech.Clamped()
		c.Speech = &speech
	}
}

// Validate validates the Config
func (c Config) Validate() error {
	switch c.Modality {
	case genai.ModalityText, genai.ModalityAudio:
	default:
		return fmt.Errorf("unsupported response modality %q", c.Modality)
	}
	if c.APIKey == "" {
		return errors.New("api key is required")
	}
	if c.MaxReconnectAttempts < 0 || c.MaxReconnectAttempts > MaxReconnectLimit {
		return fmt.Errorf("max reconnect attempts must be between 0 and %d, got %d", MaxReconnectLimit, c.MaxReconnectAttempts)
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	return nil
}

func (c Config) endpoint() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", c.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
