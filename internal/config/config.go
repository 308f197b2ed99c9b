package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPort               = "8080"
	defaultModel              = "models/gemini-2.0-flash-live-001"
	defaultLiveURL            = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"
	defaultVoice              = "Leda"
	defaultTextDebounce       = 100 * time.Millisecond
	defaultReconnectBaseDelay = time.Second
	defaultMaxReconnects      = 5
	maxReconnectAttempts      = 30
	defaultBrowserUseBaseURL  = "https://api.browser-use.com/api/v2"
	defaultMongoDatabase      = "agent_ui"
)

// GeminiConfig holds the settings of the realtime model connection
type GeminiConfig struct {
	APIKey               string
	Model                string
	URL                  string
	Voice                string
	SpeakingRate         *float64
	Pitch                *float64
	VolumeGainDB         *float64
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
}

// BrowserUseConfig holds the automation service settings
type BrowserUseConfig struct {
	APIKey  string
	BaseURL string
}

// MongoConfig holds transcript storage settings; an empty URI selects in-memory storage.
type MongoConfig struct {
	URI      string
	Database string
}

// Config is the process configuration
type Config struct {
	Port     string
	LogLevel string
	LogFile  string

	Gemini     GeminiConfig
	BrowserUse BrowserUseConfig
	Mongo      MongoConfig

	TextDebounce       time.Duration
	EnableSpeech       bool
	EnableAudioDevices bool
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := NewConfigFromEnv()
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// NewConfigFromEnv builds a Config from environment variables, applying defaults
func NewConfigFromEnv() (Config, error) {
	cfg := Config{
		Port:     envOr("PORT", defaultPort),
		LogLevel: envOr("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  envOr("GEMINI_MODEL", defaultModel),
			URL:    envOr("GEMINI_WS_URL", defaultLiveURL),
			Voice:  envOr("GEMINI_VOICE", defaultVoice),
		},
		BrowserUse: BrowserUseConfig{
			APIKey:  os.Getenv("BROWSER_USE_API_KEY"),
			BaseURL: envOr("BROWSER_USE_BASE_URL", defaultBrowserUseBaseURL),
		},
		Mongo: MongoConfig{
			URI:      os.Getenv("MONGODB_URI"),
			Database: envOr("MONGODB_DATABASE", defaultMongoDatabase),
		},
	}

	var err error
	if cfg.Gemini.SpeakingRate, err = optionalFloat("SPEAKING_RATE"); err != nil {
		return Config{}, err
	}
	if cfg.Gemini.Pitch, err = optionalFloat("PITCH"); err != nil {
		return Config{}, err
	}
	if cfg.Gemini.VolumeGainDB, err = optionalFloat("VOLUME_GAIN_DB"); err != nil {
		return Config{}, err
	}
	if cfg.TextDebounce, err = millis("TEXT_DEBOUNCE_MS", defaultTextDebounce); err != nil {
		return Config{}, err
	}
	if cfg.Gemini.ReconnectBaseDelay, err = millis("RECONNECT_BASE_DELAY_MS", defaultReconnectBaseDelay); err != nil {
		return Config{}, err
	}
	if cfg.Gemini.MaxReconnectAttempts, err = integer("MAX_RECONNECT_ATTEMPTS", defaultMaxReconnects); err != nil {
		return Config{}, err
	}
	if cfg.EnableSpeech, err = boolean("ENABLE_SPEECH", true); err != nil {
		return Config{}, err
	}
	if cfg.EnableAudioDevices, err = boolean("ENABLE_AUDIO_DEVICES", true); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate validates the Config
func (c Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return errors.New("GEMINI_API_KEY is required")
	}
	if c.TextDebounce <= 0 {
		return fmt.Errorf("text debounce must be positive, got %s", c.TextDebounce)
	}
	if c.Gemini.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("reconnect base delay must be positive, got %s", c.Gemini.ReconnectBaseDelay)
	}
	if c.Gemini.MaxReconnectAttempts < 0 || c.Gemini.MaxReconnectAttempts > maxReconnectAttempts {
		return fmt.Errorf("max reconnect attempts must be between 0 and %d, got %d", maxReconnectAttempts, c.Gemini.MaxReconnectAttempts)
	}
	return nil
}

// AutomationEnabled reports whether browser actions can be dispatched
func (c Config) AutomationEnabled() bool {
	return c.BrowserUse.APIKey != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func optionalFloat(key string) (*float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &v, nil
}

func millis(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func integer(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func boolean(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
