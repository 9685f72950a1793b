package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/yegors/vocode-client/internal/audio"
	"github.com/yegors/vocode-client/internal/wire"
	"github.com/yegors/vocode-client/pkg/logger"
)

// Defaults
const (
	DefaultVocodeBaseURL     = "api.vocode.dev"
	DefaultChunkSize         = 2048
	DefaultTimeSliceMS       = 10
	DefaultConnectTimeoutSec = 10
	DefaultSampleRate        = 48000
	DefaultListenAddr        = "127.0.0.1:8089"
)

// APIKeyEnv overrides vocode.api_key when set
const APIKeyEnv = "VOCODE_API_KEY"

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid config")

// Config is the file-level configuration
type Config struct {
	Logging     LoggingConfig     `toml:"logging"`
	Server      ServerConfig      `toml:"server"`
	AudioDevice AudioDeviceConfig `toml:"audio_device"`
	Session     SessionConfig     `toml:"session"`

	// Self-hosted mode
	SelfHosted *SelfHostedConfig `toml:"self_hosted"`

	// Hosted mode: all four sections must be present
	Vocode      *VocodeConfig  `toml:"vocode"`
	Transcriber map[string]any `toml:"transcriber"`
	Agent       map[string]any `toml:"agent"`
	Synthesizer map[string]any `toml:"synthesizer"`

	conversation Conversation
}

// LoggingConfig configures pkg/logger
type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// ServerConfig configures the local HTTP control surface
type ServerConfig struct {
	ListenAddr  string   `toml:"listen_addr"`
	CORSOrigins []string `toml:"cors_origins"`
}

// AudioDeviceConfig selects and tunes the audio devices
type AudioDeviceConfig struct {
	InputDeviceID      string `toml:"input_device_id"`
	OutputSamplingRate int    `toml:"output_sampling_rate"`
	Speaker            string `toml:"speaker"` // "ffplay" or "null"
	LoopInput          bool   `toml:"loop_input"`
}

// SessionConfig tunes the session runtime
type SessionConfig struct {
	Runtime               string `toml:"runtime"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
	DefaultSampleRate     int    `toml:"default_sample_rate"`
}

// SelfHostedConfig points the session at a self-hosted backend
type SelfHostedConfig struct {
	BackendURL          string `toml:"backend_url"`
	ChunkSize           int    `toml:"chunk_size"`
	Downsampling        *int   `toml:"downsampling"`
	TimeSliceMS         int    `toml:"time_slice_ms"`
	ConversationID      string `toml:"conversation_id"`
	SubscribeTranscript *bool  `toml:"subscribe_transcript"`
}

// VocodeConfig is the hosted API connection
type VocodeConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	ConversationID string `toml:"conversation_id"`
}

// Load reads a TOML file, applies defaults and the environment, and validates it
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(string(data))
}

// Parse decodes TOML text the same way Load does
func Parse(text string) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(text, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if unknown := unknownKeys(md); len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown keys %v", ErrInvalid, unknown)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// openSections are provider configs passed through as free-form maps
var openSections = map[string]bool{
	"transcriber": true,
	"agent":       true,
	"synthesizer": true,
}

// unknownKeys lists undecoded keys outside the open provider sections.
// The toml decoder reports tables nested in a map[string]any as undecoded.
func unknownKeys(md toml.MetaData) []string {
	var unknown []string
	for _, key := range md.Undecoded() {
		if len(key) > 0 && openSections[key[0]] {
			continue
		}
		unknown = append(unknown, key.String())
	}
	return unknown
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.AudioDevice.Speaker == "" {
		c.AudioDevice.Speaker = "null"
	}
	if c.Session.Runtime == "" {
		c.Session.Runtime = audio.RuntimeNative
	}
	if c.Session.ConnectTimeoutSeconds <= 0 {
		c.Session.ConnectTimeoutSeconds = DefaultConnectTimeoutSec
	}
	if c.Session.DefaultSampleRate <= 0 {
		c.Session.DefaultSampleRate = DefaultSampleRate
	}
	if c.Vocode != nil && c.Vocode.BaseURL == "" {
		c.Vocode.BaseURL = DefaultVocodeBaseURL
	}
	if c.SelfHosted != nil {
		if c.SelfHosted.ChunkSize <= 0 {
			c.SelfHosted.ChunkSize = DefaultChunkSize
		}
		if c.SelfHosted.TimeSliceMS <= 0 {
			c.SelfHosted.TimeSliceMS = DefaultTimeSliceMS
		}
	}
}

func (c *Config) applyEnv() {
	if key := os.Getenv(APIKeyEnv); key != "" && c.Vocode != nil {
		c.Vocode.APIKey = key
	}
}

// Validate checks the config and resolves the conversation mode
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", ErrInvalid, err)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: logging.format must be console or json, got %q", ErrInvalid, c.Logging.Format)
	}

	switch c.AudioDevice.Speaker {
	case "ffplay", "null":
	default:
		return fmt.Errorf("%w: audio_device.speaker must be ffplay or null, got %q", ErrInvalid, c.AudioDevice.Speaker)
	}
	if c.AudioDevice.OutputSamplingRate < 0 {
		return fmt.Errorf("%w: audio_device.output_sampling_rate must not be negative", ErrInvalid)
	}

	if err := (audio.Runtime{Name: c.Session.Runtime}).Supported(); err != nil {
		return fmt.Errorf("%w: session.runtime: %v", ErrInvalid, err)
	}

	conv, err := c.resolveConversation()
	if err != nil {
		return err
	}
	c.conversation = conv
	return nil
}

func (c *Config) resolveConversation() (Conversation, error) {
	if c.isHosted() {
		if c.Vocode.APIKey == "" {
			return nil, fmt.Errorf("%w: vocode.api_key is required (or set %s)", ErrInvalid, APIKeyEnv)
		}
		if wire.Config(c.Transcriber).String("type") == "" {
			return nil, fmt.Errorf("%w: transcriber.type is required", ErrInvalid)
		}
		return Hosted{
			Transcriber: camelConfig(c.Transcriber),
			Agent:       camelConfig(c.Agent),
			Synthesizer: camelConfig(c.Synthesizer),
			Vocode:      *c.Vocode,
		}, nil
	}

	if c.SelfHosted == nil || c.SelfHosted.BackendURL == "" {
		return nil, fmt.Errorf("%w: either [self_hosted] backend_url or all of [vocode] [transcriber] [agent] [synthesizer] are required", ErrInvalid)
	}
	u, err := url.Parse(c.SelfHosted.BackendURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, fmt.Errorf("%w: self_hosted.backend_url must be a ws:// or wss:// URL", ErrInvalid)
	}

	sh := c.SelfHosted
	return SelfHosted{
		URL:                 sh.BackendURL,
		ChunkSize:           sh.ChunkSize,
		Downsampling:        sh.Downsampling,
		TimeSlice:           time.Duration(sh.TimeSliceMS) * time.Millisecond,
		ConversationID:      sh.ConversationID,
		SubscribeTranscript: sh.SubscribeTranscript,
	}, nil
}

func (c *Config) isHosted() bool {
	return c.Vocode != nil && c.Transcriber != nil && c.Agent != nil && c.Synthesizer != nil
}

// Conversation returns the mode resolved by Validate
func (c *Config) Conversation() Conversation {
	return c.conversation
}

// ConnectTimeout returns the bounded transport open wait
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Session.ConnectTimeoutSeconds) * time.Second
}

// Runtime returns the configured audio runtime
func (c *Config) Runtime() audio.Runtime {
	return audio.Runtime{Name: c.Session.Runtime, DefaultSampleRate: c.Session.DefaultSampleRate}
}

// LoggerConfig maps the logging section onto pkg/logger
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}

// camelConfig converts TOML snake_case keys to the in-memory convention
func camelConfig(m map[string]any) wire.Config {
	out, _ := wire.CamelKeys(map[string]any(m)).(map[string]any)
	return wire.Config(out)
}
