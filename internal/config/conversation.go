package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/yegors/vocode-client/internal/wire"
)

// Mode selects which start message a session sends
type Mode int

// Conversation modes
const (
	ModeSelfHosted Mode = iota
	ModeHosted
)

func (m Mode) String() string {
	switch m {
	case ModeHosted:
		return "hosted"
	case ModeSelfHosted:
		return "self-hosted"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Conversation is either Hosted or SelfHosted
type Conversation interface {
	Mode() Mode
	BackendURL() string
	conversation()
}

// Hosted talks to the Vocode API with full transcriber, agent and synthesizer configs
type Hosted struct {
	Transcriber wire.Config
	Agent       wire.Config
	Synthesizer wire.Config
	Vocode      VocodeConfig
}

// Mode implements Conversation
func (Hosted) Mode() Mode { return ModeHosted }

// BackendURL builds wss://<base>/conversation?key=<api key>
func (h Hosted) BackendURL() string {
	base := h.Vocode.BaseURL
	if base == "" {
		base = DefaultVocodeBaseURL
	}
	return "wss://" + base + "/conversation?key=" + url.QueryEscape(h.Vocode.APIKey)
}

func (Hosted) conversation() {}

// SelfHosted talks to a self-hosted backend that only needs audio formats
type SelfHosted struct {
	URL                 string
	ChunkSize           int
	Downsampling        *int
	TimeSlice           time.Duration
	ConversationID      string
	SubscribeTranscript *bool
}

// Mode implements Conversation
func (SelfHosted) Mode() Mode { return ModeSelfHosted }

// BackendURL returns the configured URL verbatim
func (s SelfHosted) BackendURL() string { return s.URL }

func (SelfHosted) conversation() {}
