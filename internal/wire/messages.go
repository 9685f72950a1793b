package wire

import (
	"math"
	"time"
)

// Type is the discriminant carried in every message's "type" field
type Type string

// Message types exchanged with the conversation service
const (
	TypeStart            Type = "websocket_start"
	TypeAudioConfigStart Type = "websocket_audio_config_start"
	TypeAudio            Type = "websocket_audio"
	TypeStop             Type = "websocket_stop"
	TypeFinalComboAudio  Type = "websocket_final_combo_audio"
	TypeReady            Type = "websocket_ready"
	TypeTranscript       Type = "websocket_transcript"
)

// Message is implemented by every wire message
type Message interface {
	MessageType() Type
}

// AudioEncoding names the sample encoding of an audio stream
type AudioEncoding string

// Linear16 is 16-bit signed little-endian PCM, the only encoding negotiated by this client
const Linear16 AudioEncoding = "linear16"

// AudioFormat describes one direction of the negotiated audio stream
type AudioFormat struct {
	SamplingRate  int           `json:"samplingRate"`
	AudioEncoding AudioEncoding `json:"audioEncoding"`
}

// InputAudioConfig is the microphone side of a self-hosted audio config
type InputAudioConfig struct {
	SamplingRate  int           `json:"samplingRate"`
	AudioEncoding AudioEncoding `json:"audioEncoding"`
	ChunkSize     int           `json:"chunkSize"`
	Downsampling  *int          `json:"downsampling,omitempty"`
}

// OutputAudioConfig is the agent side of a self-hosted audio config
type OutputAudioConfig struct {
	SamplingRate  int           `json:"samplingRate"`
	AudioEncoding AudioEncoding `json:"audioEncoding"`
}

// Config is an open-ended provider config object (transcriber, agent, synthesizer).
// Keys use the in-memory lowerCamelCase convention.
type Config map[string]any

// Clone returns a shallow copy so merges never touch the caller's map
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// WithAudioFormat returns a copy of c with the negotiated audio metadata merged in
func (c Config) WithAudioFormat(f AudioFormat) Config {
	out := c.Clone()
	out["samplingRate"] = f.SamplingRate
	out["audioEncoding"] = string(f.AudioEncoding)
	return out
}

// String returns the string value stored under key, or ""
func (c Config) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// Int returns the integer value stored under key
func (c Config) Int(key string) (int, bool) {
	switch v := c[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case interface{ Int64() (int64, error) }:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

// StartMessage opens a hosted conversation with full provider configs
type StartMessage struct {
	TranscriberConfig Config `json:"transcriberConfig"`
	AgentConfig       Config `json:"agentConfig"`
	SynthesizerConfig Config `json:"synthesizerConfig"`
	ConversationID    string `json:"conversationId,omitempty"`
}

// AudioConfigStartMessage opens a self-hosted conversation with explicit audio configs
type AudioConfigStartMessage struct {
	InputAudioConfig    InputAudioConfig  `json:"inputAudioConfig"`
	OutputAudioConfig   OutputAudioConfig `json:"outputAudioConfig"`
	ConversationID      string            `json:"conversationId,omitempty"`
	SubscribeTranscript *bool             `json:"subscribeTranscript,omitempty"`
}

// AudioMessage carries one base64-encoded audio payload in either direction
type AudioMessage struct {
	Data string `json:"data"`
}

// StopMessage ends the conversation
type StopMessage struct{}

// FinalComboAudioMessage uploads the combined user+agent recording
type FinalComboAudioMessage struct {
	Data string `json:"data"`
}

// CallDetails is the call metadata announced by the server when it is ready
type CallDetails struct {
	CallID        string `json:"callId,omitempty"`
	CallerID      string `json:"callerId,omitempty"`
	OrgID         string `json:"orgId,omitempty"`
	OrgLocationID string `json:"orgLocationId,omitempty"`
	FromPhone     string `json:"fromPhone,omitempty"`
	ToPhone       string `json:"toPhone,omitempty"`
}

// ReadyMessage is the server's handshake acknowledgement
type ReadyMessage struct {
	CallDetails
}

// Sender identifies who spoke a transcript line
type Sender string

// Known senders
const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Transcript is one line of the conversation transcript
type Transcript struct {
	Sender    Sender  `json:"sender"`
	Text      string  `json:"text"`
	Timestamp float64 `json:"timestamp"` // unix seconds
}

// Time converts the transcript timestamp to a time.Time
func (t Transcript) Time() time.Time {
	sec, frac := math.Modf(t.Timestamp)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}

// TranscriptMessage carries a transcript line from the server
type TranscriptMessage struct {
	Transcript
}

func (StartMessage) MessageType() Type            { return TypeStart }
func (AudioConfigStartMessage) MessageType() Type { return TypeAudioConfigStart }
func (AudioMessage) MessageType() Type            { return TypeAudio }
func (StopMessage) MessageType() Type             { return TypeStop }
func (FinalComboAudioMessage) MessageType() Type  { return TypeFinalComboAudio }
func (ReadyMessage) MessageType() Type            { return TypeReady }
func (TranscriptMessage) MessageType() Type       { return TypeTranscript }
