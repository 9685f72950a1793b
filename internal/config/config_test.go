package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostedTOML = `
[vocode]
api_key = "secret"
conversation_id = "conv-1"

[transcriber]
type = "transcriber_deepgram"
chunk_size = 2048

[transcriber.endpointing_config]
type = "endpointing_punctuation_based"
time_cutoff_seconds = 0.4

[agent]
type = "agent_chat_gpt"
initial_message = { type = "message_base", text = "Hello!" }

[synthesizer]
type = "synthesizer_azure"
voice_name = "en-US-AriaNeural"
`

func TestParseHosted(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	cfg, err := Parse(hostedTOML)
	require.NoError(t, err)

	conv := cfg.Conversation()
	require.Equal(t, ModeHosted, conv.Mode())
	hosted := conv.(Hosted)

	assert.Equal(t, "wss://api.vocode.dev/conversation?key=secret", hosted.BackendURL())
	assert.Equal(t, "conv-1", hosted.Vocode.ConversationID)

	// Keys are camelCased, values untouched
	assert.Equal(t, "transcriber_deepgram", hosted.Transcriber.String("type"))
	size, ok := hosted.Transcriber.Int("chunkSize")
	require.True(t, ok)
	assert.Equal(t, 2048, size)
	endpointing := hosted.Transcriber["endpointingConfig"].(map[string]any)
	assert.Equal(t, 0.4, endpointing["timeCutoffSeconds"])
	assert.Equal(t, "en-US-AriaNeural", hosted.Synthesizer.String("voiceName"))
	assert.Contains(t, hosted.Agent, "initialMessage")
}

func TestParseSelfHostedDefaults(t *testing.T) {
	cfg, err := Parse(`
[self_hosted]
backend_url = "ws://x"`)
	require.NoError(t, err)

	sh := cfg.Conversation().(SelfHosted)
	assert.Equal(t, ModeSelfHosted, sh.Mode())
	assert.Equal(t, "ws://x", sh.BackendURL())
	assert.Equal(t, DefaultChunkSize, sh.ChunkSize)
	assert.Equal(t, 10*time.Millisecond, sh.TimeSlice)
	assert.Nil(t, sh.Downsampling)
	assert.Nil(t, sh.SubscribeTranscript)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "null", cfg.AudioDevice.Speaker)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, "native", cfg.Runtime().Name)
	assert.Equal(t, DefaultSampleRate, cfg.Runtime().DefaultSampleRate)
}

func TestParseSelfHostedOptions(t *testing.T) {
	cfg, err := Parse(`
[self_hosted]
backend_url = "wss://agent.local/conversation"
chunk_size = 1024
downsampling = 2
time_slice_ms = 40
conversation_id = "abc"
subscribe_transcript = false`)
	require.NoError(t, err)

	sh := cfg.Conversation().(SelfHosted)
	assert.Equal(t, 1024, sh.ChunkSize)
	require.NotNil(t, sh.Downsampling)
	assert.Equal(t, 2, *sh.Downsampling)
	assert.Equal(t, 40*time.Millisecond, sh.TimeSlice)
	require.NotNil(t, sh.SubscribeTranscript)
	assert.False(t, *sh.SubscribeTranscript)
}

func TestModeSelectionNeedsAllHostedSections(t *testing.T) {
	// Three of four hosted sections fall back to self-hosted
	cfg, err := Parse(`
[self_hosted]
backend_url = "ws://x"

[transcriber]
type = "transcriber_deepgram"

[agent]
type = "agent_echo"

[synthesizer]
type = "synthesizer_azure"`)
	require.NoError(t, err)
	assert.Equal(t, ModeSelfHosted, cfg.Conversation().Mode())
}

func TestAPIKeyFromEnvironment(t *testing.T) {
	t.Setenv(APIKeyEnv, "from-env")

	cfg, err := Parse(hostedTOML)
	require.NoError(t, err)
	assert.Equal(t, "wss://api.vocode.dev/conversation?key=from-env", cfg.Conversation().BackendURL())
}

func TestParseErrors(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	tests := []struct {
		name string
		toml string
	}{
		{"no mode", `[logging]
level = "debug"`},
		{"bad backend scheme", `[self_hosted]
backend_url = "http://x"`},
		{"bad level", `[logging]
level = "loud"
[self_hosted]
backend_url = "ws://x"`},
		{"bad speaker", `[audio_device]
speaker = "tape"
[self_hosted]
backend_url = "ws://x"`},
		{"bad runtime", `[session]
runtime = "firefox"
[self_hosted]
backend_url = "ws://x"`},
		{"unknown key", `[self_hosted]
backend_url = "ws://x"
chunksize = 3`},
		{"hosted without key", `[vocode]
[transcriber]
type = "transcriber_deepgram"
[agent]
type = "agent_echo"
[synthesizer]
type = "synthesizer_azure"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.toml)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParseKeepsNestedProviderTables(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	cfg, err := Parse(`
[vocode]
api_key = "secret"

[transcriber]
type = "transcriber_deepgram"

[transcriber.endpointing_config]
type = "endpointing_time_based"
time_cutoff_seconds = 0.8

[agent]
type = "agent_chat_gpt"
initial_message = { type = "message_base", text = "Hi" }

[agent.cut_off_response]
messages = [{ type = "message_base", text = "Sorry?" }]

[synthesizer]
type = "synthesizer_eleven_labs"

[synthesizer.sentiment_config]
emotions = ["happy", "sad"]
`)
	require.NoError(t, err)

	hosted := cfg.Conversation().(Hosted)
	endpointing := hosted.Transcriber["endpointingConfig"].(map[string]any)
	assert.Equal(t, "endpointing_time_based", endpointing["type"])
	initial := hosted.Agent["initialMessage"].(map[string]any)
	assert.Equal(t, "Hi", initial["text"])
	assert.Contains(t, hosted.Agent, "cutOffResponse")
	assert.Contains(t, hosted.Synthesizer, "sentimentConfig")
}

func TestParseRejectsUnknownKeysInTypedSections(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	_, err := Parse(`
[vocode]
api_key = "secret"
region = "eu"

[transcriber]
type = "transcriber_deepgram"

[agent]
type = "agent_chat_gpt"

[synthesizer]
type = "synthesizer_azure"
`)
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "vocode.region")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	require.NoError(t, os.WriteFile(path, []byte("[self_hosted]\nbackend_url = \"ws://x\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://x", cfg.Conversation().BackendURL())

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestHostedBaseURLOverride(t *testing.T) {
	h := Hosted{Vocode: VocodeConfig{BaseURL: "eu.vocode.dev", APIKey: "k"}}
	assert.Equal(t, "wss://eu.vocode.dev/conversation?key=k", h.BackendURL())
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "session.example.toml"))
	require.NoError(t, err)

	assert.Equal(t, ModeSelfHosted, cfg.Conversation().Mode())
	assert.Equal(t, "ws://localhost:3000/conversation", cfg.Conversation().BackendURL())
	assert.Equal(t, "ffplay", cfg.AudioDevice.Speaker)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
}
