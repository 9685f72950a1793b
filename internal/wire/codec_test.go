package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSnakeCasesNestedKeys(t *testing.T) {
	downsampling := 2
	subscribe := true
	msg := AudioConfigStartMessage{
		InputAudioConfig: InputAudioConfig{
			SamplingRate:  48000,
			AudioEncoding: Linear16,
			ChunkSize:     2048,
			Downsampling:  &downsampling,
		},
		OutputAudioConfig: OutputAudioConfig{
			SamplingRate:  24000,
			AudioEncoding: Linear16,
		},
		ConversationID:      "conv-1",
		SubscribeTranscript: &subscribe,
	}

	data, err := Encode(msg)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "websocket_audio_config_start", got["type"])
	assert.Equal(t, "conv-1", got["conversation_id"])
	assert.Equal(t, true, got["subscribe_transcript"])

	input := got["input_audio_config"].(map[string]any)
	assert.EqualValues(t, 48000, input["sampling_rate"])
	assert.Equal(t, "linear16", input["audio_encoding"])
	assert.EqualValues(t, 2048, input["chunk_size"])
	assert.EqualValues(t, 2, input["downsampling"])
}

func TestEncodeLeavesArraysAndValues(t *testing.T) {
	msg := StartMessage{
		TranscriberConfig: Config{"type": "transcriber_deepgram", "keywordBoosts": []any{"camelValue", Config{"innerKey": 1}}},
		AgentConfig:       Config{"initialMessage": Config{"messageText": "helloThere"}},
		SynthesizerConfig: Config{"type": "synthesizer_azure"},
	}

	data, err := Encode(msg)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	transcriber := got["transcriber_config"].(map[string]any)
	boosts := transcriber["keyword_boosts"].([]any)
	require.Len(t, boosts, 2)
	assert.Equal(t, "camelValue", boosts[0])
	assert.Equal(t, map[string]any{"inner_key": float64(1)}, boosts[1])

	agent := got["agent_config"].(map[string]any)
	assert.Equal(t, map[string]any{"message_text": "helloThere"}, agent["initial_message"])
}

func TestRoundTrip(t *testing.T) {
	subscribe := false
	tests := []struct {
		name string
		msg  Message
	}{
		{name: "audio", msg: AudioMessage{Data: "AAEC"}},
		{name: "stop", msg: StopMessage{}},
		{name: "final combo audio", msg: FinalComboAudioMessage{Data: "UklGRg=="}},
		{name: "ready", msg: ReadyMessage{CallDetails{CallID: "c1", CallerID: "u1", OrgID: "o1", OrgLocationID: "l1", FromPhone: "+1555", ToPhone: "+1666"}}},
		{name: "transcript", msg: TranscriptMessage{Transcript{Sender: SenderAgent, Text: "hi there", Timestamp: 1700000000.5}}},
		{name: "audio config start", msg: AudioConfigStartMessage{
			InputAudioConfig:    InputAudioConfig{SamplingRate: 16000, AudioEncoding: Linear16, ChunkSize: 2048},
			OutputAudioConfig:   OutputAudioConfig{SamplingRate: 16000, AudioEncoding: Linear16},
			SubscribeTranscript: &subscribe,
		}},
		{name: "start", msg: StartMessage{
			TranscriberConfig: Config{"type": "transcriber_deepgram", "audioEncoding": "linear16"},
			AgentConfig:       Config{"type": "agent_chat_gpt", "promptPreamble": "be nice"},
			SynthesizerConfig: Config{"type": "synthesizer_azure", "voiceName": "en-US-AriaNeural"},
			ConversationID:    "abc",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			require.NoError(t, err)

			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, got)
		})
	}
}

func TestDecodeReadyFromServer(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"websocket_ready","call_id":"c1","org_location_id":"loc","to_phone":"+1"}`))
	require.NoError(t, err)

	ready, ok := msg.(ReadyMessage)
	require.True(t, ok)
	assert.Equal(t, "c1", ready.CallID)
	assert.Equal(t, "loc", ready.OrgLocationID)
	assert.Equal(t, "+1", ready.ToPhone)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{name: "not json", data: `{"type":`, want: ErrMalformed},
		{name: "no type", data: `{"data":"x"}`, want: ErrMalformed},
		{name: "type not a string", data: `{"type":3}`, want: ErrMalformed},
		{name: "wrong field type", data: `{"type":"websocket_audio","data":12}`, want: ErrMalformed},
		{name: "unknown type", data: `{"type":"websocket_mystery"}`, want: ErrUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfigHelpers(t *testing.T) {
	c := Config{"chunkSize": json.Number("2048"), "type": "transcriber_deepgram"}
	merged := c.WithAudioFormat(AudioFormat{SamplingRate: 44100, AudioEncoding: Linear16})

	_, touched := c["samplingRate"]
	assert.False(t, touched)
	assert.Equal(t, 44100, merged["samplingRate"])
	assert.Equal(t, "linear16", merged["audioEncoding"])

	n, ok := merged.Int("chunkSize")
	assert.True(t, ok)
	assert.Equal(t, 2048, n)
	assert.Equal(t, "transcriber_deepgram", merged.String("type"))

	_, ok = merged.Int("missing")
	assert.False(t, ok)
}

func TestTranscriptTime(t *testing.T) {
	tr := Transcript{Timestamp: 1700000000.25}
	assert.Equal(t, int64(1700000000), tr.Time().Unix())
	assert.Equal(t, 250, tr.Time().Nanosecond()/1e6)
}
