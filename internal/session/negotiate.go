package session

import (
	"time"

	"github.com/yegors/vocode-client/internal/audio"
	"github.com/yegors/vocode-client/internal/capture"
	"github.com/yegors/vocode-client/internal/config"
	"github.com/yegors/vocode-client/internal/wire"
)

// transcriberDeepgram gets a downsampling override on Safari
const transcriberDeepgram = "transcriber_deepgram"

// safariDownsampling is the factor applied for Safari captures
const safariDownsampling = 2

// inputFormat is what the microphone granted, falling back to the runtime default
func inputFormat(settings audio.TrackSettings, rt audio.Runtime) audio.Format {
	f := audio.Format{SampleRate: settings.SampleRate, Channels: settings.Channels}
	if f.SampleRate <= 0 {
		f.SampleRate = rt.DefaultSampleRate
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}
	return f
}

// outputFormat is the configured output rate, falling back to the runtime default
func outputFormat(dev config.AudioDeviceConfig, rt audio.Runtime) audio.Format {
	rate := dev.OutputSamplingRate
	if rate <= 0 {
		rate = rt.DefaultSampleRate
	}
	return audio.Format{SampleRate: rate, Channels: 1}
}

func wireFormat(f audio.Format) wire.AudioFormat {
	return wire.AudioFormat{SamplingRate: f.SampleRate, AudioEncoding: wire.Linear16}
}

// startMessage builds the opening message for conv and the capture time slice
func startMessage(conv config.Conversation, in, out wire.AudioFormat, rt audio.Runtime) (wire.Message, time.Duration) {
	switch c := conv.(type) {
	case config.Hosted:
		transcriber := c.Transcriber.WithAudioFormat(in)
		if rt.IsSafari() && transcriber.String("type") == transcriberDeepgram {
			transcriber["downsampling"] = safariDownsampling
		}

		msg := wire.StartMessage{
			TranscriberConfig: transcriber,
			AgentConfig:       c.Agent.Clone(),
			SynthesizerConfig: c.Synthesizer.WithAudioFormat(out),
			ConversationID:    c.Vocode.ConversationID,
		}

		chunkSize, ok := transcriber.Int("chunkSize")
		if !ok || chunkSize <= 0 {
			chunkSize = config.DefaultChunkSize
		}
		return msg, capture.TimeSliceFor(chunkSize, in.SamplingRate)

	case config.SelfHosted:
		chunkSize := c.ChunkSize
		if chunkSize <= 0 {
			chunkSize = config.DefaultChunkSize
		}

		msg := wire.AudioConfigStartMessage{
			InputAudioConfig: wire.InputAudioConfig{
				SamplingRate:  in.SamplingRate,
				AudioEncoding: in.AudioEncoding,
				ChunkSize:     chunkSize,
				Downsampling:  c.Downsampling,
			},
			OutputAudioConfig: wire.OutputAudioConfig{
				SamplingRate:  out.SamplingRate,
				AudioEncoding: out.AudioEncoding,
			},
			ConversationID:      c.ConversationID,
			SubscribeTranscript: c.SubscribeTranscript,
		}

		slice := c.TimeSlice
		if slice <= 0 {
			slice = capture.DefaultTimeSlice
		}
		return msg, slice

	default:
		return nil, 0
	}
}
