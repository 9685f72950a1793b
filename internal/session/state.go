package session

import (
	"github.com/yegors/vocode-client/internal/playback"
	"github.com/yegors/vocode-client/internal/wire"
)

// Status is the caller-visible lifecycle status
type Status string

// Session statuses
const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusError      Status = "error"
)

// Speaker says whose audio is audible
type Speaker = playback.Speaker

// Speaker values
const (
	SpeakerNone  = playback.SpeakerNone
	SpeakerUser  = playback.SpeakerUser
	SpeakerAgent = playback.SpeakerAgent
)

// State is the caller-visible session state
type State struct {
	Status       Status
	Err          error
	Active       bool
	Transcripts  []wire.Transcript
	Speaker      Speaker
	CallDetails  *wire.CallDetails
	InputFormat  *wire.AudioFormat
	OutputFormat *wire.AudioFormat
	RecordingURL string
	// Epoch identifies the current Start; stale callbacks carry an older one
	Epoch uint64
}

// Running reports whether a session is connecting or connected
func (s State) Running() bool {
	return s.Status == StatusConnecting || s.Status == StatusConnected
}

func (s State) clone() State {
	out := s
	out.Transcripts = append([]wire.Transcript(nil), s.Transcripts...)
	if s.CallDetails != nil {
		cd := *s.CallDetails
		out.CallDetails = &cd
	}
	if s.InputFormat != nil {
		f := *s.InputFormat
		out.InputFormat = &f
	}
	if s.OutputFormat != nil {
		f := *s.OutputFormat
		out.OutputFormat = &f
	}
	return out
}

func initialState() State {
	return State{Status: StatusIdle, Active: true, Speaker: SpeakerNone}
}

// event is anything that changes State
type event interface {
	apply(State) State
}

type startRequested struct{}

func (startRequested) apply(s State) State {
	s.Epoch++
	s.Status = StatusConnecting
	s.Err = nil
	s.Transcripts = nil
	s.CallDetails = nil
	s.InputFormat = nil
	s.OutputFormat = nil
	s.RecordingURL = ""
	s.Speaker = SpeakerNone
	return s
}

type readyReceived struct{ details wire.CallDetails }

func (e readyReceived) apply(s State) State {
	cd := e.details
	s.CallDetails = &cd
	s.Status = StatusConnected
	return s
}

type transcriptReceived struct{ transcript wire.Transcript }

func (e transcriptReceived) apply(s State) State {
	s.Transcripts = append(s.Transcripts, e.transcript)
	return s
}

type speakerChanged struct{ speaker Speaker }

func (e speakerChanged) apply(s State) State {
	// A late completion must not resurrect the signal after a stop
	if !s.Running() {
		return s
	}
	s.Speaker = e.speaker
	return s
}

type formatsNegotiated struct{ in, out wire.AudioFormat }

func (e formatsNegotiated) apply(s State) State {
	in, out := e.in, e.out
	s.InputFormat = &in
	s.OutputFormat = &out
	return s
}

type activeSet struct{ active bool }

func (e activeSet) apply(s State) State {
	s.Active = e.active
	return s
}

type activeToggled struct{}

func (activeToggled) apply(s State) State {
	s.Active = !s.Active
	return s
}

type stopped struct{ err error }

func (e stopped) apply(s State) State {
	s.Speaker = SpeakerNone
	if e.err != nil {
		s.Status = StatusError
		s.Err = e.err
	} else {
		s.Status = StatusIdle
	}
	return s
}

type recordingFinalized struct{ url string }

func (e recordingFinalized) apply(s State) State {
	s.RecordingURL = e.url
	return s
}

// reduce applies one event. It never mutates its input.
func reduce(s State, e event) State {
	return e.apply(s.clone())
}
