package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yegors/vocode-client/internal/audio"
	"github.com/yegors/vocode-client/pkg/logger"
)

// ErrInvalidTransition is returned when the queue is driven out of order
var ErrInvalidTransition = errors.New("invalid playback state transition")

// Speaker is the caller-visible "who is audible" signal
type Speaker string

// Speaker values
const (
	SpeakerNone  Speaker = "none"
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// State is the state of the single playback slot
type State int

// Queue states
const (
	StateIdle State = iota
	StateDecoding
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDecoding:
		return "decoding"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateIdle:     {StateDecoding},
	StateDecoding: {StatePlaying, StateIdle},
	StatePlaying:  {StateIdle},
}

// Stats counts processed payloads
type Stats struct {
	Played  int
	Failed  int // decode failures, dropped
	Skipped int // decoded after a Clear, never played
}

// Queue plays inbound agent audio strictly one payload at a time, in arrival order
type Queue struct {
	decoder   audio.Decoder
	speaker   audio.Speaker
	mixer     *audio.Mixer
	onSpeaker func(Speaker)
	logger    *logger.Logger

	mu         sync.Mutex
	items      []string
	state      State
	generation uint64
	stats      Stats

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewQueue creates a queue and starts its drainer. mixer and onSpeaker may be nil.
func NewQueue(decoder audio.Decoder, speaker audio.Speaker, mixer *audio.Mixer, onSpeaker func(Speaker), logger *logger.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		decoder:   decoder,
		speaker:   speaker,
		mixer:     mixer,
		onSpeaker: onSpeaker,
		logger:    logger.Named("playback-queue"),
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go q.drain()
	return q
}

// Enqueue appends a base64 payload to the queue
func (q *Queue) Enqueue(payload string) {
	q.mu.Lock()
	q.items = append(q.items, payload)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Clear drops every pending payload. A payload already decoding or playing
// finishes on its own but its completion no longer signals.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) > 0 {
		q.logger.Debug("Clearing playback queue", logger.Int("pending", len(q.items)))
	}
	q.items = nil
	q.generation++
}

// Len returns the number of payloads waiting to play
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// State returns the state of the playback slot
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Stats returns a copy of the counters
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Close stops the drainer and aborts an in-flight playback
func (q *Queue) Close() {
	q.Clear()
	q.cancel()
	<-q.done
}

// drain runs the decode-and-play cycle whenever work arrives
func (q *Queue) drain() {
	defer close(q.done)

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-q.wake:
		}

		for q.ctx.Err() == nil && q.next() {
		}
	}
}

// next runs one decode-and-play cycle. It returns false when there was nothing to do.
func (q *Queue) next() bool {
	// Check-then-set under the lock: only one cycle may leave idle
	q.mu.Lock()
	if q.state != StateIdle || len(q.items) == 0 {
		q.mu.Unlock()
		return false
	}
	q.mustTransition(StateDecoding)
	payload := q.items[0]
	q.items = q.items[1:]
	gen := q.generation
	q.mu.Unlock()

	buf, err := q.decoder.Decode(q.ctx, payload)
	if err != nil {
		q.logger.Error("Dropping undecodable agent audio", logger.Error(err))
		q.mu.Lock()
		q.mustTransition(StateIdle)
		q.stats.Failed++
		q.mu.Unlock()
		return true
	}

	q.mu.Lock()
	if gen != q.generation {
		q.mustTransition(StateIdle)
		q.stats.Skipped++
		q.mu.Unlock()
		return true
	}
	q.mustTransition(StatePlaying)
	q.mu.Unlock()

	// Second sink: the combined recording hears what the speaker plays
	if q.mixer != nil {
		if err := q.mixer.WriteBuffer(audio.InputAgent, buf); err != nil {
			q.logger.Debug("Mixer rejected agent audio", logger.Error(err))
		}
	}

	q.signal(gen, SpeakerAgent)
	playErr := q.speaker.Play(q.ctx, buf)

	q.mu.Lock()
	q.mustTransition(StateIdle)
	q.stats.Played++
	empty := len(q.items) == 0
	q.mu.Unlock()

	if playErr != nil && !errors.Is(playErr, context.Canceled) {
		q.logger.Warn("Agent audio playback failed", logger.Error(playErr))
	}
	if empty {
		q.signal(gen, SpeakerUser)
	}
	return true
}

// signal reports a speaker change unless the queue was cleared since gen
func (q *Queue) signal(gen uint64, s Speaker) {
	q.mu.Lock()
	stale := gen != q.generation
	q.mu.Unlock()

	if stale || q.onSpeaker == nil {
		return
	}
	q.onSpeaker(s)
}

// mustTransition must be called with q.mu held. The drainer is the only
// writer, so a rejected transition is a programming error.
func (q *Queue) mustTransition(to State) {
	for _, s := range transitions[q.state] {
		if s == to {
			q.state = to
			return
		}
	}
	panic(fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, q.state, to))
}
