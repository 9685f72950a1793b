package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/vocode-client/internal/audio"
	"github.com/yegors/vocode-client/internal/session"
	"github.com/yegors/vocode-client/internal/wire"
	"github.com/yegors/vocode-client/pkg/logger"
)

// Handler serves the session control endpoints
type Handler struct {
	ctrl    Controller
	logger  *logger.Logger
	started time.Time
}

// NewHandler creates a new handler
func NewHandler(ctrl Controller, logger *logger.Logger) *Handler {
	return &Handler{
		ctrl:    ctrl,
		logger:  logger.Named("api-handler"),
		started: time.Now(),
	}
}

// SessionResponse is the JSON view of session.State
type SessionResponse struct {
	Status       session.Status       `json:"status"`
	Error        string               `json:"error,omitempty"`
	Active       bool                 `json:"active"`
	Speaker      session.Speaker      `json:"current_speaker"`
	CallDetails  *CallDetailsResponse `json:"call_details,omitempty"`
	InputFormat  *AudioFormatResponse `json:"input_format,omitempty"`
	OutputFormat *AudioFormatResponse `json:"output_format,omitempty"`
	Transcripts  []TranscriptResponse `json:"transcripts"`
	RecordingURL string               `json:"recording_url,omitempty"`
	Epoch        uint64               `json:"epoch"`
}

// CallDetailsResponse is the JSON view of the call metadata
type CallDetailsResponse struct {
	CallID        string `json:"call_id,omitempty"`
	CallerID      string `json:"caller_id,omitempty"`
	OrgID         string `json:"org_id,omitempty"`
	OrgLocationID string `json:"org_location_id,omitempty"`
	FromPhone     string `json:"from_phone,omitempty"`
	ToPhone       string `json:"to_phone,omitempty"`
}

// AudioFormatResponse is the JSON view of a negotiated audio format
type AudioFormatResponse struct {
	SamplingRate  int                `json:"sampling_rate"`
	AudioEncoding wire.AudioEncoding `json:"audio_encoding"`
}

// TranscriptResponse is one transcript line
type TranscriptResponse struct {
	Sender    wire.Sender `json:"sender"`
	Text      string      `json:"text"`
	Timestamp float64     `json:"timestamp"`
	Time      time.Time   `json:"time"`
}

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

type activeRequest struct {
	Active *bool `json:"active"`
}

func newSessionResponse(s session.State) SessionResponse {
	resp := SessionResponse{
		Status:       s.Status,
		Active:       s.Active,
		Speaker:      s.Speaker,
		InputFormat:  newAudioFormatResponse(s.InputFormat),
		OutputFormat: newAudioFormatResponse(s.OutputFormat),
		Transcripts:  newTranscriptsResponse(s.Transcripts),
		RecordingURL: s.RecordingURL,
		Epoch:        s.Epoch,
	}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}
	if cd := s.CallDetails; cd != nil {
		resp.CallDetails = &CallDetailsResponse{
			CallID:        cd.CallID,
			CallerID:      cd.CallerID,
			OrgID:         cd.OrgID,
			OrgLocationID: cd.OrgLocationID,
			FromPhone:     cd.FromPhone,
			ToPhone:       cd.ToPhone,
		}
	}
	return resp
}

func newAudioFormatResponse(f *wire.AudioFormat) *AudioFormatResponse {
	if f == nil {
		return nil
	}
	return &AudioFormatResponse{SamplingRate: f.SamplingRate, AudioEncoding: f.AudioEncoding}
}

// newTranscriptsResponse never returns nil so the field encodes as []
func newTranscriptsResponse(lines []wire.Transcript) []TranscriptResponse {
	out := make([]TranscriptResponse, len(lines))
	for i, t := range lines {
		out[i] = TranscriptResponse{
			Sender:    t.Sender,
			Text:      t.Text,
			Timestamp: t.Timestamp,
			Time:      t.Time().UTC(),
		}
	}
	return out
}

// GetSession returns the current session state
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, newSessionResponse(h.ctrl.Snapshot()))
}

// StartSession starts a conversation
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	// The session outlives the request
	ctx := context.WithoutCancel(r.Context())

	if err := h.ctrl.Start(ctx); err != nil {
		h.logger.Warn("Failed to start session", logger.Error(err))
		h.writeError(w, startErrorStatus(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, newSessionResponse(h.ctrl.Snapshot()))
}

func startErrorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrAlreadyStarted):
		return http.StatusConflict
	case errors.Is(err, session.ErrMicrophoneDenied):
		return http.StatusForbidden
	case errors.Is(err, audio.ErrUnsupportedRuntime):
		return http.StatusNotImplemented
	default:
		return http.StatusBadGateway
	}
}

// StopSession stops the conversation if one is running
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Stop()
	h.writeJSON(w, http.StatusOK, newSessionResponse(h.ctrl.Snapshot()))
}

// SetActive mutes or unmutes the conversation
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		h.writeError(w, http.StatusBadRequest, `body must be {"active": true|false}`)
		return
	}
	h.ctrl.SetActive(*req.Active)
	h.writeJSON(w, http.StatusOK, newSessionResponse(h.ctrl.Snapshot()))
}

// ToggleActive flips the active flag
func (h *Handler) ToggleActive(w http.ResponseWriter, r *http.Request) {
	h.ctrl.ToggleActive()
	h.writeJSON(w, http.StatusOK, newSessionResponse(h.ctrl.Snapshot()))
}

// GetTranscripts returns the transcript log in arrival order
func (h *Handler) GetTranscripts(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, newSessionResponse(h.ctrl.Snapshot()).Transcripts)
}

// GetRecording serves a finalized combined recording by blob id
func (h *Handler) GetRecording(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	blob, ok := h.ctrl.Blobs().Get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "recording not found")
		return
	}

	w.Header().Set("Content-Type", blob.ContentType)
	http.ServeContent(w, r, blob.ID+".wav", blob.CreatedAt, bytes.NewReader(blob.Data))
}

// GetHealth reports liveness and the session status
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"session_status": h.ctrl.Snapshot().Status,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}
