package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/blackboxlabs/blackbox/internal/application/pipeline"
	"github.com/blackboxlabs/blackbox/internal/domain"
)

const maxAudioBytes = 16 << 20 // 16 MiB of raw audio per request

// PipelineHandler serves the voice, text and transcribe endpoints.
type PipelineHandler struct {
	pipeline *pipeline.Pipeline
}

func NewPipelineHandler(p *pipeline.Pipeline) *PipelineHandler {
	return &PipelineHandler{pipeline: p}
}

type textRequest struct {
	Text      string `json:"text"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Voice accepts multipart form data with an "audio" file part and runs
// the full pipeline.
func (h *PipelineHandler) Voice(w http.ResponseWriter, r *http.Request) {
	audio, ok := readAudioPart(w, r)
	if !ok {
		return
	}

	result, err := h.pipeline.ProcessVoice(r.Context(),
		audio, r.FormValue("user_id"), r.FormValue("session_id"))
	writePipelineResult(w, result, err)
}

// Text runs the pipeline on pre-transcribed text.
func (h *PipelineHandler) Text(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[textRequest](r, w)
	if !ok {
		return
	}
	if req.Text == "" {
		respondError(w, "text is required", http.StatusBadRequest)
		return
	}

	result, err := h.pipeline.ProcessText(r.Context(), req.Text, req.UserID, req.SessionID)
	writePipelineResult(w, result, err)
}

// Transcribe runs ASR only.
func (h *PipelineHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	audio, ok := readAudioPart(w, r)
	if !ok {
		return
	}

	result, err := h.pipeline.TranscribeOnly(r.Context(), audio)
	if err != nil {
		writePipelineError(w, err, nil)
		return
	}
	respondJSON(w, result, http.StatusOK)
}

func readAudioPart(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		respondError(w, "expected multipart form data", http.StatusBadRequest)
		return nil, false
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		respondError(w, "audio file part is required", http.StatusBadRequest)
		return nil, false
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxAudioBytes))
	if err != nil {
		respondError(w, "failed to read audio", http.StatusBadRequest)
		return nil, false
	}
	if len(audio) == 0 {
		respondError(w, "audio is empty", http.StatusBadRequest)
		return nil, false
	}
	return audio, true
}

// writePipelineResult maps the coordinator's failure semantics onto HTTP:
// a synthesis-only failure still carries the response text and is served
// as a partial success, any earlier stage failure is a 500 with the stage
// name and the timings collected so far.
func writePipelineResult(w http.ResponseWriter, result *domain.PipelineResult, err error) {
	if err == nil {
		respondJSON(w, result, http.StatusOK)
		return
	}

	var stageErr *domain.StageError
	if errors.As(err, &stageErr) && stageErr.Stage == domain.StageTTS && result != nil && result.ResponseText != "" {
		respondJSON(w, result, http.StatusOK)
		return
	}

	var timing map[string]float64
	if result != nil {
		timing = result.Timing
	}
	writePipelineError(w, err, timing)
}

func writePipelineError(w http.ResponseWriter, err error, timing map[string]float64) {
	if errors.Is(err, domain.ErrNotReady) {
		respondError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	body := errorBody{Error: err.Error(), Timing: timing}
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		body.Stage = stageErr.Stage
	}
	respondJSON(w, body, http.StatusInternalServerError)
}
