package session

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/derma-voice-agent/pkg/logging"
)

// ArchiveReader loads archived calls.
type ArchiveReader interface {
	Summary(ctx context.Context, callID string) (*CallSummary, error)
	Transcript(ctx context.Context, callID string) ([]Turn, error)
}

// CallHandler exposes archived calls over HTTP.
type CallHandler struct {
	archive ArchiveReader
	logger  *logging.Logger
}

// NewCallHandler creates a handler reading from archive.
func NewCallHandler(archive ArchiveReader, logger *logging.Logger) *CallHandler {
	if archive == nil {
		panic("session: archive required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CallHandler{archive: archive, logger: logger}
}

// CallResponse is the body of GET /admin/calls/{callSid}.
type CallResponse struct {
	Summary    CallSummary `json:"summary"`
	Transcript []Turn      `json:"transcript"`
}

// Get handles GET /admin/calls/{callSid}
func (h *CallHandler) Get(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callSid")
	summary, err := h.archive.Summary(r.Context(), callID)
	if err != nil {
		h.logger.Error("failed to load call summary", "call_sid", callID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if summary == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	turns, err := h.archive.Transcript(r.Context(), callID)
	if err != nil {
		h.logger.Error("failed to load call transcript", "call_sid", callID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(CallResponse{Summary: *summary, Transcript: turns})
}
