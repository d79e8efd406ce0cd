package router

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/derma-voice-agent/internal/conversation"
	"github.com/wolfman30/derma-voice-agent/pkg/logging"
)

// devHandler serves the text-only endpoints used to exercise the booking
// dialogue without a phone call.
type devHandler struct {
	engines *conversation.Factory
	logger  *logging.Logger
	stt     string
	tts     string
}

func newDevHandler(cfg *Config) *devHandler {
	return &devHandler{
		engines: cfg.Engines,
		logger:  cfg.Logger,
		stt:     cfg.STTProvider,
		tts:     cfg.TTSProvider,
	}
}

type devInfoResponse struct {
	Message   string            `json:"message"`
	Agent     string            `json:"agent"`
	STT       string            `json:"stt"`
	TTS       string            `json:"tts"`
	Endpoints map[string]string `json:"endpoints"`
}

// Info handles GET /test
func (d *devHandler) Info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, devInfoResponse{
		Message: "Voice agent is running",
		Agent:   d.engines.Backend(),
		STT:     d.stt,
		TTS:     d.tts,
		Endpoints: map[string]string{
			"call_handler":  "POST /voice/call-handler",
			"process_input": "POST /voice/process-input",
			"call_status":   "POST /voice/call-status",
			"test_agent":    "POST /test/agent",
			"health":        "GET /health",
		},
	})
}

// defaultAgentMessage is used when /test/agent is called without a message.
const defaultAgentMessage = "Hello, I need to see a dermatologist"

type agentRequest struct {
	Message string `json:"message"`
}

type agentResponse struct {
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Mode      string    `json:"mode"`
	Timestamp time.Time `json:"timestamp"`
}

// Agent handles POST /test/agent. Every request runs one turn on a fresh
// engine, so only the greeting step is reachable.
func (d *devHandler) Agent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = defaultAgentMessage
	}

	reply, err := d.engines.New().Process(r.Context(), message)
	if err != nil {
		d.logger.Error("test agent failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "agent failed"})
		return
	}
	writeJSON(w, http.StatusOK, agentResponse{
		Input:     message,
		Output:    reply,
		Mode:      d.engines.Backend(),
		Timestamp: time.Now().UTC(),
	})
}
