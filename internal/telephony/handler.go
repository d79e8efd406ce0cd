package telephony

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/derma-voice-agent/internal/conversation"
	"github.com/wolfman30/derma-voice-agent/internal/observability/metrics"
	"github.com/wolfman30/derma-voice-agent/internal/session"
	"github.com/wolfman30/derma-voice-agent/internal/speech"
	"github.com/wolfman30/derma-voice-agent/pkg/logging"
)

var tracer = otel.Tracer("dermavoice.internal.telephony")

const notUnderstoodReply = "I'm sorry, I didn't catch that. Could you please repeat?"

// Turn outcomes reported to metrics.
const (
	outcomeProcessed     = "processed"
	outcomeNotUnderstood = "not_understood"
	outcomeEngineError   = "engine_error"
	outcomeEnded         = "ended"
)

// Handler serves the three call-control webhooks.
type Handler struct {
	sessions    *session.Registry
	transcriber speech.Transcriber
	voice       *speech.Voice
	markup      Markup
	metrics     *metrics.VoiceMetrics
	logger      *logging.Logger
	now         func() time.Time
}

// HandlerConfig wires a Handler. Transcriber defaults to a no-op, Voice to
// text-only markup and Markup to DefaultMarkup.
type HandlerConfig struct {
	Sessions    *session.Registry
	Transcriber speech.Transcriber
	Voice       *speech.Voice
	Markup      *Markup
	Metrics     *metrics.VoiceMetrics
	Logger      *logging.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Sessions == nil {
		panic("telephony: session registry cannot be nil")
	}
	if cfg.Transcriber == nil {
		cfg.Transcriber = speech.NoopTranscriber{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	markup := DefaultMarkup()
	if cfg.Markup != nil {
		markup = *cfg.Markup
	}
	return &Handler{
		sessions:    cfg.Sessions,
		transcriber: cfg.Transcriber,
		voice:       cfg.Voice,
		markup:      markup,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// CallHandler answers a new call with the greeting and starts recording.
func (h *Handler) CallHandler(w http.ResponseWriter, r *http.Request) {
	defer h.observeLatency("call_handler", h.now())
	ctx, span := tracer.Start(r.Context(), "telephony.call_handler")
	defer span.End()

	hook, err := ParseWebhook(r)
	if err != nil {
		h.logger.Warn("invalid call webhook", "error", err)
		span.RecordError(err)
		h.writeMarkup(w, http.StatusBadRequest, h.markup.Error())
		return
	}
	callID := hook.CallSid
	if callID == "" {
		callID = fmt.Sprintf("call_%d", h.now().UnixMilli())
	}
	span.SetAttributes(attribute.String("dermavoice.call_sid", callID))
	log := h.logger.ForCall(callID)

	_, created := h.sessions.GetOrCreate(callID)
	log.Info("incoming call", "from", hook.From, "new_session", created)

	h.sessions.RecordTurn(callID, session.RoleAssistant, conversation.Greeting)
	audioURL := h.voice.Render(ctx, callID, conversation.Greeting)
	h.writeMarkup(w, http.StatusOK, h.markup.Reply(conversation.Greeting, audioURL, true))
}

// ProcessInput transcribes the caller's recording, runs one engine turn and
// replies, hanging up when the conversation is over.
func (h *Handler) ProcessInput(w http.ResponseWriter, r *http.Request) {
	defer h.observeLatency("process_input", h.now())
	ctx, span := tracer.Start(r.Context(), "telephony.process_input")
	defer span.End()

	hook, err := ParseWebhook(r)
	if err != nil {
		h.logger.Warn("invalid voice input webhook", "error", err)
		span.RecordError(err)
		h.writeMarkup(w, http.StatusBadRequest, h.markup.Error())
		return
	}
	span.SetAttributes(attribute.String("dermavoice.call_sid", hook.CallSid))
	log := h.logger.ForCall(hook.CallSid)

	sess, err := h.sessions.Get(hook.CallSid)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			log.Warn("voice input for unknown call")
		}
		h.writeMarkup(w, http.StatusBadRequest, h.markup.Error())
		return
	}

	sess.Lock()
	defer sess.Unlock()

	transcript, err := h.transcriber.Transcribe(ctx, hook.RecordingURL)
	if err != nil {
		log.Info("could not transcribe recording", "error", err)
		h.metrics.ObserveSpeechFailure("transcription")
		h.metrics.ObserveTurn(outcomeNotUnderstood)
		audioURL := h.voice.Render(ctx, hook.CallSid, notUnderstoodReply)
		h.writeMarkup(w, http.StatusOK, h.markup.Reply(notUnderstoodReply, audioURL, true))
		return
	}
	log.Debug("caller said", "transcript", transcript)
	h.sessions.RecordTurn(hook.CallSid, session.RoleUser, transcript)

	reply, err := sess.Engine.Process(ctx, transcript)
	if err != nil {
		log.Error("conversation engine failed", "error", err)
		span.RecordError(err)
		h.metrics.ObserveTurn(outcomeEngineError)
		h.writeMarkup(w, http.StatusInternalServerError, h.markup.Error())
		return
	}
	h.sessions.RecordTurn(hook.CallSid, session.RoleAssistant, reply)

	end := conversation.ShouldEnd(reply, transcript)
	audioURL := h.voice.Render(ctx, hook.CallSid, reply)
	if end {
		h.sessions.End(ctx, hook.CallSid, session.ReasonConversationEnd)
		h.metrics.ObserveTurn(outcomeEnded)
	} else {
		h.metrics.ObserveTurn(outcomeProcessed)
	}
	h.writeMarkup(w, http.StatusOK, h.markup.Reply(reply, audioURL, !end))
}

// CallStatus ends the session when the provider reports a terminal status.
func (h *Handler) CallStatus(w http.ResponseWriter, r *http.Request) {
	defer h.observeLatency("call_status", h.now())

	hook, err := ParseWebhook(r)
	if err != nil {
		h.logger.Error("invalid call status webhook", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Error"))
		return
	}

	if IsTerminalStatus(hook.CallStatus) && h.sessions.End(r.Context(), hook.CallSid, hook.CallStatus) {
		h.logger.ForCall(hook.CallSid).Info("session cleaned up", "status", hook.CallStatus)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) writeMarkup(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (h *Handler) observeLatency(route string, start time.Time) {
	h.metrics.ObserveWebhookLatency(route, h.now().Sub(start).Seconds())
}
