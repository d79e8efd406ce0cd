package telephony

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/derma-voice-agent/internal/appointments"
	"github.com/wolfman30/derma-voice-agent/internal/conversation"
	"github.com/wolfman30/derma-voice-agent/internal/directory"
	"github.com/wolfman30/derma-voice-agent/internal/observability/metrics"
	"github.com/wolfman30/derma-voice-agent/internal/session"
	"github.com/wolfman30/derma-voice-agent/internal/speech"
	"github.com/wolfman30/derma-voice-agent/pkg/logging"
)

// scriptedTranscriber returns the text registered for a recording URL.
type scriptedTranscriber map[string]string

func (s scriptedTranscriber) Transcribe(_ context.Context, audioURL string) (string, error) {
	text, ok := s[audioURL]
	if !ok || text == "" {
		return "", speech.ErrTranscriptionFailed
	}
	return text, nil
}

type failingEngine struct{}

func (failingEngine) Process(context.Context, string) (string, error) {
	return "", context.DeadlineExceeded
}

type fixture struct {
	handler  *Handler
	sessions *session.Registry
	store    *appointments.MemoryStore
}

func testLogger() *logging.Logger {
	return logging.NewWithFormat("error", "text", io.Discard)
}

func newFixture(t *testing.T, transcripts scriptedTranscriber) *fixture {
	t.Helper()
	dir := directory.Load("", testLogger())
	store := appointments.NewMemoryStore(dir)
	sessions := session.NewRegistry(func() conversation.Engine {
		return conversation.NewScriptedEngine(dir, store, testLogger())
	}, testLogger())
	h := NewHandler(HandlerConfig{
		Sessions:    sessions,
		Transcriber: transcripts,
		Metrics:     metrics.NewVoiceMetrics(prometheus.NewRegistry()),
		Logger:      testLogger(),
	})
	return &fixture{handler: h, sessions: sessions, store: store}
}

func post(handler http.HandlerFunc, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func recording(callSid, recordingURL string) url.Values {
	return url.Values{"CallSid": {callSid}, "RecordingUrl": {recordingURL}}
}

func TestCallHandlerGreets(t *testing.T) {
	f := newFixture(t, nil)

	rec := post(f.handler.CallHandler, "/voice/call-handler", url.Values{"CallSid": {"CA1"}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, DefaultMarkup().Reply(conversation.Greeting, "", true), rec.Body.String())
	assert.Equal(t, 1, f.sessions.Len())

	sess, err := f.sessions.Get("CA1")
	require.NoError(t, err)
	history := sess.History()
	require.Len(t, history, 1)
	assert.Equal(t, session.RoleAssistant, history[0].Role)
}

func TestCallHandlerWithoutCallSid(t *testing.T) {
	f := newFixture(t, nil)

	rec := post(f.handler.CallHandler, "/voice/call-handler", url.Values{})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.sessions.Len())
}

func TestFullCallBooksAppointment(t *testing.T) {
	f := newFixture(t, scriptedTranscriber{
		"r1": "Hello, I need to see a dermatologist",
		"r2": "Hi, I'm Anil. I need to see a dermatologist",
		"r3": "Tell me Dr. Sharma's availability",
		"r4": "4:30 PM is fine",
		"r5": "Yes",
	})
	post(f.handler.CallHandler, "/voice/call-handler", url.Values{"CallSid": {"CA1"}})

	for _, r := range []string{"r1", "r2", "r3", "r4"} {
		rec := post(f.handler.ProcessInput, "/voice/process-input", recording("CA1", r))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "<Record ", r)
	}

	rec := post(f.handler.ProcessInput, "/voice/process-input", recording("CA1", "r5"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Appointment confirmed! Anil has been booked with Dr. Sharma at 4:30 PM.")
	assert.True(t, strings.HasSuffix(body, "<Hangup/></Response>"))

	assert.Zero(t, f.sessions.Len(), "session ends with the conversation")
	assert.Equal(t, 1, f.store.Len())
}

func TestProcessInputUnknownCall(t *testing.T) {
	f := newFixture(t, scriptedTranscriber{"r1": "hello"})

	rec := post(f.handler.ProcessInput, "/voice/process-input", recording("CA404", "r1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, DefaultMarkup().Error(), rec.Body.String())
}

func TestProcessInputNotUnderstoodKeepsState(t *testing.T) {
	f := newFixture(t, scriptedTranscriber{"r1": "hello"})
	post(f.handler.CallHandler, "/voice/call-handler", url.Values{"CallSid": {"CA1"}})

	rec := post(f.handler.ProcessInput, "/voice/process-input", recording("CA1", "silence"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DefaultMarkup().Reply(notUnderstoodReply, "", true), rec.Body.String())

	sess, err := f.sessions.Get("CA1")
	require.NoError(t, err)
	assert.Equal(t, conversation.StepGreeting, sess.Engine.(*conversation.ScriptedEngine).State().Step)
	assert.Len(t, sess.History(), 1)
}

func TestProcessInputEngineFailure(t *testing.T) {
	sessions := session.NewRegistry(func() conversation.Engine { return failingEngine{} }, testLogger())
	h := NewHandler(HandlerConfig{Sessions: sessions, Transcriber: scriptedTranscriber{"r1": "hello"}, Logger: testLogger()})
	post(h.CallHandler, "/voice/call-handler", url.Values{"CallSid": {"CA1"}})

	rec := post(h.ProcessInput, "/voice/process-input", recording("CA1", "r1"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, DefaultMarkup().Error(), rec.Body.String())
}

func TestCallStatusCompletedEndsSession(t *testing.T) {
	f := newFixture(t, scriptedTranscriber{"r1": "hello"})
	post(f.handler.CallHandler, "/voice/call-handler", url.Values{"CallSid": {"CA1"}})

	rec := post(f.handler.CallStatus, "/voice/call-status", url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Zero(t, f.sessions.Len())

	rec = post(f.handler.ProcessInput, "/voice/process-input", recording("CA1", "r1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, DefaultMarkup().Error(), rec.Body.String())
}

func TestCallStatusNonTerminal(t *testing.T) {
	f := newFixture(t, nil)
	post(f.handler.CallHandler, "/voice/call-handler", url.Values{"CallSid": {"CA1"}})

	for _, status := range []string{"ringing", "in-progress", ""} {
		rec := post(f.handler.CallStatus, "/voice/call-status", url.Values{"CallSid": {"CA1"}, "CallStatus": {status}})
		assert.Equal(t, "OK", rec.Body.String())
	}
	assert.Equal(t, 1, f.sessions.Len())

	for _, status := range []string{"failed", "busy"} {
		post(f.handler.CallHandler, "/voice/call-handler", url.Values{"CallSid": {"CA-" + status}})
		post(f.handler.CallStatus, "/voice/call-status", url.Values{"CallSid": {"CA-" + status}, "CallStatus": {status}})
	}
	assert.Equal(t, 1, f.sessions.Len())
}

func TestCallStatusBadBody(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/voice/call-status", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	f.handler.CallStatus(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error", rec.Body.String())
}

func TestJSONWebhook(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/voice/call-handler", strings.NewReader(`{"CallSid":"CA-json"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()

	f.handler.CallHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	_, err := f.sessions.Get("CA-json")
	assert.NoError(t, err)
}

type stubSynth struct{}

func (stubSynth) Synthesize(context.Context, string) ([]byte, error) { return []byte("ID3"), nil }

type stubAudioStore struct{}

func (stubAudioStore) Put(_ context.Context, key string, _ []byte) (string, error) {
	return "https://cdn.example.com/" + key + "?a=1&b=2", nil
}

func TestCallHandlerPlaysSynthesizedAudio(t *testing.T) {
	dir := directory.Load("", testLogger())
	store := appointments.NewMemoryStore(dir)
	sessions := session.NewRegistry(func() conversation.Engine {
		return conversation.NewScriptedEngine(dir, store, testLogger())
	}, testLogger())
	h := NewHandler(HandlerConfig{
		Sessions: sessions,
		Voice:    speech.NewVoice(stubSynth{}, stubAudioStore{}, testLogger()),
		Logger:   testLogger(),
	})

	rec := post(h.CallHandler, "/voice/call-handler", url.Values{"CallSid": {"CA1"}})

	body := rec.Body.String()
	assert.Contains(t, body, "<Play>https://cdn.example.com/CA1/")
	assert.Contains(t, body, "?a=1&amp;b=2</Play>")
	assert.NotContains(t, body, "<Say")
}

func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, IsTerminalStatus("completed"))
	assert.True(t, IsTerminalStatus("failed"))
	assert.True(t, IsTerminalStatus("busy"))
	assert.False(t, IsTerminalStatus("no-answer"))
}

type panickingEngine struct{}

func (panickingEngine) Process(context.Context, string) (string, error) {
	panic("engine blew up")
}

func TestRecoverAnswersWithApologyMarkup(t *testing.T) {
	sessions := session.NewRegistry(func() conversation.Engine { return panickingEngine{} }, testLogger())
	h := NewHandler(HandlerConfig{
		Sessions:    sessions,
		Transcriber: scriptedTranscriber{"https://rec/1": "hello"},
		Logger:      testLogger(),
	})
	sessions.GetOrCreate("CA1")

	rec := post(h.Recover(http.HandlerFunc(h.ProcessInput)).ServeHTTP, "/voice/process-input", recording("CA1", "https://rec/1"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, DefaultMarkup().Error(), rec.Body.String())

	// The session lock is released while unwinding.
	sess, err := sessions.Get("CA1")
	require.NoError(t, err)
	sess.Lock()
	sess.Unlock()
}

func TestRecoverPassesThroughAbort(t *testing.T) {
	h := NewHandler(HandlerConfig{Sessions: session.NewRegistry(func() conversation.Engine { return panickingEngine{} }, testLogger())})
	aborting := h.Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		aborting.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/voice/call-handler", nil))
	})
}
