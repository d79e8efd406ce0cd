package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/derma-voice-agent/internal/appointments"
	appconfig "github.com/wolfman30/derma-voice-agent/internal/config"
	"github.com/wolfman30/derma-voice-agent/internal/conversation"
	"github.com/wolfman30/derma-voice-agent/internal/directory"
	"github.com/wolfman30/derma-voice-agent/internal/speech"
	"github.com/wolfman30/derma-voice-agent/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.NewWithFormat("error", "text", io.Discard)
}

func TestSetupVoiceMetricsExposesMetrics(t *testing.T) {
	handler, m := setupVoiceMetrics()
	require.NotNil(t, handler)
	require.NotNil(t, m)

	m.CallStarted()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "dermavoice_voice_calls_started_total")
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestConnectPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	assert.Nil(t, connectPostgresPool(context.Background(), "", testLogger()))
}

func TestConnectRedis(t *testing.T) {
	assert.Nil(t, connectRedis(context.Background(), &appconfig.Config{}, testLogger()))

	mr := miniredis.RunT(t)
	rdb := connectRedis(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, testLogger())
	require.NotNil(t, rdb)
	t.Cleanup(func() { _ = rdb.Close() })
}

func TestNeedsAWS(t *testing.T) {
	assert.False(t, needsAWS(&appconfig.Config{AgentBackend: "scripted", TTSProvider: "none"}))
	assert.True(t, needsAWS(&appconfig.Config{AgentBackend: conversation.BackendBedrock}))
	assert.True(t, needsAWS(&appconfig.Config{TTSProvider: "google", AudioBucket: "audio"}))
	assert.False(t, needsAWS(&appconfig.Config{TTSProvider: "google"}))
}

func TestSetupEnginesFallsBackToScripted(t *testing.T) {
	dir := directory.Load("", testLogger())
	store := appointments.NewMemoryStore(dir)
	var closers cleanup

	for _, backend := range []string{"scripted", conversation.BackendGemini, conversation.BackendBedrock} {
		cfg := &appconfig.Config{AgentBackend: backend, GeminiAPIKey: "test_key"}
		engines := setupEngines(context.Background(), cfg, dir, store, nil, testLogger(), &closers)
		assert.Equal(t, conversation.BackendScripted, engines.Backend(), backend)
	}
	assert.Empty(t, closers)
}

func TestSetupTranscriberWithoutCredentials(t *testing.T) {
	var closers cleanup
	for _, provider := range []string{"deepgram", "none"} {
		cfg := &appconfig.Config{STTProvider: provider}
		assert.IsType(t, speech.NoopTranscriber{}, setupTranscriber(context.Background(), cfg, testLogger(), &closers), provider)
	}
}

func TestSetupTranscriberDeepgram(t *testing.T) {
	var closers cleanup
	cfg := &appconfig.Config{STTProvider: "deepgram", DeepgramAPIKey: "dg-key", DeepgramModel: "nova-2", TTSLanguage: "en-US"}

	assert.IsType(t, &speech.DeepgramTranscriber{}, setupTranscriber(context.Background(), cfg, testLogger(), &closers))
}

func TestSetupVoiceDisabled(t *testing.T) {
	var closers cleanup
	tests := []*appconfig.Config{
		{TTSProvider: "none"},
		{TTSProvider: "google"},
	}
	for _, cfg := range tests {
		assert.False(t, setupVoice(context.Background(), cfg, nil, testLogger(), &closers).Enabled())
	}
}

func TestCleanupRunsInReverse(t *testing.T) {
	var order []int
	var c cleanup
	c.add(func() { order = append(order, 1) })
	c.add(func() { order = append(order, 2) })

	c.run()

	assert.Equal(t, []int{2, 1}, order)
}
