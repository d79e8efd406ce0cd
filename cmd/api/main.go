package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	speechapi "cloud.google.com/go/speech/apiv1"
	ttsapi "cloud.google.com/go/texttospeech/apiv1"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/google/generative-ai-go/genai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"github.com/wolfman30/derma-voice-agent/cmd/mainconfig"
	"github.com/wolfman30/derma-voice-agent/internal/api/router"
	"github.com/wolfman30/derma-voice-agent/internal/appointments"
	appconfig "github.com/wolfman30/derma-voice-agent/internal/config"
	"github.com/wolfman30/derma-voice-agent/internal/conversation"
	"github.com/wolfman30/derma-voice-agent/internal/directory"
	httpmiddleware "github.com/wolfman30/derma-voice-agent/internal/http/middleware"
	"github.com/wolfman30/derma-voice-agent/internal/observability/metrics"
	"github.com/wolfman30/derma-voice-agent/internal/session"
	"github.com/wolfman30/derma-voice-agent/internal/speech"
	"github.com/wolfman30/derma-voice-agent/internal/telephony"
	"github.com/wolfman30/derma-voice-agent/pkg/logging"
)

// cleanup collects shutdown funcs for clients opened during startup.
type cleanup []func()

func (c *cleanup) add(fn func()) { *c = append(*c, fn) }

func (c cleanup) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logger.Info("starting derma voice agent",
		"env", cfg.Env,
		"port", cfg.Port,
		"agent_backend", cfg.AgentBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers cleanup
	defer closers.run()

	metricsHandler, voiceMetrics := setupVoiceMetrics()

	dir := directory.Load(cfg.DoctorsFile, logger)
	var store appointments.Store = appointments.NewMemoryStore(dir)
	if pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger); pool != nil {
		closers.add(pool.Close)
		store = appointments.NewPostgresStore(pool, dir)
	}
	store = appointments.Observe(store, voiceMetrics.ObserveBooking)

	var awsCfg *aws.Config
	if needsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		awsCfg = &loaded
	}

	engines := setupEngines(ctx, cfg, dir, store, awsCfg, logger, &closers)
	transcriber := setupTranscriber(ctx, cfg, logger, &closers)
	voice := setupVoice(ctx, cfg, awsCfg, logger, &closers)
	voice.OnFailure(voiceMetrics.ObserveSpeechFailure)

	registryOpts := []session.Option{
		session.WithIdleTimeout(cfg.SessionIdleTimeout),
		session.WithHooks(session.Hooks{
			OnStart: voiceMetrics.CallStarted,
			OnEnd:   voiceMetrics.CallEnded,
		}),
	}
	var callsHandler *session.CallHandler
	if rdb := connectRedis(ctx, cfg, logger); rdb != nil {
		closers.add(func() { _ = rdb.Close() })
		archive := session.NewRedisArchive(rdb)
		registryOpts = append(registryOpts, session.WithArchive(archive))
		callsHandler = session.NewCallHandler(archive, logger)
	}
	sessions := session.NewRegistry(engines.New, logger, registryOpts...)
	go sessions.Run(ctx, cfg.SessionSweepInterval)

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		go limiter.Run(ctx, time.Minute)
	}

	markup := telephony.DefaultMarkup()
	markup.Voice = cfg.SayVoice
	markup.RecordTimeout = cfg.RecordTimeoutSeconds

	// Setup router
	r := router.New(&router.Config{
		Logger:  logger,
		Version: cfg.Version,
		VoiceHandler: telephony.NewHandler(telephony.HandlerConfig{
			Sessions:    sessions,
			Transcriber: transcriber,
			Voice:       voice,
			Markup:      &markup,
			Metrics:     voiceMetrics,
			Logger:      logger,
		}),
		AppointmentsHandler: appointments.NewHandler(store, logger),
		CallsHandler:        callsHandler,
		MetricsHandler:      metricsHandler,
		WebhookSecret:       cfg.TwilioWebhookSecret,
		PublicBaseURL:       cfg.PublicBaseURL,
		AdminAuthSecret:     cfg.AdminJWTSecret,
		RateLimiter:         limiter,
		EnableDevEndpoints:  cfg.EnableDevEndpoints,
		Engines:             engines,
		STTProvider:         cfg.STTProvider,
		TTSProvider:         cfg.TTSProvider,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("server error", "error", err)
	}

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("server stopped", "open_sessions", sessions.Len())
	fmt.Println("Server exited gracefully")
}

func setupVoiceMetrics() (http.Handler, *metrics.VoiceMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewVoiceMetrics(reg)
}

func needsAWS(cfg *appconfig.Config) bool {
	return cfg.AgentBackend == conversation.BackendBedrock ||
		(cfg.TTSProvider == "google" && cfg.AudioBucket != "")
}

func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		logger.Info("DATABASE_URL not set, appointments kept in memory")
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool, appointments kept in memory", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("postgres unreachable, appointments kept in memory", "error", err)
		pool.Close()
		return nil
	}
	logger.Info("connected to postgres")
	return pool
}

func connectRedis(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Error("redis unreachable, call transcripts will not be archived", "addr", cfg.RedisAddr, "error", err)
		_ = rdb.Close()
		return nil
	}
	logger.Info("call transcripts archived to redis", "addr", cfg.RedisAddr)
	return rdb
}

func setupEngines(ctx context.Context, cfg *appconfig.Config, dir *directory.Directory, store appointments.Store, awsCfg *aws.Config, logger *logging.Logger, closers *cleanup) *conversation.Factory {
	fc := conversation.FactoryConfig{
		Backend:        cfg.AgentBackend,
		Directory:      dir,
		Store:          store,
		Logger:         logger,
		GeminiModelID:  cfg.GeminiModelID,
		BedrockModelID: cfg.BedrockModelID,
	}
	switch cfg.AgentBackend {
	case conversation.BackendGemini:
		if !cfg.HasGeminiKey() {
			logger.Warn("GEMINI_API_KEY not set, using scripted engine")
			break
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			logger.Error("failed to create gemini client, using scripted engine", "error", err)
			break
		}
		closers.add(func() { _ = client.Close() })
		fc.GeminiClient = client
	case conversation.BackendBedrock:
		if awsCfg != nil {
			fc.BedrockClient = bedrockruntime.NewFromConfig(*awsCfg)
		}
	}
	engines := conversation.NewFactory(fc)
	logger.Info("conversation engine ready", "backend", engines.Backend())
	return engines
}

func setupTranscriber(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, closers *cleanup) speech.Transcriber {
	switch cfg.STTProvider {
	case "deepgram":
		t, err := speech.NewDeepgramTranscriber(cfg.DeepgramAPIKey, cfg.DeepgramModel, cfg.TTSLanguage)
		if err != nil {
			logger.Warn("deepgram transcriber disabled", "error", err)
			return speech.NoopTranscriber{}
		}
		return t
	case "google":
		client, err := speechapi.NewClient(ctx)
		if err != nil {
			logger.Warn("google speech transcriber disabled", "error", err)
			return speech.NoopTranscriber{}
		}
		closers.add(func() { _ = client.Close() })
		return speech.NewGoogleTranscriber(client, cfg.TTSLanguage)
	default:
		logger.Warn("speech-to-text disabled, every recording will be treated as not understood", "provider", cfg.STTProvider)
		return speech.NoopTranscriber{}
	}
}

// setupVoice returns a Voice that renders audio when both Google TTS and an
// audio bucket are configured. Otherwise calls use <Say> markup.
func setupVoice(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger, closers *cleanup) *speech.Voice {
	if cfg.TTSProvider != "google" || cfg.AudioBucket == "" || awsCfg == nil {
		return speech.NewVoice(speech.NoopSynthesizer{}, nil, logger)
	}
	client, err := ttsapi.NewClient(ctx)
	if err != nil {
		logger.Warn("google text-to-speech disabled", "error", err)
		return speech.NewVoice(speech.NoopSynthesizer{}, nil, logger)
	}
	closers.add(func() { _ = client.Close() })

	store := speech.NewS3AudioStore(mainconfig.NewS3Client(*awsCfg, cfg), cfg.AudioBucket, cfg.AudioURLTTL)
	logger.Info("synthesized speech enabled", "voice", cfg.TTSVoiceName, "bucket", cfg.AudioBucket)
	return speech.NewVoice(speech.NewGoogleSynthesizer(client, cfg.TTSVoiceName, cfg.TTSLanguage), store, logger)
}
