package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	LogFormat     string
	Version       string

	// Conversation engine
	AgentBackend   string
	GeminiAPIKey   string
	GeminiModelID  string
	BedrockModelID string
	DoctorsFile    string

	// Storage
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Speech
	STTProvider    string
	DeepgramAPIKey string
	DeepgramModel  string
	TTSProvider    string
	TTSVoiceName   string
	TTSLanguage    string
	AudioBucket    string
	AudioURLTTL    time.Duration

	// Telephony
	SayVoice             string
	RecordTimeoutSeconds int
	TwilioWebhookSecret  string

	// Sessions
	SessionIdleTimeout   time.Duration
	SessionSweepInterval time.Duration

	// HTTP surface
	AdminJWTSecret     string
	RateLimitRPS       float64
	RateLimitBurst     int
	EnableDevEndpoints bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "3000"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		Version:       getEnv("APP_VERSION", "1.0.0"),

		AgentBackend:   strings.ToLower(strings.TrimSpace(getEnv("AGENT_BACKEND", "scripted"))),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", getEnv("GEMINIAI_API_KEY", "")),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		DoctorsFile:    getEnv("DOCTORS_FILE", ""),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		STTProvider:    strings.ToLower(strings.TrimSpace(getEnv("STT_PROVIDER", "deepgram"))),
		DeepgramAPIKey: getEnv("DEEPGRAM_API_KEY", ""),
		DeepgramModel:  getEnv("DEEPGRAM_MODEL", "nova-2"),
		TTSProvider:    strings.ToLower(strings.TrimSpace(getEnv("TTS_PROVIDER", "none"))),
		TTSVoiceName:   getEnv("TTS_VOICE_NAME", "en-US-Neural2-F"),
		TTSLanguage:    getEnv("TTS_LANGUAGE", "en-US"),
		AudioBucket:    getEnv("AUDIO_BUCKET", ""),
		AudioURLTTL:    getEnvAsDuration("AUDIO_URL_TTL", 15*time.Minute),

		SayVoice:             getEnv("SAY_VOICE", "woman"),
		RecordTimeoutSeconds: getEnvAsInt("RECORD_TIMEOUT_SECONDS", 10),
		TwilioWebhookSecret:  getEnv("TWILIO_WEBHOOK_SECRET", ""),

		SessionIdleTimeout:   getEnvAsDuration("SESSION_IDLE_TIMEOUT", 15*time.Minute),
		SessionSweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", time.Minute),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),
		EnableDevEndpoints: getEnvAsBool("ENABLE_DEV_ENDPOINTS", true),
	}
}

// HasGeminiKey reports whether a usable Gemini key is configured. The
// placeholder "test_key" counts as missing.
func (c *Config) HasGeminiKey() bool {
	key := strings.TrimSpace(c.GeminiAPIKey)
	return key != "" && key != "test_key"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
