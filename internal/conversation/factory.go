package conversation

import (
	"github.com/google/generative-ai-go/genai"

	"github.com/wolfman30/derma-voice-agent/internal/appointments"
	"github.com/wolfman30/derma-voice-agent/internal/directory"
	"github.com/wolfman30/derma-voice-agent/pkg/logging"
)

// Backend names accepted by AGENT_BACKEND.
const (
	BackendScripted = "scripted"
	BackendGemini   = "gemini"
	BackendBedrock  = "bedrock"
)

// FactoryConfig wires the dependencies engines are built from. Model clients
// are optional; a backend whose client is missing falls back to scripted.
type FactoryConfig struct {
	Backend        string
	Directory      *directory.Directory
	Store          appointments.Store
	Logger         *logging.Logger
	GeminiClient   *genai.Client
	GeminiModelID  string
	BedrockClient  bedrockConverseAPI
	BedrockModelID string
}

// Factory builds one fresh engine per call.
type Factory struct {
	cfg     FactoryConfig
	backend string
	tools   *Toolbox
}

// NewFactory resolves the effective backend from cfg.
func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Directory == nil {
		cfg.Directory = directory.New(nil)
	}
	if cfg.Store == nil {
		cfg.Store = appointments.NewMemoryStore(cfg.Directory)
	}

	backend := BackendScripted
	switch cfg.Backend {
	case BackendGemini:
		if cfg.GeminiClient != nil {
			backend = BackendGemini
		} else {
			cfg.Logger.Warn("gemini backend requested without a client, using scripted engine")
		}
	case BackendBedrock:
		if cfg.BedrockClient != nil && cfg.BedrockModelID != "" {
			backend = BackendBedrock
		} else {
			cfg.Logger.Warn("bedrock backend requested without a client or model id, using scripted engine")
		}
	}

	return &Factory{
		cfg:     cfg,
		backend: backend,
		tools:   NewToolbox(cfg.Directory, cfg.Store),
	}
}

// Backend reports which engine New returns.
func (f *Factory) Backend() string {
	return f.backend
}

// New returns an engine with empty conversation state.
func (f *Factory) New() Engine {
	switch f.backend {
	case BackendGemini:
		return NewGeminiEngine(f.cfg.GeminiClient, f.cfg.GeminiModelID, f.tools)
	case BackendBedrock:
		return NewBedrockEngine(f.cfg.BedrockClient, f.cfg.BedrockModelID, f.tools)
	default:
		return NewScriptedEngine(f.cfg.Directory, f.cfg.Store, f.cfg.Logger)
	}
}
