package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxToolRounds = 5

var tracer = otel.Tracer("dermavoice.internal.conversation")

// geminiChat is the part of *genai.ChatSession the engine needs.
type geminiChat interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiEngine runs the booking dialogue on Gemini with function calling.
// The chat session keeps the conversation history for one call.
type GeminiEngine struct {
	chat  geminiChat
	tools *Toolbox
}

// NewGeminiEngine starts a chat session on modelID with the booking tools attached.
func NewGeminiEngine(client *genai.Client, modelID string, tools *Toolbox) *GeminiEngine {
	if client == nil {
		panic("conversation: gemini client cannot be nil")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}
	model := client.GenerativeModel(modelID)
	model.SetTemperature(0.7)
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	model.Tools = []*genai.Tool{{FunctionDeclarations: geminiDeclarations(tools.Specs())}}
	return newGeminiEngine(model.StartChat(), tools)
}

func newGeminiEngine(chat geminiChat, tools *Toolbox) *GeminiEngine {
	return &GeminiEngine{chat: chat, tools: tools}
}

func geminiDeclarations(specs []ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		schema := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
		for _, p := range spec.Params {
			schema.Properties[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
			schema.Required = append(schema.Required, p.Name)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  schema,
		})
	}
	return decls
}

// Process implements Engine.
func (e *GeminiEngine) Process(ctx context.Context, utterance string) (string, error) {
	ctx, span := tracer.Start(ctx, "conversation.gemini.process")
	defer span.End()

	parts := []genai.Part{genai.Text(utterance)}
	for round := 0; round < maxToolRounds; round++ {
		resp, err := e.chat.SendMessage(ctx, parts...)
		if err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("conversation: gemini completion failed: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", errors.New("conversation: gemini returned no candidates")
		}

		var text strings.Builder
		var calls []genai.FunctionCall
		for _, part := range resp.Candidates[0].Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				text.WriteString(string(p))
			case genai.FunctionCall:
				calls = append(calls, p)
			case *genai.FunctionCall:
				calls = append(calls, *p)
			}
		}
		if len(calls) == 0 {
			reply := strings.TrimSpace(text.String())
			if reply == "" {
				return "", errors.New("conversation: gemini returned empty content")
			}
			return reply, nil
		}

		// The chat session keeps the previous parts in its history.
		parts = make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			span.AddEvent("tool_call", traceToolAttr(call.Name))
			parts = append(parts, genai.FunctionResponse{
				Name:     call.Name,
				Response: map[string]any{"result": e.tools.Call(ctx, call.Name, call.Args)},
			})
		}
	}
	return "", errors.New("conversation: gemini exceeded tool call rounds")
}

func traceToolAttr(name string) trace.EventOption {
	return trace.WithAttributes(attribute.String("tool", name))
}
