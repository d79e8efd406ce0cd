package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.opentelemetry.io/otel/trace"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockEngine runs the booking dialogue on the Bedrock Converse API with
// tool use. History is kept per engine, so one engine serves one call.
type BedrockEngine struct {
	api     bedrockConverseAPI
	modelID string
	tools   *Toolbox
	config  *brtypes.ToolConfiguration
	history []brtypes.Message
}

// NewBedrockEngine creates an engine for modelID.
func NewBedrockEngine(api bedrockConverseAPI, modelID string, tools *Toolbox) *BedrockEngine {
	if api == nil {
		panic("conversation: bedrock converse client cannot be nil")
	}
	return &BedrockEngine{
		api:     api,
		modelID: modelID,
		tools:   tools,
		config:  bedrockToolConfig(tools.Specs()),
	}
}

func bedrockToolConfig(specs []ToolSpec) *brtypes.ToolConfiguration {
	tools := make([]brtypes.Tool, 0, len(specs))
	for _, spec := range specs {
		props := map[string]any{}
		required := []string{}
		for _, p := range spec.Params {
			props[p.Name] = map[string]any{"type": "string", "description": p.Description}
			required = append(required, p.Name)
		}
		schema := map[string]any{"type": "object", "properties": props, "required": required}
		tools = append(tools, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(spec.Name),
			Description: aws.String(spec.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
		}})
	}
	return &brtypes.ToolConfiguration{Tools: tools}
}

// Process implements Engine. On failure the turn is dropped from history.
func (e *BedrockEngine) Process(ctx context.Context, utterance string) (string, error) {
	if strings.TrimSpace(e.modelID) == "" {
		return "", errors.New("conversation: bedrock model id is required")
	}
	ctx, span := tracer.Start(ctx, "conversation.bedrock.process")
	defer span.End()

	checkpoint := len(e.history)
	e.history = append(e.history, brtypes.Message{
		Role:    brtypes.ConversationRoleUser,
		Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: utterance}},
	})

	reply, err := e.converse(ctx, span)
	if err != nil {
		e.history = e.history[:checkpoint]
		span.RecordError(err)
		return "", err
	}
	return reply, nil
}

func (e *BedrockEngine) converse(ctx context.Context, span trace.Span) (string, error) {
	for round := 0; round < maxToolRounds; round++ {
		out, err := e.api.Converse(ctx, &bedrockruntime.ConverseInput{
			ModelId:    aws.String(e.modelID),
			System:     []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: systemPrompt}},
			Messages:   e.history,
			ToolConfig: e.config,
			InferenceConfig: &brtypes.InferenceConfiguration{
				Temperature: aws.Float32(0.7),
			},
		})
		if err != nil {
			return "", fmt.Errorf("conversation: bedrock converse failed: %w", err)
		}
		msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
		if !ok {
			return "", errors.New("conversation: bedrock response did not include a message output")
		}
		e.history = append(e.history, msgOut.Value)

		var text strings.Builder
		var results []brtypes.ContentBlock
		for _, block := range msgOut.Value.Content {
			switch b := block.(type) {
			case *brtypes.ContentBlockMemberText:
				text.WriteString(b.Value)
			case *brtypes.ContentBlockMemberToolUse:
				name := aws.ToString(b.Value.Name)
				span.AddEvent("tool_call", traceToolAttr(name))
				args := map[string]any{}
				if b.Value.Input != nil {
					if err := b.Value.Input.UnmarshalSmithyDocument(&args); err != nil {
						args = map[string]any{}
					}
				}
				results = append(results, &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
					ToolUseId: b.Value.ToolUseId,
					Content: []brtypes.ToolResultContentBlock{
						&brtypes.ToolResultContentBlockMemberText{Value: e.tools.Call(ctx, name, args)},
					},
				}})
			}
		}

		if len(results) == 0 {
			reply := strings.TrimSpace(text.String())
			if reply == "" {
				return "", errors.New("conversation: bedrock response contained no text content blocks")
			}
			return reply, nil
		}
		e.history = append(e.history, brtypes.Message{Role: brtypes.ConversationRoleUser, Content: results})
	}
	return "", errors.New("conversation: bedrock exceeded tool call rounds")
}
