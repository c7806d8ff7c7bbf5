// Package bedrock adapts the provider-agnostic llm contract onto the
// AWS Bedrock Converse API.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/quailyquaily/verabot/llm"
)

type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type Client struct {
	api converseAPI
}

func NewClient(api converseAPI) *Client {
	return &Client{api: api}
}

// Converse issues a single Converse call and translates the reply back
// into the provider-agnostic response.
func (c *Client) Converse(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if c == nil || c.api == nil {
		return nil, fmt.Errorf("bedrock client is not initialized")
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("messages are required")
	}

	input, err := buildConverseInput(req)
	if err != nil {
		return nil, err
	}
	out, err := c.api.Converse(ctx, input)
	if err != nil {
		return nil, err
	}
	return parseConverseOutput(out)
}

func buildConverseInput(req llm.Request) (*bedrockruntime.ConverseInput, error) {
	messages := make([]types.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		converted, err := convertMessage(msg)
		if err != nil {
			return nil, err
		}
		messages = append(messages, converted)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.Model),
		Messages: messages,
	}
	if system := strings.TrimSpace(req.System); system != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		}
	}
	input.InferenceConfig = &types.InferenceConfiguration{
		Temperature: aws.Float32(float32(req.Temperature)),
	}

	extra := map[string]any{}
	if req.TopK > 0 {
		extra["top_k"] = req.TopK
	}
	if req.ThinkingBudget > 0 {
		extra["thinking"] = map[string]any{
			"type":          "enabled",
			"budget_tokens": req.ThinkingBudget,
		}
	}
	if len(extra) > 0 {
		input.AdditionalModelRequestFields = document.NewLazyDocument(extra)
	}

	if req.Guardrail.Enabled {
		trace := types.GuardrailTraceDisabled
		if req.Guardrail.Trace {
			trace = types.GuardrailTraceEnabled
		}
		input.GuardrailConfig = &types.GuardrailConfiguration{
			GuardrailIdentifier: aws.String(req.Guardrail.Identifier),
			GuardrailVersion:    aws.String(req.Guardrail.Version),
			Trace:               trace,
		}
	}

	if len(req.Tools) > 0 {
		toolSpecs := make([]types.Tool, 0, len(req.Tools))
		for _, tool := range req.Tools {
			var schema map[string]any
			if err := json.Unmarshal([]byte(tool.InputSchema), &schema); err != nil {
				return nil, fmt.Errorf("tool %q has invalid schema: %w", tool.Name, err)
			}
			toolSpecs = append(toolSpecs, &types.ToolMemberToolSpec{
				Value: types.ToolSpecification{
					Name:        aws.String(tool.Name),
					Description: aws.String(tool.Description),
					InputSchema: &types.ToolInputSchemaMemberJson{
						Value: document.NewLazyDocument(schema),
					},
				},
			})
		}
		input.ToolConfig = &types.ToolConfiguration{Tools: toolSpecs}
	}

	return input, nil
}

func convertMessage(msg llm.Message) (types.Message, error) {
	role := types.ConversationRoleUser
	if msg.Role == llm.RoleAssistant {
		role = types.ConversationRoleAssistant
	}

	blocks := make([]types.ContentBlock, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch {
		case block.Image != nil:
			blocks = append(blocks, &types.ContentBlockMemberImage{Value: types.ImageBlock{
				Format: types.ImageFormat(block.Image.Format),
				Source: &types.ImageSourceMemberBytes{Value: block.Image.Bytes},
			}})
		case block.Document != nil:
			blocks = append(blocks, &types.ContentBlockMemberDocument{Value: types.DocumentBlock{
				Format: types.DocumentFormat(block.Document.Format),
				Name:   aws.String(block.Document.Name),
				Source: &types.DocumentSourceMemberBytes{Value: block.Document.Bytes},
			}})
		case block.ToolUse != nil:
			blocks = append(blocks, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
				ToolUseId: aws.String(block.ToolUse.ID),
				Name:      aws.String(block.ToolUse.Name),
				Input:     document.NewLazyDocument(block.ToolUse.Input),
			}})
		case block.ToolResult != nil:
			status := types.ToolResultStatusSuccess
			if block.ToolResult.IsError {
				status = types.ToolResultStatusError
			}
			blocks = append(blocks, &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
				ToolUseId: aws.String(block.ToolResult.ID),
				Status:    status,
				Content: []types.ToolResultContentBlock{
					&types.ToolResultContentBlockMemberText{Value: block.ToolResult.Content},
				},
			}})
		default:
			blocks = append(blocks, &types.ContentBlockMemberText{Value: block.Text})
		}
	}
	if len(blocks) == 0 {
		return types.Message{}, fmt.Errorf("message has no content")
	}
	return types.Message{Role: role, Content: blocks}, nil
}

func parseConverseOutput(out *bedrockruntime.ConverseOutput) (*llm.Response, error) {
	if out == nil {
		return nil, fmt.Errorf("bedrock returned an empty response")
	}

	resp := &llm.Response{StopReason: stopReason(out.StopReason)}
	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		assistant := llm.Message{Role: llm.RoleAssistant}
		var texts []string
		for _, block := range msg.Value.Content {
			switch b := block.(type) {
			case *types.ContentBlockMemberText:
				texts = append(texts, b.Value)
				assistant.Content = append(assistant.Content, llm.TextBlock(b.Value))
			case *types.ContentBlockMemberToolUse:
				call := llm.ToolCall{
					ID:   aws.ToString(b.Value.ToolUseId),
					Name: aws.ToString(b.Value.Name),
				}
				if b.Value.Input != nil {
					args, err := decodeToolInput(b.Value.Input)
					if err != nil {
						return nil, fmt.Errorf("tool call %q has invalid input: %w", call.Name, err)
					}
					call.Input = args
				}
				resp.ToolCalls = append(resp.ToolCalls, call)
				assistant.Content = append(assistant.Content, llm.ContentBlock{ToolUse: &call})
			}
		}
		resp.Message = assistant
		resp.Text = strings.TrimSpace(strings.Join(texts, "\n"))
	}

	if out.Trace != nil && out.Trace.Guardrail != nil {
		resp.GuardrailTrace = convertGuardrailTrace(out.Trace.Guardrail)
	}
	return resp, nil
}

// decodeToolInput flattens a smithy document into a plain parameter map.
// Going through the serialized form works for documents decoded off the
// wire and for lazily built ones alike; unmarshalling a lazy document
// straight into a map does not.
func decodeToolInput(doc document.Interface) (map[string]any, error) {
	raw, err := doc.MarshalSmithyDocument()
	if err != nil {
		return nil, err
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}

func stopReason(reason types.StopReason) string {
	switch reason {
	case types.StopReasonToolUse:
		return llm.StopToolUse
	case types.StopReasonGuardrailIntervened:
		return llm.StopGuardrailIntervened
	case types.StopReasonMaxTokens:
		return llm.StopMaxTokens
	default:
		return llm.StopEndTurn
	}
}

func convertGuardrailTrace(trace *types.GuardrailTraceAssessment) *llm.GuardrailTrace {
	out := &llm.GuardrailTrace{
		Input:   map[string]llm.GuardrailAssessment{},
		Outputs: map[string][]llm.GuardrailAssessment{},
	}
	for id, assessment := range trace.InputAssessment {
		out.Input[id] = convertAssessment(assessment)
	}
	for id, assessments := range trace.OutputAssessments {
		converted := make([]llm.GuardrailAssessment, 0, len(assessments))
		for _, assessment := range assessments {
			converted = append(converted, convertAssessment(assessment))
		}
		out.Outputs[id] = converted
	}
	return out
}

func convertAssessment(assessment types.GuardrailAssessment) llm.GuardrailAssessment {
	var out llm.GuardrailAssessment
	if assessment.ContentPolicy != nil {
		for _, filter := range assessment.ContentPolicy.Filters {
			out.ContentFilters = append(out.ContentFilters, llm.GuardrailContentFilter{
				Type:       string(filter.Type),
				Confidence: string(filter.Confidence),
				Strength:   string(filter.FilterStrength),
			})
		}
	}
	if assessment.TopicPolicy != nil {
		for _, topic := range assessment.TopicPolicy.Topics {
			out.Topics = append(out.Topics, llm.GuardrailTopic{Name: aws.ToString(topic.Name)})
		}
	}
	return out
}
