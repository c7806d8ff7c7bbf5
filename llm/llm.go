// Package llm defines the provider-agnostic contract between the agent engine
// and the hosted model transport. Providers live under providers/.
package llm

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Supported image formats for Image content blocks.
var ImageFormats = map[string]bool{
	"png":  true,
	"jpeg": true,
	"gif":  true,
	"webp": true,
}

// Supported document formats for Document content blocks.
var DocumentFormats = map[string]bool{
	"pdf":      true,
	"csv":      true,
	"docx":     true,
	"xlsx":     true,
	"html":     true,
	"markdown": true,
}

// ContentBlock is a tagged union: exactly one of Text, Image, Document,
// ToolUse, ToolResult is set. Text is the zero-value arm.
type ContentBlock struct {
	Text       string
	Image      *ImageBlock
	Document   *DocumentBlock
	ToolUse    *ToolCall
	ToolResult *ToolResult
}

type ImageBlock struct {
	Format string
	Bytes  []byte
}

type DocumentBlock struct {
	Format string
	Name   string
	Bytes  []byte
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Text: text}
}

func (b ContentBlock) IsText() bool {
	return b.Image == nil && b.Document == nil && b.ToolUse == nil && b.ToolResult == nil
}

type Message struct {
	Role    string
	Content []ContentBlock
}

// Tool describes one callable capability offered to the model.
type Tool struct {
	Name        string
	Description string
	// InputSchema is a JSON schema object, serialized.
	InputSchema string
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult carries one executed tool call's outcome back to the model.
type ToolResult struct {
	ID      string
	Content string
	IsError bool
}

// GuardrailConfig enables the provider-side safety policy for a request.
type GuardrailConfig struct {
	Enabled    bool
	Identifier string
	Version    string
	Trace      bool
}

type Request struct {
	Model          string
	System         string
	Messages       []Message
	Tools          []Tool
	Temperature    float64
	TopK           int
	ThinkingBudget int
	Guardrail      GuardrailConfig
}

const (
	StopEndTurn             = "end_turn"
	StopToolUse             = "tool_use"
	StopGuardrailIntervened = "guardrail_intervened"
	StopMaxTokens           = "max_tokens"
)

type Response struct {
	// Message is the assistant turn exactly as the provider returned it,
	// including any tool_use blocks. Callers driving the tool loop append it
	// to the conversation before sending tool results.
	Message Message
	// Text is the concatenated text content of Message.
	Text       string
	ToolCalls  []ToolCall
	StopReason string
	// GuardrailTrace is set when the provider attached safety-policy trace
	// metadata to the response (typically on guardrail_intervened).
	GuardrailTrace *GuardrailTrace
}

// GuardrailTrace is the provider-supplied safety assessment metadata.
// Input holds the assessment of the request, Outputs the assessments of the
// candidate responses, both keyed by guardrail identifier.
type GuardrailTrace struct {
	Input   map[string]GuardrailAssessment
	Outputs map[string][]GuardrailAssessment
}

type GuardrailAssessment struct {
	ContentFilters []GuardrailContentFilter
	Topics         []GuardrailTopic
}

type GuardrailContentFilter struct {
	Type       string
	Confidence string
	Strength   string
}

type GuardrailTopic struct {
	Name string
}

// Client is the generative-model transport. One Converse call is one
// request/response exchange; the tool loop is driven by the caller.
type Client interface {
	Converse(ctx context.Context, req Request) (*Response, error)
}
