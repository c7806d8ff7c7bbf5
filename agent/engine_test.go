package agent

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/quailyquaily/verabot/llm"
	"github.com/quailyquaily/verabot/tools"
)

type scriptedClient struct {
	responses []*llm.Response
	err       error
	requests  []llm.Request
}

func (c *scriptedClient) Converse(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	idx := len(c.requests) - 1
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return c.responses[idx], nil
}

func textResponse(text string) *llm.Response {
	return &llm.Response{
		Message:    llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentBlock{llm.TextBlock(text)}},
		Text:       text,
		StopReason: llm.StopEndTurn,
	}
}

func userTranscript(text string) []llm.Message {
	return []llm.Message{{Role: llm.RoleUser, Content: []llm.ContentBlock{llm.TextBlock(text)}}}
}

func newTestEngine(client llm.Client) *Engine {
	return NewEngine(client, slog.New(slog.DiscardHandler))
}

func TestRunReturnsFinalText(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{responses: []*llm.Response{textResponse("hi")}}
	e := newTestEngine(client)

	got, err := e.Run(context.Background(), userTranscript("Alice says: hello"), tools.NewRegistry(), Params{Model: "m"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "hi" {
		t.Fatalf("got %q, want %q", got, "hi")
	}
	if len(client.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(client.requests))
	}
}

func TestRunExecutesToolLoop(t *testing.T) {
	t.Parallel()

	call := llm.ToolCall{ID: "tu-1", Name: "calculator", Input: map[string]any{"expression": "1+1"}}
	client := &scriptedClient{responses: []*llm.Response{
		{
			Message: llm.Message{
				Role:    llm.RoleAssistant,
				Content: []llm.ContentBlock{{ToolUse: &call}},
			},
			ToolCalls:  []llm.ToolCall{call},
			StopReason: llm.StopToolUse,
		},
		textResponse("the answer is 2"),
	}}
	e := newTestEngine(client)

	registry := tools.NewRegistry()
	executed := false
	_ = registry.Register(tools.NewFuncTool("calculator", "calc", `{"type":"object"}`,
		func(_ context.Context, params map[string]any) (string, error) {
			executed = true
			if params["expression"] != "1+1" {
				t.Errorf("params = %v", params)
			}
			return "2", nil
		}))

	got, err := e.Run(context.Background(), userTranscript("1+1?"), registry, Params{Model: "m"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "the answer is 2" {
		t.Fatalf("got %q", got)
	}
	if !executed {
		t.Fatal("tool was not executed")
	}

	// The second request must carry the assistant tool-use turn and the
	// tool result turn appended after the original transcript.
	second := client.requests[1]
	if len(second.Messages) != 3 {
		t.Fatalf("second request messages = %d, want 3", len(second.Messages))
	}
	resultBlock := second.Messages[2].Content[0].ToolResult
	if resultBlock == nil || resultBlock.ID != "tu-1" || resultBlock.Content != "2" {
		t.Fatalf("tool result = %+v", resultBlock)
	}
}

func TestRunToolFailureBecomesErrorResult(t *testing.T) {
	t.Parallel()

	call := llm.ToolCall{ID: "tu-1", Name: "calculator", Input: map[string]any{"expression": "bad"}}
	client := &scriptedClient{responses: []*llm.Response{
		{
			Message:    llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentBlock{{ToolUse: &call}}},
			ToolCalls:  []llm.ToolCall{call},
			StopReason: llm.StopToolUse,
		},
		textResponse("I could not compute that"),
	}}
	e := newTestEngine(client)

	registry := tools.NewRegistry()
	_ = registry.Register(tools.NewFuncTool("calculator", "calc", `{"type":"object"}`,
		func(context.Context, map[string]any) (string, error) {
			return "", errors.New("invalid expression")
		}))

	got, err := e.Run(context.Background(), userTranscript("bad?"), registry, Params{Model: "m"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "I could not compute that" {
		t.Fatalf("got %q", got)
	}
	resultBlock := client.requests[1].Messages[2].Content[0].ToolResult
	if resultBlock == nil || !resultBlock.IsError || resultBlock.Content != "invalid expression" {
		t.Fatalf("tool result = %+v", resultBlock)
	}
}

func TestRunUnknownToolBecomesErrorResult(t *testing.T) {
	t.Parallel()

	call := llm.ToolCall{ID: "tu-1", Name: "missing_tool"}
	client := &scriptedClient{responses: []*llm.Response{
		{
			Message:    llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentBlock{{ToolUse: &call}}},
			ToolCalls:  []llm.ToolCall{call},
			StopReason: llm.StopToolUse,
		},
		textResponse("done"),
	}}
	e := newTestEngine(client)

	got, err := e.Run(context.Background(), userTranscript("x"), tools.NewRegistry(), Params{Model: "m"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "done" {
		t.Fatalf("got %q", got)
	}
	resultBlock := client.requests[1].Messages[2].Content[0].ToolResult
	if resultBlock == nil || !resultBlock.IsError {
		t.Fatalf("tool result = %+v", resultBlock)
	}
}

func TestRunStopsAtMaxToolSteps(t *testing.T) {
	t.Parallel()

	call := llm.ToolCall{ID: "tu-1", Name: "spin"}
	loop := &llm.Response{
		Message:    llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentBlock{{ToolUse: &call}}},
		ToolCalls:  []llm.ToolCall{call},
		StopReason: llm.StopToolUse,
	}
	client := &scriptedClient{responses: []*llm.Response{loop}}
	e := newTestEngine(client)

	registry := tools.NewRegistry()
	_ = registry.Register(tools.NewFuncTool("spin", "loops", `{"type":"object"}`,
		func(context.Context, map[string]any) (string, error) { return "again", nil }))

	got, err := e.Run(context.Background(), userTranscript("x"), registry, Params{Model: "m", MaxToolSteps: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != emptyAnswerNotice {
		t.Fatalf("got %q, want fallback notice", got)
	}
	if len(client.requests) != 3 {
		t.Fatalf("requests = %d, want 3", len(client.requests))
	}
}

func TestRunEmptyAnswerGetsFixedNotice(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{responses: []*llm.Response{textResponse("")}}
	e := newTestEngine(client)

	got, err := e.Run(context.Background(), userTranscript("hello"), nil, Params{Model: "m"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != emptyAnswerNotice {
		t.Fatalf("got %q", got)
	}
}

func TestRunModelErrorIsReturned(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{err: errors.New("throttled")}
	e := newTestEngine(client)

	_, err := e.Run(context.Background(), userTranscript("hello"), nil, Params{Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
	// Exactly one attempt: the engine never retries.
	if len(client.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(client.requests))
	}
}

func TestRunGuardrailInterventionEnrichesText(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{responses: []*llm.Response{{
		Message:    llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentBlock{llm.TextBlock("I can't help with that.")}},
		Text:       "I can't help with that.",
		StopReason: llm.StopGuardrailIntervened,
		GuardrailTrace: &llm.GuardrailTrace{
			Input: map[string]llm.GuardrailAssessment{
				"gr-1": {ContentFilters: []llm.GuardrailContentFilter{{Type: "VIOLENCE", Confidence: "HIGH", Strength: "HIGH"}}},
			},
		},
	}}}
	e := newTestEngine(client)

	got, err := e.Run(context.Background(), userTranscript("bad request"), nil, Params{Model: "m"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "I can't help with that.\n\nThis request was blocked by the safety policy: content filter VIOLENCE (confidence HIGH, strength HIGH)."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRunSendsToolSpecs(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{responses: []*llm.Response{textResponse("hi")}}
	e := newTestEngine(client)

	registry := tools.NewRegistry()
	_ = registry.Register(tools.NewFuncTool("current_time", "clock", `{"type":"object"}`,
		func(context.Context, map[string]any) (string, error) { return "", nil }))

	if _, err := e.Run(context.Background(), userTranscript("hi"), registry, Params{Model: "m"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(client.requests[0].Tools) != 1 || client.requests[0].Tools[0].Name != "current_time" {
		t.Fatalf("tools = %+v", client.requests[0].Tools)
	}
}
