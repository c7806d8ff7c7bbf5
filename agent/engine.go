// Package agent runs one model invocation over an assembled transcript
// and tool set, driving the tool-use loop until the model produces a
// final answer.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quailyquaily/verabot/llm"
	"github.com/quailyquaily/verabot/tools"
)

const (
	// DefaultMaxToolSteps bounds the tool-use loop inside a single
	// invocation.
	DefaultMaxToolSteps = 16

	emptyAnswerNotice = "Sorry, I didn't generate an answer. Please try rephrasing your question."
)

// Params carries the per-invocation model settings.
type Params struct {
	Model          string
	SystemPrompt   string
	Temperature    float64
	TopK           int
	ThinkingBudget int
	Guardrail      llm.GuardrailConfig
	MaxToolSteps   int
}

type Engine struct {
	client llm.Client
	logger *slog.Logger
}

func NewEngine(client llm.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{client: client, logger: logger}
}

// Run issues one top-level invocation: the transcript and tool set go in,
// the final answer text comes out. Tool calls requested by the model are
// executed in-loop, bounded by MaxToolSteps; the engine never retries a
// failed or safety-rejected invocation.
func (e *Engine) Run(ctx context.Context, transcript []llm.Message, registry *tools.Registry, params Params) (string, error) {
	if e == nil || e.client == nil {
		return "", fmt.Errorf("engine is not initialized")
	}
	if len(transcript) == 0 {
		return "", fmt.Errorf("transcript is required")
	}

	maxSteps := params.MaxToolSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxToolSteps
	}

	toolSpecs := toolSpecs(registry)
	messages := append([]llm.Message(nil), transcript...)

	for step := 0; step < maxSteps; step++ {
		resp, err := e.client.Converse(ctx, llm.Request{
			Model:          params.Model,
			System:         params.SystemPrompt,
			Messages:       messages,
			Tools:          toolSpecs,
			Temperature:    params.Temperature,
			TopK:           params.TopK,
			ThinkingBudget: params.ThinkingBudget,
			Guardrail:      params.Guardrail,
		})
		if err != nil {
			return "", err
		}

		if resp.StopReason == llm.StopToolUse && len(resp.ToolCalls) > 0 {
			e.logger.Info("tool_step", "step", step+1, "calls", len(resp.ToolCalls))
			messages = append(messages, resp.Message)
			messages = append(messages, e.executeToolCalls(ctx, registry, resp.ToolCalls))
			continue
		}

		return e.finalText(resp), nil
	}

	e.logger.Warn("tool_loop_exhausted", "max_steps", maxSteps)
	return emptyAnswerNotice, nil
}

// executeToolCalls runs every requested call and packs the results into a
// single user turn. A failing tool becomes an error result, never a
// failed invocation.
func (e *Engine) executeToolCalls(ctx context.Context, registry *tools.Registry, calls []llm.ToolCall) llm.Message {
	results := make([]llm.ContentBlock, 0, len(calls))
	for _, call := range calls {
		result := llm.ToolResult{ID: call.ID}
		tool, ok := registry.Get(call.Name)
		if !ok {
			result.Content = fmt.Sprintf("tool %q is not available", call.Name)
			result.IsError = true
		} else {
			out, err := tool.Execute(ctx, call.Input)
			if err != nil {
				e.logger.Warn("tool_execution_failed", "tool", call.Name, "error", err.Error())
				result.Content = err.Error()
				result.IsError = true
			} else {
				result.Content = out
			}
		}
		results = append(results, llm.ContentBlock{ToolResult: &result})
	}
	return llm.Message{Role: llm.RoleUser, Content: results}
}

func (e *Engine) finalText(resp *llm.Response) string {
	text := strings.TrimSpace(resp.Text)

	if resp.StopReason == llm.StopGuardrailIntervened {
		notice := GuardrailNotice(resp.GuardrailTrace)
		if text == "" {
			return notice
		}
		return text + "\n\n" + notice
	}

	if text == "" {
		e.logger.Warn("empty_model_answer", "stop_reason", resp.StopReason)
		return emptyAnswerNotice
	}
	return text
}

func toolSpecs(registry *tools.Registry) []llm.Tool {
	if registry == nil || registry.Len() == 0 {
		return nil
	}
	out := make([]llm.Tool, 0, registry.Len())
	for _, t := range registry.All() {
		out = append(out, llm.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.ParameterSchema(),
		})
	}
	return out
}
