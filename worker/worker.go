package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quailyquaily/verabot/agent"
	"github.com/quailyquaily/verabot/conversation"
	"github.com/quailyquaily/verabot/internal/config"
	"github.com/quailyquaily/verabot/internal/eventgate"
	"github.com/quailyquaily/verabot/internal/slackapi"
	"github.com/quailyquaily/verabot/llm"
	"github.com/quailyquaily/verabot/providers/mcptool"
	"github.com/quailyquaily/verabot/tools"
)

const (
	placeholderTemplate = "🚀 %[1]s is connecting to platforms and analyzing your request.\n\n%[1]s can be slow while using tools, so give it a minute or two. Slack will alert you of a new message in this thread when the answer is ready.\n\n:turtle::turtle::turtle::turtle::turtle:"
	unsupportedNotice   = "Sorry, I can't read that file type. I understand images (png, jpeg, gif, webp), documents (pdf, csv, docx, xlsx, html, markdown) and plain text."
)

// SlackGateway is the chat platform surface one invocation needs.
type SlackGateway interface {
	MessageAPI
	ThreadReplies(ctx context.Context, channelID, threadTS string) ([]slackapi.Message, error)
	UserProfile(ctx context.Context, userID string) (slackapi.UserProfile, error)
	DownloadFile(ctx context.Context, fileURL string) ([]byte, error)
}

// ToolConnector opens external tool-provider connections for one
// invocation and tears them down afterwards.
type ToolConnector interface {
	Assemble(ctx context.Context, configs []mcptool.Config, secrets func(string) (string, bool), into *tools.Registry) error
	CloseAll() error
}

type Options struct {
	Config       config.Config
	Slack        SlackGateway
	Identity     slackapi.BotIdentity
	Engine       *agent.Engine
	Builtins     []tools.Tool
	Catalog      []mcptool.Config
	Secrets      func(string) (string, bool)
	NewConnector func() ToolConnector
	Logger       *slog.Logger
}

// Worker runs one full invocation per inbound event. Invocations share
// no mutable state; every call assembles and discards its own tool set.
type Worker struct {
	cfg          config.Config
	slack        SlackGateway
	gate         *eventgate.Gate
	builder      *conversation.Builder
	engine       *agent.Engine
	builtins     []tools.Tool
	catalog      []mcptool.Config
	secrets      func(string) (string, bool)
	newConnector func() ToolConnector
	systemPrompt string
	logger       *slog.Logger
}

func New(opts Options) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	secrets := opts.Secrets
	if secrets == nil {
		secrets = func(string) (string, bool) { return "", false }
	}
	newConnector := opts.NewConnector
	if newConnector == nil {
		newConnector = func() ToolConnector { return mcptool.NewRegistry(nil, logger) }
	}
	normalizer := conversation.NewNormalizer(opts.Slack, opts.Slack, logger)
	w := &Worker{
		cfg:          opts.Config,
		slack:        opts.Slack,
		gate:         eventgate.NewGate(opts.Config.BotName, opts.Identity),
		builder:      conversation.NewBuilder(normalizer, opts.Slack, opts.Identity),
		engine:       opts.Engine,
		builtins:     opts.Builtins,
		catalog:      opts.Catalog,
		secrets:      secrets,
		newConnector: newConnector,
		logger:       logger,
	}
	w.systemPrompt = strings.TrimSpace(opts.Config.SystemPrompt)
	if w.systemPrompt == "" {
		var enabled []string
		for _, cfg := range w.enabledCatalog() {
			if cfg.Enabled {
				enabled = append(enabled, cfg.ID)
			}
		}
		w.systemPrompt = agent.AugmentPromptForProviders(agent.DefaultPromptSpec(opts.Config.BotName), enabled).Render()
	}
	return w
}

// HandleEvent processes one inbound event end to end. It never returns
// an error: every failure path ends in a logged, user-visible notice.
func (w *Worker) HandleEvent(ctx context.Context, event eventgate.InboundEvent) {
	if ignore, reason := w.gate.ShouldIgnore(event); ignore {
		w.logger.Debug("event_ignored", "reason", reason, "channel_id", event.Channel, "ts", event.TS)
		return
	}

	channelID := event.Channel
	threadTS := strings.TrimSpace(event.ThreadTS)
	if threadTS == "" {
		threadTS = strings.TrimSpace(event.TS)
	}

	transcript, err := w.builder.Build(ctx, channelID, event.Message())
	if err != nil {
		if errors.Is(err, conversation.ErrEmptyTranscript) {
			w.logger.Info("empty_transcript", "channel_id", channelID, "had_unsupported", transcript.HadUnsupported)
			w.postNotice(ctx, channelID, threadTS, unsupportedNotice)
			return
		}
		w.logger.Warn("transcript_build_failed", "channel_id", channelID, "error", err.Error())
		w.postNotice(ctx, channelID, threadTS, inlineErrorPrefix+err.Error())
		return
	}

	placeholder := NewResponder(w.slack, w.logger, channelID, threadTS)
	placeholder.Send(ctx, fmt.Sprintf(placeholderTemplate, w.cfg.BotName))

	registry := tools.NewRegistry()
	for _, builtin := range w.builtins {
		if err := registry.Register(builtin); err != nil {
			w.logger.Warn("builtin_tool_skipped", "tool", builtin.Name(), "error", err.Error())
		}
	}

	connector := w.newConnector()
	defer func() {
		if err := connector.CloseAll(); err != nil {
			w.logger.Warn("tool_teardown_incomplete", "error", err.Error())
		}
	}()
	if err := connector.Assemble(ctx, w.enabledCatalog(), w.secrets, registry); err != nil {
		w.logger.Warn("tool_assembly_failed", "error", err.Error())
	}

	answer, err := w.engine.Run(ctx, transcript.Messages, registry, agent.Params{
		Model:          w.cfg.Model,
		SystemPrompt:   w.systemPrompt,
		Temperature:    w.cfg.Temperature,
		TopK:           w.cfg.TopK,
		ThinkingBudget: w.cfg.TokenBudget,
		MaxToolSteps:   w.cfg.MaxToolSteps,
		Guardrail: llm.GuardrailConfig{
			Enabled:    w.cfg.Guardrail.Enabled,
			Identifier: w.cfg.Guardrail.Identifier,
			Version:    w.cfg.Guardrail.Version,
			Trace:      w.cfg.Guardrail.Trace,
		},
	})

	// The placeholder is deleted, never edited into the answer.
	placeholder.Delete(ctx)

	if err != nil {
		w.logger.Warn("model_invocation_failed", "channel_id", channelID, "error", err.Error())
		w.postNotice(ctx, channelID, threadTS, inlineErrorPrefix+err.Error())
		return
	}

	final := NewResponder(w.slack, w.logger, channelID, threadTS)
	final.Send(ctx, answer)
}

// enabledCatalog applies the per-provider enable flags to the static
// catalog.
func (w *Worker) enabledCatalog() []mcptool.Config {
	out := make([]mcptool.Config, 0, len(w.catalog))
	for _, cfg := range w.catalog {
		cfg.Enabled = cfg.Enabled || w.cfg.ProviderEnabled(cfg.ID)
		out = append(out, cfg)
	}
	return out
}

func (w *Worker) postNotice(ctx context.Context, channelID, threadTS, text string) {
	if _, err := w.slack.PostMessage(ctx, channelID, text, threadTS); err != nil {
		w.logger.Warn("notice_post_failed", "channel_id", channelID, "error", err.Error())
	}
}
