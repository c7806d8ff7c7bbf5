package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/quailyquaily/verabot/agent"
	"github.com/quailyquaily/verabot/internal/config"
	"github.com/quailyquaily/verabot/internal/eventgate"
	"github.com/quailyquaily/verabot/internal/slackapi"
	"github.com/quailyquaily/verabot/llm"
	"github.com/quailyquaily/verabot/providers/mcptool"
	"github.com/quailyquaily/verabot/tools"
)

type fakeGateway struct {
	fakeMessageAPI
	replies  []slackapi.Message
	profiles map[string]slackapi.UserProfile
	files    map[string][]byte
}

func (f *fakeGateway) ThreadReplies(_ context.Context, _, _ string) ([]slackapi.Message, error) {
	return f.replies, nil
}

func (f *fakeGateway) UserProfile(_ context.Context, userID string) (slackapi.UserProfile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return slackapi.UserProfile{}, errors.New("user_not_found")
	}
	return p, nil
}

func (f *fakeGateway) DownloadFile(_ context.Context, fileURL string) ([]byte, error) {
	return f.files[fileURL], nil
}

type scriptedLLM struct {
	text       string
	err        error
	calls      int
	lastSystem string
}

func (c *scriptedLLM) Converse(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.calls++
	c.lastSystem = req.System
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Response{
		Message:    llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentBlock{llm.TextBlock(c.text)}},
		Text:       c.text,
		StopReason: llm.StopEndTurn,
	}, nil
}

type fakeConnector struct {
	assembled bool
	closed    bool
	configs   []mcptool.Config
}

func (f *fakeConnector) Assemble(_ context.Context, configs []mcptool.Config, _ func(string) (string, bool), _ *tools.Registry) error {
	f.assembled = true
	f.configs = configs
	return nil
}

func (f *fakeConnector) CloseAll() error {
	f.closed = true
	return nil
}

func testConfig() config.Config {
	return config.Config{
		BotName:     "Vera",
		Model:       "us.anthropic.claude-sonnet-4-20250514-v1:0",
		Temperature: 0.1,
		TopK:        30,
		TokenBudget: 4096,
		EnabledMCP:  map[string]bool{"github": true},
	}
}

func newTestWorker(gateway *fakeGateway, model llm.Client, connector *fakeConnector) *Worker {
	logger := testLogger()
	return New(Options{
		Config:       testConfig(),
		Slack:        gateway,
		Identity:     slackapi.BotIdentity{UserID: "UBOT", BotID: "BBOT"},
		Engine:       agent.NewEngine(model, logger),
		Catalog:      mcptool.DefaultCatalog(),
		NewConnector: func() ToolConnector { return connector },
		Logger:       logger,
	})
}

func TestHandleEventEndToEnd(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{profiles: map[string]slackapi.UserProfile{"U1": {DisplayName: "Alice"}}}
	model := &scriptedLLM{text: "hi"}
	connector := &fakeConnector{}
	w := newTestWorker(gateway, model, connector)

	w.HandleEvent(context.Background(), eventgate.InboundEvent{
		Type: "message", Channel: "C1", UserID: "U1", Text: "hello", TS: "1.0",
	})

	if model.calls != 1 {
		t.Fatalf("model calls = %d, want 1", model.calls)
	}
	// Exactly one placeholder post, one delete, one distinct final post.
	if len(gateway.posts) != 2 {
		t.Fatalf("posts = %+v, want placeholder + answer", gateway.posts)
	}
	if gateway.posts[0].Text != fmt.Sprintf(placeholderTemplate, "Vera") {
		t.Fatalf("first post = %q", gateway.posts[0].Text)
	}
	if gateway.posts[1].Text != "hi" || gateway.posts[1].ThreadTS != "1.0" {
		t.Fatalf("final post = %+v", gateway.posts[1])
	}
	if len(gateway.deletes) != 1 || gateway.deletes[0] != "ts-1" {
		t.Fatalf("deletes = %v", gateway.deletes)
	}
	if !connector.assembled || !connector.closed {
		t.Fatalf("connector assembled = %v, closed = %v", connector.assembled, connector.closed)
	}
}

func TestHandleEventIgnoresOwnMessages(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{}
	model := &scriptedLLM{text: "hi"}
	w := newTestWorker(gateway, model, &fakeConnector{})

	w.HandleEvent(context.Background(), eventgate.InboundEvent{
		Type: "message", Channel: "C1", BotID: "BBOT", Text: "my own reply", TS: "1.0",
	})

	if model.calls != 0 || len(gateway.posts) != 0 {
		t.Fatalf("model calls = %d, posts = %+v", model.calls, gateway.posts)
	}
}

func TestHandleEventUnsupportedOnlyAbortsBeforeModel(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{profiles: map[string]slackapi.UserProfile{"U1": {DisplayName: "Alice"}}}
	model := &scriptedLLM{text: "hi"}
	connector := &fakeConnector{}
	w := newTestWorker(gateway, model, connector)

	w.HandleEvent(context.Background(), eventgate.InboundEvent{
		Type: "message", Channel: "C1", UserID: "U1", TS: "1.0",
		Files: []slackapi.File{{Name: "tool.exe", Mimetype: "application/x-msdownload"}},
	})

	if model.calls != 0 {
		t.Fatalf("model calls = %d, want 0", model.calls)
	}
	if len(gateway.posts) != 1 || gateway.posts[0].Text != unsupportedNotice {
		t.Fatalf("posts = %+v", gateway.posts)
	}
	if connector.assembled {
		t.Fatal("no tool setup should happen for an aborted invocation")
	}
}

func TestHandleEventModelFailurePostsInlineError(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{profiles: map[string]slackapi.UserProfile{"U1": {DisplayName: "Alice"}}}
	model := &scriptedLLM{err: errors.New("throttled")}
	connector := &fakeConnector{}
	w := newTestWorker(gateway, model, connector)

	w.HandleEvent(context.Background(), eventgate.InboundEvent{
		Type: "message", Channel: "C1", UserID: "U1", Text: "hello", TS: "1.0",
	})

	if model.calls != 1 {
		t.Fatalf("model calls = %d, want exactly one attempt", model.calls)
	}
	// Placeholder still deleted on the error path.
	if len(gateway.deletes) != 1 {
		t.Fatalf("deletes = %v", gateway.deletes)
	}
	last := gateway.posts[len(gateway.posts)-1]
	if !strings.HasPrefix(last.Text, inlineErrorPrefix) {
		t.Fatalf("last post = %q", last.Text)
	}
	if !connector.closed {
		t.Fatal("connections must be closed on failure")
	}
}

func TestHandleEventAppliesProviderFlags(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{profiles: map[string]slackapi.UserProfile{"U1": {DisplayName: "Alice"}}}
	connector := &fakeConnector{}
	w := newTestWorker(gateway, &scriptedLLM{text: "hi"}, connector)

	w.HandleEvent(context.Background(), eventgate.InboundEvent{
		Type: "message", Channel: "C1", UserID: "U1", Text: "hello", TS: "1.0",
	})

	enabled := map[string]bool{}
	for _, cfg := range connector.configs {
		enabled[cfg.ID] = cfg.Enabled
	}
	if !enabled["github"] {
		t.Fatal("github flag should be on")
	}
	if enabled["azure"] || enabled["pagerduty"] {
		t.Fatalf("unexpected enabled providers: %v", enabled)
	}
}

func TestHandleEventComposesDefaultSystemPrompt(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{profiles: map[string]slackapi.UserProfile{"U1": {DisplayName: "Alice"}}}
	model := &scriptedLLM{text: "hi"}
	w := newTestWorker(gateway, model, &fakeConnector{})

	w.HandleEvent(context.Background(), eventgate.InboundEvent{
		Type: "message", Channel: "C1", UserID: "U1", Text: "hello", TS: "1.0",
	})

	if !strings.Contains(model.lastSystem, "You are Vera") {
		t.Fatalf("system prompt missing identity:\n%s", model.lastSystem)
	}
	if !strings.Contains(model.lastSystem, "# GitHub") {
		t.Fatalf("system prompt missing guidance for enabled provider:\n%s", model.lastSystem)
	}
	if strings.Contains(model.lastSystem, "# PagerDuty") {
		t.Fatalf("system prompt has guidance for disabled provider:\n%s", model.lastSystem)
	}
}

func TestHandleEventHonorsConfiguredSystemPrompt(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{profiles: map[string]slackapi.UserProfile{"U1": {DisplayName: "Alice"}}}
	model := &scriptedLLM{text: "hi"}
	cfg := testConfig()
	cfg.SystemPrompt = "custom prompt"
	logger := testLogger()
	w := New(Options{
		Config:       cfg,
		Slack:        gateway,
		Identity:     slackapi.BotIdentity{UserID: "UBOT", BotID: "BBOT"},
		Engine:       agent.NewEngine(model, logger),
		Catalog:      mcptool.DefaultCatalog(),
		NewConnector: func() ToolConnector { return &fakeConnector{} },
		Logger:       logger,
	})

	w.HandleEvent(context.Background(), eventgate.InboundEvent{
		Type: "message", Channel: "C1", UserID: "U1", Text: "hello", TS: "1.0",
	})

	if model.lastSystem != "custom prompt" {
		t.Fatalf("System = %q, want %q", model.lastSystem, "custom prompt")
	}
}

func TestHandleEventRepliesInExistingThread(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{
		profiles: map[string]slackapi.UserProfile{"U1": {DisplayName: "Alice"}},
		replies: []slackapi.Message{
			{UserID: "U1", Text: "first", TS: "1.0", ThreadTS: "1.0"},
			{UserID: "U1", Text: "second", TS: "2.0", ThreadTS: "1.0"},
		},
	}
	w := newTestWorker(gateway, &scriptedLLM{text: "answer"}, &fakeConnector{})

	w.HandleEvent(context.Background(), eventgate.InboundEvent{
		Type: "message", Channel: "C1", UserID: "U1", Text: "second", TS: "2.0", ThreadTS: "1.0",
	})

	for _, post := range gateway.posts {
		if post.ThreadTS != "1.0" {
			t.Fatalf("post outside thread: %+v", post)
		}
	}
}
