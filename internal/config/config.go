// Package config defines the single explicit configuration struct the
// process builds once at startup and passes into every component.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "VERABOT"

// Guardrail is the safety-policy configuration applied to every model
// invocation when enabled.
type Guardrail struct {
	Enabled    bool
	Identifier string
	Version    string
	Trace      bool
}

type Config struct {
	BotName      string
	SystemPrompt string

	Model           string
	ModelRegion     string
	Temperature     float64
	TopK            int
	TokenBudget     int
	MaxToolSteps    int
	Guardrail       Guardrail
	KnowledgeBase   string
	KBRegion        string
	SecretName      string
	SecretRegion    string
	ProviderFile    string
	EnabledMCP      map[string]bool
	PagerDutyAPIURL string
	Listen          string
	SocketMode      bool
	Debug           bool
	SlackBaseURL    string
	SlackAppToken   string
}

// SetDefaults installs every recognized key with its default so viper's
// env binding works without explicit binds.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("bot.name", "Vera")
	v.SetDefault("bot.system_prompt", "")
	v.SetDefault("model.id", "us.anthropic.claude-sonnet-4-20250514-v1:0")
	v.SetDefault("model.region", "us-west-2")
	v.SetDefault("model.temperature", 0.1)
	v.SetDefault("model.top_k", 30)
	v.SetDefault("model.thinking_budget", 4096)
	v.SetDefault("model.max_tool_steps", 16)
	v.SetDefault("guardrail.id", "")
	v.SetDefault("guardrail.version", "DRAFT")
	v.SetDefault("guardrail.trace", true)
	v.SetDefault("kb.id", "")
	v.SetDefault("kb.region", "")
	v.SetDefault("secret.name", "")
	v.SetDefault("secret.region", "us-east-1")
	v.SetDefault("mcp.config", "")
	v.SetDefault("mcp.github.enabled", false)
	v.SetDefault("mcp.atlassian.enabled", false)
	v.SetDefault("mcp.pagerduty.enabled", false)
	v.SetDefault("mcp.pagerduty.api_url", "")
	v.SetDefault("mcp.azure.enabled", false)
	v.SetDefault("mcp.aws.enabled", false)
	v.SetDefault("listen", ":3000")
	v.SetDefault("debug", false)
	v.SetDefault("slack.base_url", "https://slack.com/api")
	v.SetDefault("slack.socket_mode", false)
	v.SetDefault("slack.app_token", "")
}

// Load materializes the config from a prepared viper instance.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		BotName:         strings.TrimSpace(v.GetString("bot.name")),
		SystemPrompt:    v.GetString("bot.system_prompt"),
		Model:           strings.TrimSpace(v.GetString("model.id")),
		ModelRegion:     strings.TrimSpace(v.GetString("model.region")),
		Temperature:     v.GetFloat64("model.temperature"),
		TopK:            v.GetInt("model.top_k"),
		TokenBudget:     v.GetInt("model.thinking_budget"),
		MaxToolSteps:    v.GetInt("model.max_tool_steps"),
		KnowledgeBase:   strings.TrimSpace(v.GetString("kb.id")),
		KBRegion:        strings.TrimSpace(v.GetString("kb.region")),
		SecretName:      strings.TrimSpace(v.GetString("secret.name")),
		SecretRegion:    strings.TrimSpace(v.GetString("secret.region")),
		ProviderFile:    strings.TrimSpace(v.GetString("mcp.config")),
		PagerDutyAPIURL: strings.TrimSpace(v.GetString("mcp.pagerduty.api_url")),
		Listen:          strings.TrimSpace(v.GetString("listen")),
		SocketMode:      v.GetBool("slack.socket_mode"),
		Debug:           v.GetBool("debug"),
		SlackBaseURL:    strings.TrimSpace(v.GetString("slack.base_url")),
		SlackAppToken:   strings.TrimSpace(v.GetString("slack.app_token")),
		Guardrail: Guardrail{
			Enabled:    strings.TrimSpace(v.GetString("guardrail.id")) != "",
			Identifier: strings.TrimSpace(v.GetString("guardrail.id")),
			Version:    strings.TrimSpace(v.GetString("guardrail.version")),
			Trace:      v.GetBool("guardrail.trace"),
		},
		EnabledMCP: map[string]bool{
			"github":    v.GetBool("mcp.github.enabled"),
			"atlassian": v.GetBool("mcp.atlassian.enabled"),
			"pagerduty": v.GetBool("mcp.pagerduty.enabled"),
			"azure":     v.GetBool("mcp.azure.enabled"),
			"aws":       v.GetBool("mcp.aws.enabled"),
		},
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.BotName == "" {
		return fmt.Errorf("bot.name is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model.id is required")
	}
	return nil
}

// ProviderEnabled reports whether a catalog provider's flag is on.
func (c Config) ProviderEnabled(id string) bool {
	return c.EnabledMCP[strings.ToLower(strings.TrimSpace(id))]
}
