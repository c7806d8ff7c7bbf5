package config

import (
	"testing"

	"github.com/spf13/viper"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(newViper())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BotName != "Vera" {
		t.Fatalf("bot name = %q", cfg.BotName)
	}
	if cfg.Model != "us.anthropic.claude-sonnet-4-20250514-v1:0" {
		t.Fatalf("model = %q", cfg.Model)
	}
	if cfg.Temperature != 0.1 || cfg.TopK != 30 || cfg.TokenBudget != 4096 {
		t.Fatalf("inference params = %v, %d, %d", cfg.Temperature, cfg.TopK, cfg.TokenBudget)
	}
	if cfg.Guardrail.Enabled {
		t.Fatal("guardrail must default to disabled")
	}
	if cfg.Guardrail.Version != "DRAFT" || !cfg.Guardrail.Trace {
		t.Fatalf("guardrail = %+v", cfg.Guardrail)
	}
	if cfg.ProviderEnabled("github") {
		t.Fatal("providers must default to disabled")
	}
	if cfg.Listen != ":3000" || cfg.SocketMode {
		t.Fatalf("listen = %q, socket mode = %v", cfg.Listen, cfg.SocketMode)
	}
	if cfg.SecretRegion != "us-east-1" {
		t.Fatalf("secret region = %q", cfg.SecretRegion)
	}
}

func TestLoadProviderFlags(t *testing.T) {
	t.Parallel()

	v := newViper()
	v.Set("mcp.github.enabled", true)
	v.Set("mcp.pagerduty.enabled", true)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.ProviderEnabled("github") || !cfg.ProviderEnabled("PagerDuty") {
		t.Fatalf("enabled map = %v", cfg.EnabledMCP)
	}
	if cfg.ProviderEnabled("azure") {
		t.Fatal("azure should stay disabled")
	}
}

func TestLoadValidation(t *testing.T) {
	t.Parallel()

	v := newViper()
	v.Set("model.id", "")
	if _, err := Load(v); err == nil {
		t.Fatal("expected missing model error")
	}

	v = newViper()
	v.Set("bot.name", " ")
	if _, err := Load(v); err == nil {
		t.Fatal("expected missing bot name error")
	}
}

func TestLoadGuardrailEnabledByID(t *testing.T) {
	t.Parallel()

	v := newViper()
	v.Set("guardrail.id", "gr-1")
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Guardrail.Enabled || cfg.Guardrail.Identifier != "gr-1" {
		t.Fatalf("guardrail = %+v", cfg.Guardrail)
	}
}
