package agent

import (
	"testing"

	"github.com/quailyquaily/verabot/llm"
)

func TestGuardrailNoticeNilTrace(t *testing.T) {
	t.Parallel()

	if got := GuardrailNotice(nil); got != guardrailGenericNotice {
		t.Fatalf("got %q", got)
	}
}

func TestGuardrailNoticeEmptyAssessments(t *testing.T) {
	t.Parallel()

	trace := &llm.GuardrailTrace{
		Input:   map[string]llm.GuardrailAssessment{"gr-1": {}},
		Outputs: map[string][]llm.GuardrailAssessment{"gr-1": {{}}},
	}
	if got := GuardrailNotice(trace); got != guardrailGenericNotice {
		t.Fatalf("got %q", got)
	}
}

func TestGuardrailNoticeInputContentFilterWins(t *testing.T) {
	t.Parallel()

	trace := &llm.GuardrailTrace{
		Input: map[string]llm.GuardrailAssessment{
			"gr-1": {
				ContentFilters: []llm.GuardrailContentFilter{
					{Type: "HATE", Confidence: "MEDIUM", Strength: "HIGH"},
					{Type: "VIOLENCE", Confidence: "LOW", Strength: "LOW"},
				},
				Topics: []llm.GuardrailTopic{{Name: "weapons"}},
			},
		},
		Outputs: map[string][]llm.GuardrailAssessment{
			"gr-1": {{Topics: []llm.GuardrailTopic{{Name: "other"}}}},
		},
	}
	want := "This request was blocked by the safety policy: content filter HATE (confidence MEDIUM, strength HIGH)."
	if got := GuardrailNotice(trace); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestGuardrailNoticeTopicFallback(t *testing.T) {
	t.Parallel()

	trace := &llm.GuardrailTrace{
		Input: map[string]llm.GuardrailAssessment{
			"gr-1": {Topics: []llm.GuardrailTopic{{Name: "insider trading"}}},
		},
	}
	want := `This request was blocked by the safety policy: denied topic "insider trading".`
	if got := GuardrailNotice(trace); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestGuardrailNoticeOutputAssessmentUsedWhenInputEmpty(t *testing.T) {
	t.Parallel()

	trace := &llm.GuardrailTrace{
		Outputs: map[string][]llm.GuardrailAssessment{
			"gr-1": {
				{},
				{ContentFilters: []llm.GuardrailContentFilter{{Type: "SEXUAL", Confidence: "HIGH", Strength: "MEDIUM"}}},
			},
		},
	}
	want := "This request was blocked by the safety policy: content filter SEXUAL (confidence HIGH, strength MEDIUM)."
	if got := GuardrailNotice(trace); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
