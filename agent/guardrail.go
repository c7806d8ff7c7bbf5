package agent

import (
	"fmt"
	"sort"

	"github.com/quailyquaily/verabot/llm"
)

const guardrailGenericNotice = "This request was blocked by the configured safety policy."

// GuardrailNotice renders a user-facing explanation from a safety-policy
// trace. Input assessments are checked before output assessments, content
// filters before topic matches; the first finding wins. A missing or
// empty trace falls back to the generic notice. This never fails.
func GuardrailNotice(trace *llm.GuardrailTrace) string {
	if trace == nil {
		return guardrailGenericNotice
	}

	for _, id := range sortedKeys(trace.Input) {
		if notice, ok := assessmentNotice(trace.Input[id]); ok {
			return notice
		}
	}
	for _, id := range sortedKeys(trace.Outputs) {
		for _, assessment := range trace.Outputs[id] {
			if notice, ok := assessmentNotice(assessment); ok {
				return notice
			}
		}
	}
	return guardrailGenericNotice
}

func assessmentNotice(assessment llm.GuardrailAssessment) (string, bool) {
	if len(assessment.ContentFilters) > 0 {
		filter := assessment.ContentFilters[0]
		return fmt.Sprintf(
			"This request was blocked by the safety policy: content filter %s (confidence %s, strength %s).",
			filter.Type, filter.Confidence, filter.Strength,
		), true
	}
	if len(assessment.Topics) > 0 {
		return fmt.Sprintf(
			"This request was blocked by the safety policy: denied topic %q.",
			assessment.Topics[0].Name,
		), true
	}
	return "", false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
