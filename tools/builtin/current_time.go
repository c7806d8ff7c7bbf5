package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type CurrentTimeTool struct {
	now func() time.Time
}

func NewCurrentTimeTool() *CurrentTimeTool {
	return &CurrentTimeTool{now: time.Now}
}

func (t *CurrentTimeTool) Name() string { return "current_time" }
func (t *CurrentTimeTool) Description() string {
	return "Get the current date and time, optionally in a specific IANA timezone (default UTC)."
}

func (t *CurrentTimeTool) ParameterSchema() string {
	return `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "timezone": { "type": "string", "description": "IANA timezone name, e.g. \"Europe/Berlin\" (default UTC)." }
  }
}`
}

func (t *CurrentTimeTool) Execute(_ context.Context, params map[string]any) (string, error) {
	loc := time.UTC
	if tz := strings.TrimSpace(getString(params, "timezone")); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("invalid timezone %q", tz)
		}
		loc = parsed
	}
	now := t.now().In(loc)
	b, _ := json.Marshal(map[string]any{
		"ok":       true,
		"timezone": loc.String(),
		"rfc3339":  now.Format(time.RFC3339),
		"weekday":  now.Weekday().String(),
	})
	return string(b), nil
}
