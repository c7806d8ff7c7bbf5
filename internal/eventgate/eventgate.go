// Package eventgate parses Slack Events API callbacks and decides which
// events deserve a response. Everything else is acknowledged and dropped.
package eventgate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quailyquaily/verabot/internal/slackapi"
)

// Envelope is the outer Events API callback body.
type Envelope struct {
	Type      string       `json:"type"`
	Challenge string       `json:"challenge,omitempty"`
	TeamID    string       `json:"team_id,omitempty"`
	Event     InboundEvent `json:"event,omitempty"`
}

// InboundEvent is the inner event record of an event_callback.
type InboundEvent struct {
	Type        string                `json:"type"`
	Subtype     string                `json:"subtype,omitempty"`
	Channel     string                `json:"channel,omitempty"`
	UserID      string                `json:"user,omitempty"`
	BotID       string                `json:"bot_id,omitempty"`
	BotProfile  *BotProfile           `json:"bot_profile,omitempty"`
	Text        string                `json:"text,omitempty"`
	TS          string                `json:"ts,omitempty"`
	ThreadTS    string                `json:"thread_ts,omitempty"`
	Edited      *EditedMarker         `json:"edited,omitempty"`
	Attachments []slackapi.Attachment `json:"attachments,omitempty"`
	Files       []slackapi.File       `json:"files,omitempty"`
}

type BotProfile struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type EditedMarker struct {
	User string `json:"user,omitempty"`
	TS   string `json:"ts,omitempty"`
}

// Envelope types.
const (
	TypeURLVerification = "url_verification"
	TypeEventCallback   = "event_callback"
)

// Parse decodes the raw callback body.
func Parse(body []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("parse event body: %w", err)
	}
	if strings.TrimSpace(envelope.Type) == "" {
		return Envelope{}, fmt.Errorf("event type is required")
	}
	return envelope, nil
}

// Gate classifies events against the bot's own identity so the bot never
// answers itself and never re-answers edits or deletions.
type Gate struct {
	botName  string
	identity slackapi.BotIdentity
}

func NewGate(botName string, identity slackapi.BotIdentity) *Gate {
	return &Gate{botName: strings.TrimSpace(botName), identity: identity}
}

var ignorableSubtypes = map[string]bool{
	"message_changed": true,
	"message_deleted": true,
}

// ShouldIgnore reports whether the event is ignorable, with the reason
// for logging. Ignorable events are acknowledged but never answered.
func (g *Gate) ShouldIgnore(event InboundEvent) (bool, string) {
	if event.Type != "message" && event.Type != "app_mention" {
		return true, "unsupported_event_type"
	}
	if ignorableSubtypes[event.Subtype] {
		return true, "ignorable_subtype"
	}
	if event.Edited != nil {
		return true, "edited_message"
	}
	if event.BotID != "" && event.BotID == g.identity.BotID {
		return true, "own_bot_id"
	}
	if event.UserID != "" && event.UserID == g.identity.UserID {
		return true, "own_user_id"
	}
	if event.BotProfile != nil && g.botName != "" &&
		strings.Contains(strings.ToLower(event.BotProfile.Name), strings.ToLower(g.botName)) {
		return true, "own_bot_profile"
	}
	return false, ""
}

// Message converts the inbound event into the wire message shape the
// transcript builder consumes.
func (e InboundEvent) Message() slackapi.Message {
	return slackapi.Message{
		Type:        e.Type,
		Subtype:     e.Subtype,
		UserID:      e.UserID,
		BotID:       e.BotID,
		Text:        e.Text,
		TS:          e.TS,
		ThreadTS:    e.ThreadTS,
		Attachments: e.Attachments,
		Files:       e.Files,
	}
}
