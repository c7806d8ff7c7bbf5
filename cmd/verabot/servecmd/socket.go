package servecmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quailyquaily/verabot/internal/eventgate"
	"github.com/quailyquaily/verabot/internal/slackapi"
	"github.com/quailyquaily/verabot/worker"
)

type socketEnvelope struct {
	EnvelopeID string          `json:"envelope_id,omitempty"`
	Type       string          `json:"type,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type socketEventsPayload struct {
	Event json.RawMessage `json:"event,omitempty"`
}

// runSocket consumes events over Socket Mode, reconnecting until the
// context is canceled.
func runSocket(ctx context.Context, slack *slackapi.Client, w *worker.Worker, logger *slog.Logger) error {
	for {
		if ctx.Err() != nil {
			logger.Info("slack_socket_stop", "reason", "context_canceled")
			return nil
		}
		conn, err := slack.ConnectSocket(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("slack_socket_stop", "reason", "context_canceled")
				return nil
			}
			logger.Warn("slack_socket_connect_error", "error", err.Error())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(2 * time.Second):
			}
			continue
		}
		logger.Info("slack_socket_connected")

		readErr := consumeSocket(ctx, conn, func(envelope socketEnvelope) {
			event, ok := parseSocketEvent(envelope, logger)
			if !ok {
				return
			}
			invocationID := uuid.NewString()
			go func() {
				log := logger.With("invocation_id", invocationID, "channel_id", event.Channel)
				log.Info("event_accepted", "event_type", event.Type, "ts", event.TS)
				w.HandleEvent(context.WithoutCancel(ctx), event)
			}()
		})
		_ = conn.Close()
		if readErr != nil && !errors.Is(readErr, context.Canceled) && !errors.Is(readErr, context.DeadlineExceeded) {
			logger.Warn("slack_socket_read_error", "error", readErr.Error())
		}
	}
}

// consumeSocket reads envelopes off the websocket, acknowledging each one
// before handing it to the callback.
func consumeSocket(ctx context.Context, conn *websocket.Conn, onEnvelope func(socketEnvelope)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var envelope socketEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}
		if strings.TrimSpace(envelope.EnvelopeID) != "" {
			if err := conn.WriteJSON(map[string]string{"envelope_id": envelope.EnvelopeID}); err != nil {
				return err
			}
		}
		if onEnvelope != nil {
			onEnvelope(envelope)
		}
	}
}

func parseSocketEvent(envelope socketEnvelope, logger *slog.Logger) (eventgate.InboundEvent, bool) {
	if strings.TrimSpace(envelope.Type) != "events_api" || len(envelope.Payload) == 0 {
		return eventgate.InboundEvent{}, false
	}
	var payload socketEventsPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		logger.Warn("slack_socket_payload_parse_failed", "error", err.Error())
		return eventgate.InboundEvent{}, false
	}
	var event eventgate.InboundEvent
	if err := json.Unmarshal(payload.Event, &event); err != nil {
		logger.Warn("slack_socket_event_parse_failed", "error", err.Error())
		return eventgate.InboundEvent{}, false
	}
	return event, true
}
