// Package worker orchestrates one invocation end to end: gate, transcript,
// tool assembly, model run and reply delivery.
package worker

import (
	"context"
	"log/slog"
	"strings"
)

// MessageAPI is the message-lifecycle slice of the chat platform client.
type MessageAPI interface {
	PostMessage(ctx context.Context, channelID, text, threadTS string) (string, error)
	UpdateMessage(ctx context.Context, channelID, ts, text string) error
	DeleteMessage(ctx context.Context, channelID, ts string) error
}

const inlineErrorPrefix = "Something went wrong while answering: "

// Responder manages one logical reply message: first Send posts it,
// later Sends edit it in place, Delete removes it. None of these ever
// return an error; failures are logged and reported inline so the caller
// always keeps a usable handle.
type Responder struct {
	api       MessageAPI
	logger    *slog.Logger
	channelID string
	threadTS  string
	ts        string
	deleted   bool
}

func NewResponder(api MessageAPI, logger *slog.Logger, channelID, threadTS string) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		api:       api,
		logger:    logger,
		channelID: strings.TrimSpace(channelID),
		threadTS:  strings.TrimSpace(threadTS),
	}
}

// TS returns the id of the managed message, empty before the first post.
func (r *Responder) TS() string { return r.ts }

// Send posts the message on first call and edits it in place afterwards.
// It returns the (possibly stale) message id.
func (r *Responder) Send(ctx context.Context, text string) string {
	if r.ts == "" {
		ts, err := r.api.PostMessage(ctx, r.channelID, text, r.threadTS)
		if err != nil {
			r.logger.Warn("response_post_failed", "channel_id", r.channelID, "error", err.Error())
			r.postInlineError(ctx, err)
			return r.ts
		}
		r.ts = ts
		return r.ts
	}

	if err := r.api.UpdateMessage(ctx, r.channelID, r.ts, text); err != nil {
		r.logger.Warn("response_update_failed", "channel_id", r.channelID, "ts", r.ts, "error", err.Error())
		r.postInlineError(ctx, err)
	}
	return r.ts
}

// Delete removes the managed message. Repeated calls are no-ops so the
// one-delete invariant holds even on shared error paths.
func (r *Responder) Delete(ctx context.Context) {
	if r.ts == "" || r.deleted {
		return
	}
	r.deleted = true
	if err := r.api.DeleteMessage(ctx, r.channelID, r.ts); err != nil {
		r.logger.Warn("response_delete_failed", "channel_id", r.channelID, "ts", r.ts, "error", err.Error())
	}
}

// postInlineError drops a best-effort error notice into the thread. Its
// own failure is only logged.
func (r *Responder) postInlineError(ctx context.Context, cause error) {
	if _, err := r.api.PostMessage(ctx, r.channelID, inlineErrorPrefix+cause.Error(), r.threadTS); err != nil {
		r.logger.Warn("inline_error_post_failed", "channel_id", r.channelID, "error", err.Error())
	}
}
