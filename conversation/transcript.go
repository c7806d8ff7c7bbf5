package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/quailyquaily/verabot/internal/slackapi"
	"github.com/quailyquaily/verabot/llm"
)

// ErrEmptyTranscript reports that no message in the conversation produced
// any usable content. Callers must not invoke the model in that case.
var ErrEmptyTranscript = errors.New("transcript is empty")

// HistorySource lists the full reply chain of a thread.
type HistorySource interface {
	ThreadReplies(ctx context.Context, channelID, threadTS string) ([]slackapi.Message, error)
}

// Builder assembles the ordered transcript for one invocation.
type Builder struct {
	normalizer *Normalizer
	history    HistorySource
	identity   slackapi.BotIdentity
}

func NewBuilder(normalizer *Normalizer, history HistorySource, identity slackapi.BotIdentity) *Builder {
	return &Builder{normalizer: normalizer, history: history, identity: identity}
}

// Transcript is the chronological, role-tagged conversation.
type Transcript struct {
	Messages       []llm.Message
	HadUnsupported bool
}

// Build fetches the thread (when the triggering message belongs to one),
// normalizes every message in order and assigns roles by origin identity.
func (b *Builder) Build(ctx context.Context, channelID string, trigger slackapi.Message) (Transcript, error) {
	messages := []slackapi.Message{trigger}
	if threadTS := strings.TrimSpace(trigger.ThreadTS); threadTS != "" {
		replies, err := b.history.ThreadReplies(ctx, channelID, threadTS)
		if err != nil {
			return Transcript{}, err
		}
		if len(replies) > 0 {
			messages = replies
		}
	}

	var out Transcript
	for _, msg := range messages {
		if b.isAssistant(msg) {
			// The bot's own stored text is already plain; re-normalizing
			// would wrap it in a speaker label.
			text := strings.TrimSpace(msg.Text)
			if text == "" {
				continue
			}
			out.Messages = append(out.Messages, llm.Message{
				Role:    llm.RoleAssistant,
				Content: []llm.ContentBlock{llm.TextBlock(text)},
			})
			continue
		}

		normalized := b.normalizer.Normalize(ctx, msg)
		if normalized.HadUnsupported {
			out.HadUnsupported = true
		}
		if len(normalized.Content) == 0 {
			continue
		}
		out.Messages = append(out.Messages, llm.Message{
			Role:    llm.RoleUser,
			Content: normalized.Content,
		})
	}

	if len(out.Messages) == 0 {
		return out, ErrEmptyTranscript
	}
	return out, nil
}

func (b *Builder) isAssistant(msg slackapi.Message) bool {
	if msg.BotID != "" && msg.BotID == b.identity.BotID {
		return true
	}
	return msg.UserID != "" && msg.UserID == b.identity.UserID
}
