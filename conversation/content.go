// Package conversation turns raw Slack messages into the provider-agnostic
// transcript a model invocation consumes.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quailyquaily/verabot/internal/slackapi"
	"github.com/quailyquaily/verabot/llm"
)

// ProfileSource resolves a Slack user id to a profile.
type ProfileSource interface {
	UserProfile(ctx context.Context, userID string) (slackapi.UserProfile, error)
}

// FileFetcher downloads a private Slack file.
type FileFetcher interface {
	DownloadFile(ctx context.Context, fileURL string) ([]byte, error)
}

// mimeToImageFormat maps Slack file mimetypes onto image block formats.
var mimeToImageFormat = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// mimeToDocumentFormat maps Slack file mimetypes onto document block formats.
var mimeToDocumentFormat = map[string]string{
	"application/pdf":      "pdf",
	"application/csv":      "csv",
	"text/csv":             "csv",
	"application/msword":   "docx",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/vnd.ms-excel": "xlsx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "xlsx",
	"text/html":     "html",
	"text/markdown": "markdown",
}

// Normalizer converts one raw message into typed content blocks.
type Normalizer struct {
	profiles ProfileSource
	files    FileFetcher
	logger   *slog.Logger
}

func NewNormalizer(profiles ProfileSource, files FileFetcher, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{profiles: profiles, files: files, logger: logger}
}

// NormalizedMessage is the outcome of normalizing a single raw message.
// Content may be empty when the message carried nothing usable.
type NormalizedMessage struct {
	Content        []llm.ContentBlock
	HadUnsupported bool
}

// Normalize applies the content rules to a single raw message: text first,
// attachment texts next, then each file in declared order.
func (n *Normalizer) Normalize(ctx context.Context, msg slackapi.Message) NormalizedMessage {
	label := n.speakerLabel(ctx, msg)

	var out NormalizedMessage
	if text := strings.TrimSpace(msg.Text); text != "" {
		out.Content = append(out.Content, llm.TextBlock(fmt.Sprintf("%s says: %s", label, text)))
	}
	for _, att := range msg.Attachments {
		if text := strings.TrimSpace(att.Text); text != "" {
			out.Content = append(out.Content, llm.TextBlock(fmt.Sprintf("%s says: %s", label, text)))
		}
	}
	for _, file := range msg.Files {
		blocks, supported, err := n.normalizeFile(ctx, label, file)
		if err != nil {
			n.logger.Warn("slack_file_fetch_failed", "file", file.Name, "error", err.Error())
			continue
		}
		if !supported {
			out.HadUnsupported = true
			continue
		}
		out.Content = append(out.Content, blocks...)
	}
	return out
}

func (n *Normalizer) normalizeFile(ctx context.Context, label string, file slackapi.File) ([]llm.ContentBlock, bool, error) {
	mimetype := strings.TrimSpace(strings.ToLower(file.Mimetype))

	if format, ok := mimeToImageFormat[mimetype]; ok {
		data, err := n.files.DownloadFile(ctx, file.URLPrivateDownload)
		if err != nil {
			return nil, true, err
		}
		return []llm.ContentBlock{
			{Image: &llm.ImageBlock{Format: format, Bytes: data}},
		}, true, nil
	}

	if format, ok := mimeToDocumentFormat[mimetype]; ok {
		data, err := n.files.DownloadFile(ctx, file.URLPrivateDownload)
		if err != nil {
			return nil, true, err
		}
		// Document blocks must be followed by a text block or the model
		// provider rejects the message.
		return []llm.ContentBlock{
			{Document: &llm.DocumentBlock{Format: format, Name: documentName(file.Name), Bytes: data}},
			llm.TextBlock("file"),
		}, true, nil
	}

	if mimetype == "text/plain" {
		data, err := n.files.DownloadFile(ctx, file.URLPrivateDownload)
		if err != nil {
			return nil, true, err
		}
		return []llm.ContentBlock{
			llm.TextBlock(fmt.Sprintf("%s attached a snippet of text:\n\n%s", label, string(data))),
		}, true, nil
	}

	return nil, false, nil
}

// speakerLabel resolves the display name for a message author. Profile
// lookup failures fall back to the raw identifier.
func (n *Normalizer) speakerLabel(ctx context.Context, msg slackapi.Message) string {
	if msg.UserID == "" {
		if msg.BotID != "" {
			return msg.BotID + " (Bot)"
		}
		return "unknown"
	}
	profile, err := n.profiles.UserProfile(ctx, msg.UserID)
	if err != nil {
		n.logger.Warn("slack_profile_lookup_failed", "user_id", msg.UserID, "error", err.Error())
		return msg.UserID
	}
	name := profile.DisplayName
	if name == "" {
		name = profile.RealName
	}
	if name == "" {
		name = msg.UserID
	}
	if profile.IsBot || msg.BotID != "" {
		return name + " (Bot)"
	}
	if pronouns := strings.TrimSpace(profile.Pronouns); pronouns != "" {
		return fmt.Sprintf("%s (%s)", name, pronouns)
	}
	return name
}

// documentName keeps the filename up to the first dot; the model API
// rejects document names containing dots.
func documentName(name string) string {
	name = strings.TrimSpace(name)
	if base, _, found := strings.Cut(name, "."); found {
		name = strings.TrimSpace(base)
	}
	if name == "" {
		return "document"
	}
	return name
}
