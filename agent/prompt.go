package agent

import (
	"fmt"
	"strings"
)

// PromptBlock is one titled section of the system prompt.
type PromptBlock struct {
	Title   string
	Content string
}

// PromptSpec assembles the system prompt from an intro line and a
// sequence of titled blocks.
type PromptSpec struct {
	Intro  string
	Blocks []PromptBlock
}

// Render flattens the spec into the final system prompt string.
func (s PromptSpec) Render() string {
	parts := make([]string, 0, len(s.Blocks)+1)
	if intro := strings.TrimSpace(s.Intro); intro != "" {
		parts = append(parts, intro)
	}
	for _, block := range s.Blocks {
		title := strings.TrimSpace(block.Title)
		content := strings.TrimSpace(block.Content)
		if title == "" || content == "" {
			continue
		}
		parts = append(parts, "# "+title+"\n"+content)
	}
	return strings.Join(parts, "\n\n")
}

// Word cap that keeps answers inside Slack's 4k character message limit.
const responseWordLimit = 350

// DefaultPromptSpec returns the baseline assistant prompt. Callers layer
// provider guidance on top with AugmentPromptForProviders.
func DefaultPromptSpec(botName string) PromptSpec {
	botName = strings.TrimSpace(botName)
	if botName == "" {
		botName = "Assistant"
	}
	return PromptSpec{
		Intro: fmt.Sprintf("You are %s, a helpful assistant supporting our employees over Slack.", botName),
		Blocks: []PromptBlock{
			{
				Title: "Response Formatting",
				Content: fmt.Sprintf(`Format every response as Slack mrkdwn: single asterisks (*text*) for bold, never double asterisks, and hyperlinks encoded as "<https://example.com|label>".
Break longer answers into sections with headers and bullets.
Limit each message to %d words. For longer answers, send the first part and invite the user to ask for the rest.
The conversation may involve several people. Address users by name, answer whoever mentioned %s, and never echo a user's pronouns back at them.`, responseWordLimit, botName),
			},
			{
				Title: "Knowledge Base",
				Content: `Search the internal knowledge base with the retrieve tool first, and fall back to external sources only when it has nothing relevant.
Cite a source for every fact: a knowledge base link, a URL, or an S3 document link, encoded with pipe syntax.`,
			},
			{
				Title: "Tools",
				Content: `You act in third-party tools as a bot user, not as the person asking. Identify the requesting user from the conversation and search the tools with their name or email address when the question is about them.
Link every external resource you used to build the answer, preferring the resource name as the link label.`,
			},
			{
				Title:   "Message Trailers",
				Content: fmt.Sprintf("End every message with an italicized reminder that %s is in beta and may not always be accurate.", botName),
			},
		},
	}
}

var providerGuidance = map[string]PromptBlock{
	"github": {
		Title:   "GitHub",
		Content: "When users ask about repositories, pull requests, or code reviews, use the GitHub tools. A \"team\" may refer to a GitHub team.",
	},
	"atlassian": {
		Title: "Atlassian (Jira and Confluence)",
		Content: `When users ask about their tickets or issues, query Jira with JQL for tickets assigned to them.
When users ask about documentation, check Confluence first. A "team" may also mean a Jira or Confluence project.`,
	},
	"pagerduty": {
		Title:   "PagerDuty",
		Content: "When users ask about incidents, outages, or on-call schedules, check PagerDuty first.",
	},
	"azure": {
		Title:   "Azure",
		Content: "When users ask about Azure resources (VMs, storage accounts, resource groups, subscriptions), use the Azure tools. They can query resources across subscriptions.",
	},
	"aws": {
		Title: "AWS",
		Content: `When users ask about AWS resources (EC2 instances, S3 buckets, EKS clusters, RDS databases, Lambda functions), use the AWS CLI tools.
They support multi-account access via the --profile flag, for example "aws eks list-clusters --region us-east-1 --profile prod".`,
	},
}

// AugmentPromptForProviders appends guidance blocks for each enabled tool
// provider, skipping unknown IDs and duplicates.
func AugmentPromptForProviders(spec PromptSpec, providerIDs []string) PromptSpec {
	out := spec
	out.Blocks = append([]PromptBlock{}, spec.Blocks...)
	for _, id := range providerIDs {
		block, ok := providerGuidance[strings.ToLower(strings.TrimSpace(id))]
		if !ok {
			continue
		}
		out.Blocks = appendPromptBlock(out.Blocks, block)
	}
	return out
}

func appendPromptBlock(blocks []PromptBlock, block PromptBlock) []PromptBlock {
	title := strings.TrimSpace(block.Title)
	content := strings.TrimSpace(block.Content)
	if title == "" || content == "" {
		return blocks
	}
	for _, existing := range blocks {
		if strings.EqualFold(strings.TrimSpace(existing.Title), title) &&
			strings.TrimSpace(existing.Content) == content {
			return blocks
		}
	}
	return append(blocks, PromptBlock{Title: title, Content: content})
}
