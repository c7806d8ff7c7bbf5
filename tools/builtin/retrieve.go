package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
)

type retrieveAPI interface {
	Retrieve(ctx context.Context, params *bedrockagentruntime.RetrieveInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error)
}

// RetrieveTool queries an internal knowledge base for passages relevant
// to a search string.
type RetrieveTool struct {
	client          retrieveAPI
	knowledgeBaseID string
}

func NewRetrieveTool(client retrieveAPI, knowledgeBaseID string) *RetrieveTool {
	return &RetrieveTool{client: client, knowledgeBaseID: strings.TrimSpace(knowledgeBaseID)}
}

func (t *RetrieveTool) Name() string { return "retrieve" }
func (t *RetrieveTool) Description() string {
	return "Search the internal knowledge base and return the most relevant passages."
}

func (t *RetrieveTool) ParameterSchema() string {
	return `{
  "type": "object",
  "additionalProperties": false,
  "required": ["query"],
  "properties": {
    "query": { "type": "string", "description": "Natural-language search query." },
    "max_results": { "type": "integer", "description": "Max passages to return (default 5, max 20)." }
  }
}`
}

func (t *RetrieveTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	if t == nil || t.client == nil {
		return "", fmt.Errorf("retrieve tool is not initialized")
	}
	if t.knowledgeBaseID == "" {
		return "", fmt.Errorf("knowledge base id is required")
	}
	query := strings.TrimSpace(getString(params, "query"))
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	maxResults := int32(getInt64(params, "max_results"))
	if maxResults <= 0 {
		maxResults = 5
	}
	if maxResults > 20 {
		maxResults = 20
	}

	out, err := t.client.Retrieve(ctx, &bedrockagentruntime.RetrieveInput{
		KnowledgeBaseId: aws.String(t.knowledgeBaseID),
		RetrievalQuery:  &types.KnowledgeBaseQuery{Text: aws.String(query)},
		RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
				NumberOfResults: aws.Int32(maxResults),
			},
		},
	})
	if err != nil {
		return "", err
	}

	passages := make([]map[string]any, 0, len(out.RetrievalResults))
	for _, result := range out.RetrievalResults {
		if result.Content == nil || result.Content.Text == nil {
			continue
		}
		item := map[string]any{"text": truncate(*result.Content.Text, 4000)}
		if result.Score != nil {
			item["score"] = *result.Score
		}
		if result.Location != nil && result.Location.S3Location != nil && result.Location.S3Location.Uri != nil {
			item["source"] = *result.Location.S3Location.Uri
		}
		passages = append(passages, item)
	}

	b, _ := json.Marshal(map[string]any{"ok": true, "count": len(passages), "passages": passages})
	return string(b), nil
}
