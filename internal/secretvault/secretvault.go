// Package secretvault loads the bot's credential bundle from AWS Secrets
// Manager. The bundle is a flat JSON object of named secrets.
package secretvault

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Well-known bundle keys.
const (
	KeySlackBotToken      = "SLACK_BOT_TOKEN"
	KeySlackAppToken      = "SLACK_APP_TOKEN"
	KeySlackSigningSecret = "SLACK_SIGNING_SECRET"
)

// Bundle is the decoded secret blob. Provider credential placeholders
// resolve against it by name.
type Bundle map[string]string

func (b Bundle) Lookup(name string) (string, bool) {
	v, ok := b[name]
	return v, ok
}

func (b Bundle) BotToken() string      { return b[KeySlackBotToken] }
func (b Bundle) AppToken() string      { return b[KeySlackAppToken] }
func (b Bundle) SigningSecret() string { return b[KeySlackSigningSecret] }

type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type Vault struct {
	api secretsAPI
}

func NewVault(api secretsAPI) *Vault {
	return &Vault{api: api}
}

// Load fetches and decodes one secret bundle. Non-string JSON values are
// stringified so numeric credentials survive the round trip.
func (v *Vault) Load(ctx context.Context, secretName string) (Bundle, error) {
	if v == nil || v.api == nil {
		return nil, fmt.Errorf("secret vault is not initialized")
	}
	secretName = strings.TrimSpace(secretName)
	if secretName == "" {
		return nil, fmt.Errorf("secret name is required")
	}

	out, err := v.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch secret %s: %w", secretName, err)
	}
	raw := aws.ToString(out.SecretString)
	if raw == "" {
		return nil, fmt.Errorf("secret %s has no string payload", secretName)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("parse secret %s: %w", secretName, err)
	}

	bundle := make(Bundle, len(decoded))
	for key, value := range decoded {
		switch x := value.(type) {
		case string:
			bundle[key] = x
		case float64:
			bundle[key] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			bundle[key] = strconv.FormatBool(x)
		case nil:
		default:
			b, _ := json.Marshal(x)
			bundle[key] = string(b)
		}
	}
	return bundle, nil
}
