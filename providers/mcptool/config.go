// Package mcptool connects to external MCP servers, turns their catalogs
// into namespaced, access-filtered tools and guarantees teardown of every
// opened connection.
package mcptool

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Transport names accepted by Config.Transport.
const (
	TransportStreamableHTTP = "streamable_http"
	TransportSSE            = "sse"
	TransportStdio          = "stdio"
)

// Access modes.
const (
	AccessReadOnly  = "read_only"
	AccessReadWrite = "read_write"
)

// TokenExchange describes an OAuth refresh-token exchange performed
// before connecting. The resolved access token becomes a bearer header.
type TokenExchange struct {
	URL          string `yaml:"url"`
	RefreshToken string `yaml:"refresh_token"`
	ClientID     string `yaml:"client_id"`
}

// Config describes one MCP provider. Credential references use the
// ${NAME} placeholder form and are resolved from the secret bundle at
// connect time.
type Config struct {
	ID            string            `yaml:"id"`
	Enabled       bool              `yaml:"enabled"`
	Transport     string            `yaml:"transport"`
	URL           string            `yaml:"url"`
	Headers       map[string]string `yaml:"headers"`
	Command       string            `yaml:"command"`
	Args          []string          `yaml:"args"`
	Env           map[string]string `yaml:"env"`
	AccessMode    string            `yaml:"access_mode"`
	ReadOnlyVerbs []string          `yaml:"read_only_verbs"`
	TokenExchange *TokenExchange    `yaml:"token_exchange"`
}

func (c Config) validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("provider id is required")
	}
	switch c.Transport {
	case TransportStreamableHTTP, TransportSSE:
		if strings.TrimSpace(c.URL) == "" {
			return fmt.Errorf("provider %s: url is required", c.ID)
		}
	case TransportStdio:
		if strings.TrimSpace(c.Command) == "" {
			return fmt.Errorf("provider %s: command is required", c.ID)
		}
	default:
		return fmt.Errorf("provider %s: unknown transport %q", c.ID, c.Transport)
	}
	switch c.AccessMode {
	case AccessReadOnly, AccessReadWrite, "":
	default:
		return fmt.Errorf("provider %s: unknown access_mode %q", c.ID, c.AccessMode)
	}
	return nil
}

// allowPrefixes returns the fully namespaced name prefixes a read-only
// provider keeps. Empty means keep everything.
func (c Config) allowPrefixes() []string {
	if c.AccessMode != AccessReadOnly || len(c.ReadOnlyVerbs) == 0 {
		return nil
	}
	out := make([]string, 0, len(c.ReadOnlyVerbs))
	for _, verb := range c.ReadOnlyVerbs {
		out = append(out, c.ID+"_"+verb)
	}
	return out
}

type catalogFile struct {
	Providers []Config `yaml:"providers"`
}

// LoadCatalog reads a provider catalog from a YAML file.
func LoadCatalog(path string) ([]Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse provider catalog: %w", err)
	}
	for _, cfg := range file.Providers {
		if err := cfg.validate(); err != nil {
			return nil, err
		}
	}
	return file.Providers, nil
}

// DefaultCatalog returns the built-in provider set. Each entry stays
// disabled until its flag is turned on and its credentials resolve.
func DefaultCatalog() []Config {
	return []Config{
		{
			ID:            "github",
			Transport:     TransportStreamableHTTP,
			URL:           "https://api.githubcopilot.com/mcp/",
			Headers:       map[string]string{"Authorization": "Bearer ${GITHUB_MCP_TOKEN}"},
			AccessMode:    AccessReadOnly,
			ReadOnlyVerbs: []string{"download_", "get_", "list_", "search_"},
		},
		{
			ID:        "atlassian",
			Transport: TransportSSE,
			URL:       "https://mcp.atlassian.com/v1/sse",
			TokenExchange: &TokenExchange{
				URL:          "https://mcp.atlassian.com/v1/token",
				RefreshToken: "${ATLASSIAN_REFRESH_TOKEN}",
				ClientID:     "${ATLASSIAN_CLIENT_ID}",
			},
			AccessMode:    AccessReadOnly,
			ReadOnlyVerbs: []string{"fetch", "get", "lookup", "search", "atlassianUserInfo"},
		},
		{
			ID:            "pagerduty",
			Transport:     TransportStdio,
			Command:       "pagerduty-mcp-server",
			Env:           map[string]string{"PAGERDUTY_API_TOKEN": "${PAGERDUTY_API_TOKEN}"},
			AccessMode:    AccessReadOnly,
			ReadOnlyVerbs: []string{"get_", "list_"},
		},
		{
			ID:        "azure",
			Transport: TransportStdio,
			Command:   "azmcp",
			Args:      []string{"server", "start"},
			Env: map[string]string{
				"AZURE_TENANT_ID":     "${AZURE_TENANT_ID}",
				"AZURE_CLIENT_ID":     "${AZURE_CLIENT_ID}",
				"AZURE_CLIENT_SECRET": "${AZURE_CLIENT_SECRET}",
			},
			AccessMode: AccessReadWrite,
		},
		{
			ID:         "aws",
			Transport:  TransportStdio,
			Command:    "awslabs.aws-api-mcp-server",
			AccessMode: AccessReadWrite,
		},
	}
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// expandPlaceholders substitutes every ${NAME} reference via lookup. A
// reference that does not resolve is an error so the provider is skipped
// rather than connected with a broken credential.
func expandPlaceholders(value string, lookup func(string) (string, bool)) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		resolved, ok := lookup(name)
		if !ok || strings.TrimSpace(resolved) == "" {
			missing = append(missing, name)
			return match
		}
		return resolved
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing credential %s", strings.Join(missing, ", "))
	}
	return out, nil
}
