package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/quailyquaily/verabot/tools"
)

const clientName = "verabot"

// session is the slice of the MCP client surface a connection uses.
type session interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Connection is one live MCP session plus the namespaced, access-filtered
// tools it contributed.
type Connection struct {
	providerID string
	session    session
	tools      []tools.Tool
}

func (c *Connection) ProviderID() string { return c.providerID }
func (c *Connection) Tools() []tools.Tool {
	if c == nil {
		return nil
	}
	return c.tools
}

func (c *Connection) Close() error {
	if c == nil || c.session == nil {
		return nil
	}
	return c.session.Close()
}

// Connect resolves credentials, opens the session and fetches the tool
// catalog for one provider.
func Connect(ctx context.Context, cfg Config, secrets func(string) (string, bool), httpClient *http.Client) (*Connection, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	headers, err := resolveHeaders(ctx, cfg, secrets, httpClient)
	if err != nil {
		return nil, err
	}

	sess, err := dial(cfg, headers, secrets)
	if err != nil {
		return nil, err
	}

	conn := &Connection{providerID: cfg.ID, session: sess}
	if err := initialize(ctx, conn, cfg); err != nil {
		_ = sess.Close()
		return nil, err
	}
	return conn, nil
}

func resolveHeaders(ctx context.Context, cfg Config, secrets func(string) (string, bool), httpClient *http.Client) (map[string]string, error) {
	headers := map[string]string{}
	for name, value := range cfg.Headers {
		resolved, err := expandPlaceholders(value, secrets)
		if err != nil {
			return nil, err
		}
		headers[name] = resolved
	}
	if cfg.TokenExchange != nil {
		exchange := *cfg.TokenExchange
		refreshToken, err := expandPlaceholders(exchange.RefreshToken, secrets)
		if err != nil {
			return nil, err
		}
		clientID, err := expandPlaceholders(exchange.ClientID, secrets)
		if err != nil {
			return nil, err
		}
		exchange.RefreshToken = refreshToken
		exchange.ClientID = clientID
		accessToken, err := exchangeToken(ctx, httpClient, exchange)
		if err != nil {
			return nil, err
		}
		headers["Authorization"] = "Bearer " + accessToken
	}
	return headers, nil
}

func dial(cfg Config, headers map[string]string, secrets func(string) (string, bool)) (session, error) {
	switch cfg.Transport {
	case TransportStreamableHTTP:
		return mcpclient.NewStreamableHttpClient(cfg.URL, transport.WithHTTPHeaders(headers))
	case TransportSSE:
		return mcpclient.NewSSEMCPClient(cfg.URL, transport.WithHeaders(headers))
	case TransportStdio:
		env := make([]string, 0, len(cfg.Env))
		for name, value := range cfg.Env {
			resolved, err := expandPlaceholders(value, secrets)
			if err != nil {
				return nil, err
			}
			env = append(env, name+"="+resolved)
		}
		return mcpclient.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func initialize(ctx context.Context, conn *Connection, cfg Config) error {
	if starter, ok := conn.session.(interface{ Start(context.Context) error }); ok && cfg.Transport != TransportStdio {
		if err := starter.Start(ctx); err != nil {
			return fmt.Errorf("start %s session: %w", cfg.ID, err)
		}
	}

	_, err := conn.session.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		return fmt.Errorf("initialize %s session: %w", cfg.ID, err)
	}

	catalog, err := conn.session.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("list %s tools: %w", cfg.ID, err)
	}

	raw := make([]tools.Tool, 0, len(catalog.Tools))
	for _, remote := range catalog.Tools {
		raw = append(raw, remoteTool(conn, remote))
	}
	conn.tools = tools.FilterByPrefix(tools.ApplyPrefix(cfg.ID, raw), cfg.allowPrefixes())
	return nil
}

func remoteTool(conn *Connection, remote mcp.Tool) tools.Tool {
	schema := "{}"
	if raw, err := json.Marshal(remote.InputSchema); err == nil {
		schema = string(raw)
	}
	name := remote.Name
	return tools.NewFuncTool(name, remote.Description, schema, func(ctx context.Context, params map[string]any) (string, error) {
		result, err := conn.session.CallTool(ctx, mcp.CallToolRequest{
			Params: mcp.CallToolParams{Name: name, Arguments: params},
		})
		if err != nil {
			return "", err
		}
		text := flattenContent(result.Content)
		if result.IsError {
			if text == "" {
				text = "tool reported an error"
			}
			return "", fmt.Errorf("%s", text)
		}
		return text, nil
	})
}

func flattenContent(content []mcp.Content) string {
	var parts []string
	for _, block := range content {
		if text, ok := block.(mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
