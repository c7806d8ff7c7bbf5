package mcptool

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hashicorp/go-multierror"

	"github.com/quailyquaily/verabot/tools"
)

// Registry owns the connections opened for one invocation.
type Registry struct {
	httpClient  *http.Client
	logger      *slog.Logger
	connections []*Connection
}

func NewRegistry(httpClient *http.Client, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{httpClient: httpClient, logger: logger}
}

// Assemble connects every enabled provider and registers its tools. A
// provider that fails to connect is skipped, never fatal: the invocation
// proceeds with whatever integrations came up.
func (r *Registry) Assemble(ctx context.Context, configs []Config, secrets func(string) (string, bool), into *tools.Registry) error {
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		conn, err := Connect(ctx, cfg, secrets, r.httpClient)
		if err != nil {
			r.logger.Warn("mcp_provider_skipped", "provider", cfg.ID, "error", err.Error())
			continue
		}
		r.connections = append(r.connections, conn)
		for _, t := range conn.Tools() {
			if err := into.Register(t); err != nil {
				r.logger.Warn("mcp_tool_skipped", "provider", cfg.ID, "tool", t.Name(), "error", err.Error())
			}
		}
		r.logger.Info("mcp_provider_connected", "provider", cfg.ID, "tools", len(conn.Tools()))
	}
	return nil
}

// CloseAll closes every opened connection. Every close is attempted even
// when earlier ones fail; the combined error is returned for logging.
func (r *Registry) CloseAll() error {
	if r == nil {
		return nil
	}
	var result *multierror.Error
	for _, conn := range r.connections {
		if err := conn.Close(); err != nil {
			r.logger.Warn("mcp_connection_close_failed", "provider", conn.ProviderID(), "error", err.Error())
			result = multierror.Append(result, err)
		}
	}
	r.connections = nil
	return result.ErrorOrNil()
}
