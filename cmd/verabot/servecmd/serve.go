// Package servecmd wires the whole bot together and runs the event front
// door, either as an HTTP endpoint or over Socket Mode.
package servecmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quailyquaily/verabot/agent"
	"github.com/quailyquaily/verabot/internal/config"
	"github.com/quailyquaily/verabot/internal/eventgate"
	"github.com/quailyquaily/verabot/internal/secretvault"
	"github.com/quailyquaily/verabot/internal/slackapi"
	"github.com/quailyquaily/verabot/providers/bedrock"
	"github.com/quailyquaily/verabot/providers/mcptool"
	"github.com/quailyquaily/verabot/tools"
	"github.com/quailyquaily/verabot/tools/builtin"
	"github.com/quailyquaily/verabot/worker"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			if listen, _ := cmd.Flags().GetString("listen"); strings.TrimSpace(listen) != "" {
				cfg.Listen = strings.TrimSpace(listen)
			}
			if socketMode, _ := cmd.Flags().GetBool("socket-mode"); socketMode {
				cfg.SocketMode = true
			}
			if catalogPath, _ := cmd.Flags().GetString("mcp-config"); strings.TrimSpace(catalogPath) != "" {
				cfg.ProviderFile = strings.TrimSpace(catalogPath)
			}
			logger := newLogger(cfg.Debug)
			slog.SetDefault(logger)
			return run(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().String("listen", "", "HTTP listen address for the events endpoint (overrides config).")
	cmd.Flags().Bool("socket-mode", false, "Consume events over Socket Mode instead of HTTP.")
	cmd.Flags().String("mcp-config", "", "Path to a YAML MCP provider catalog (overrides the built-in one).")
	return cmd
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.SecretName == "" {
		return fmt.Errorf("secret.name is required")
	}

	secretsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SecretRegion))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	vault := secretvault.NewVault(secretsmanager.NewFromConfig(secretsCfg))
	bundle, err := vault.Load(ctx, cfg.SecretName)
	if err != nil {
		return err
	}
	if bundle.BotToken() == "" {
		return fmt.Errorf("secret bundle is missing %s", secretvault.KeySlackBotToken)
	}

	appToken := bundle.AppToken()
	if appToken == "" {
		appToken = cfg.SlackAppToken
	}
	if cfg.SocketMode && appToken == "" {
		return fmt.Errorf("slack app token is required for socket mode")
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	slack := slackapi.NewClient(httpClient, cfg.SlackBaseURL, bundle.BotToken(), appToken)
	identity, err := slack.AuthTest(ctx)
	if err != nil {
		return fmt.Errorf("slack auth.test: %w", err)
	}
	logger.Info("slack_identity", "bot_user_id", identity.UserID, "bot_id", identity.BotID, "team", identity.Team)

	modelCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.ModelRegion))
	if err != nil {
		return fmt.Errorf("load aws config for model region: %w", err)
	}
	engine := agent.NewEngine(bedrock.NewClient(bedrockruntime.NewFromConfig(modelCfg)), logger.With("component", "agent"))

	builtins := []tools.Tool{
		builtin.NewCalculatorTool(),
		builtin.NewCurrentTimeTool(),
	}
	if cfg.KnowledgeBase != "" {
		kbCfg := modelCfg
		if cfg.KBRegion != "" && cfg.KBRegion != cfg.ModelRegion {
			kbCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.KBRegion))
			if err != nil {
				return fmt.Errorf("load aws config for knowledge base region: %w", err)
			}
		}
		builtins = append(builtins, builtin.NewRetrieveTool(bedrockagentruntime.NewFromConfig(kbCfg), cfg.KnowledgeBase))
	}

	catalog := mcptool.DefaultCatalog()
	if cfg.ProviderFile != "" {
		catalog, err = mcptool.LoadCatalog(cfg.ProviderFile)
		if err != nil {
			return err
		}
	}
	if cfg.PagerDutyAPIURL != "" {
		for i := range catalog {
			if catalog[i].ID == "pagerduty" {
				if catalog[i].Env == nil {
					catalog[i].Env = map[string]string{}
				}
				catalog[i].Env["PAGERDUTY_API_URL"] = cfg.PagerDutyAPIURL
			}
		}
	}

	w := worker.New(worker.Options{
		Config:   cfg,
		Slack:    slack,
		Identity: identity,
		Engine:   engine,
		Builtins: builtins,
		Catalog:  catalog,
		Secrets:  bundle.Lookup,
		NewConnector: func() worker.ToolConnector {
			return mcptool.NewRegistry(httpClient, logger.With("component", "mcptool"))
		},
		Logger: logger.With("component", "worker"),
	})

	if cfg.SocketMode {
		return runSocket(ctx, slack, w, logger)
	}
	return runHTTP(ctx, cfg.Listen, w, logger)
}

func runHTTP(ctx context.Context, listen string, w *worker.Worker, logger *slog.Logger) error {
	mux := newEventMux(w.HandleEvent, logger)

	server := &http.Server{Addr: listen, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("http_listen", "addr", listen)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func newEventMux(dispatch func(context.Context, eventgate.InboundEvent), logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("POST /slack/events", func(rw http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, 1<<20))
		if err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		envelope, err := eventgate.Parse(raw)
		if err != nil {
			logger.Warn("event_parse_failed", "error", err.Error())
			rw.WriteHeader(http.StatusOK)
			return
		}

		switch envelope.Type {
		case eventgate.TypeURLVerification:
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]string{"challenge": envelope.Challenge})
		case eventgate.TypeEventCallback:
			event := envelope.Event
			invocationID := uuid.NewString()
			// Acknowledge inside the delivery retry window; the real work
			// happens after the hand-off.
			go func() {
				log := logger.With("invocation_id", invocationID, "channel_id", event.Channel)
				log.Info("event_accepted", "event_type", event.Type, "ts", event.TS)
				dispatch(context.WithoutCancel(r.Context()), event)
			}()
			rw.WriteHeader(http.StatusOK)
		default:
			rw.WriteHeader(http.StatusOK)
		}
	})
	return mux
}
