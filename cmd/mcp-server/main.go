// Command mcp-server exposes dolmetsch translation as MCP tools over
// streamable HTTP on /mcp, as a JSON/SSE API on /v1/translate, and
// serves /metrics and /healthz.
//
// Configuration is read like the CLI does: a YAML file ($DOLMETSCH_CONFIG,
// ./dolmetsch.yaml or the user config dir) with DOLMETSCH_* environment
// overrides. The listen address is mcp.addr (DOLMETSCH_MCP_ADDR); callers
// authenticate as configured under auth.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/dolmetsch/pkg/app"
	"github.com/rhuss/dolmetsch/pkg/config"
	"github.com/rhuss/dolmetsch/pkg/debug"
	"github.com/rhuss/dolmetsch/pkg/observability"
	"github.com/rhuss/dolmetsch/pkg/translate"
	"github.com/rhuss/dolmetsch/pkg/transport"
	transporthttp "github.com/rhuss/dolmetsch/pkg/transport/http"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	debug.Init(cfg.Log.Debug, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	handler, inflight := newHandler(a)
	srv := transporthttp.NewServer(handler,
		transporthttp.WithAddr(cfg.MCP.Addr),
		transporthttp.WithInFlight(inflight),
		transporthttp.WithShutdownTimeout(10*time.Second),
	)
	slog.Info("mcp server configured", "storage", cfg.Storage.Type, "auth", cfg.Auth.Type)
	return srv.ListenAndServe(ctx)
}

// newHandler builds the HTTP mux of the server. The returned registry
// holds the running /v1/translate requests.
func newHandler(a *app.App) (http.Handler, *transport.InFlightRegistry) {
	server := newMCPServer(a)
	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, nil)

	adapter := transporthttp.NewAdapter(
		transport.ClientTranslator(a.Client),
		transporthttp.DefaultConfig(),
		transport.Recovery(),
		transport.Logging(slog.Default()),
	)
	rest := observability.MetricsMiddleware("/v1/translate", adapter.Handler())

	mux := http.NewServeMux()
	mux.Handle("/mcp", observability.MetricsMiddleware("/mcp", mcpHandler))
	mux.Handle("/v1/translate", rest)
	mux.Handle("/v1/translate/", rest)
	bypass := []string{"/healthz"}
	if a.Config.Metrics.Enabled {
		mux.Handle("GET "+a.Config.Metrics.Path, promhttp.Handler())
		bypass = append(bypass, a.Config.Metrics.Path)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Health(r.Context()); err != nil {
			slog.Warn("health check failed", "error", err)
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	return newAuthMiddleware(a.Config.Auth, bypass)(mux), adapter.InFlight()
}

type translateInput struct {
	Text           string `json:"text" jsonschema:"the text to translate"`
	TargetLanguage string `json:"target_language,omitempty" jsonschema:"target language, e.g. de or zh-CN; defaults to the configured language"`
	ServiceID      string `json:"service_id,omitempty" jsonschema:"id of the provider service to use instead of the active one"`
}

type translateOutput struct {
	Text     string `json:"text"`
	Protocol string `json:"protocol"`
	Attempts int    `json:"attempts"`
}

type serviceInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Model  string `json:"model"`
	Active bool   `json:"active"`
	HasKey bool   `json:"has_key"`
}

type listServicesOutput struct {
	Services []serviceInfo `json:"services"`
}

type resetSessionOutput struct {
	SessionID string `json:"session_id"`
}

func newMCPServer(a *app.App) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{Name: "dolmetsch", Version: version},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "translate",
		Description: "Translates text with the configured AI provider",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in translateInput) (*mcp.CallToolResult, translateOutput, error) {
		if in.Text == "" {
			return nil, translateOutput{}, fmt.Errorf("text must not be empty")
		}
		noStream := false
		out, err := a.Client.Translate(ctx, in.Text, translate.Options{
			TargetLanguage: in.TargetLanguage,
			ServiceID:      in.ServiceID,
			Stream:         &noStream,
		})
		if err != nil {
			return nil, translateOutput{}, err
		}
		return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: out.Text}},
			}, translateOutput{
				Text:     out.Text,
				Protocol: string(out.Protocol),
				Attempts: out.Attempts,
			}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_services",
		Description: "Lists the configured provider services",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, listServicesOutput, error) {
		doc, err := a.Settings.Load(ctx)
		if err != nil {
			return nil, listServicesOutput{}, err
		}
		active := doc.ActiveService().ID
		var out listServicesOutput
		for _, s := range doc.Services {
			out.Services = append(out.Services, serviceInfo{
				ID:     s.ID,
				Name:   s.Name,
				Kind:   string(s.Kind),
				Model:  s.Model,
				Active: s.ID == active,
				HasKey: s.APIKeyEnc != "",
			})
		}
		return nil, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reset_session",
		Description: "Starts a new conversation; the next Responses request carries no previous response",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, resetSessionOutput, error) {
		s, err := a.Sessions.New(ctx)
		if err != nil {
			return nil, resetSessionOutput{}, err
		}
		return nil, resetSessionOutput{SessionID: s.SessionID}, nil
	})

	return server
}

