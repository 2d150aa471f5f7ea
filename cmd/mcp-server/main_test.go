package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/dolmetsch/pkg/app"
	"github.com/rhuss/dolmetsch/pkg/config"
	"github.com/rhuss/dolmetsch/pkg/kv/memory"
	"github.com/rhuss/dolmetsch/pkg/mockprovider"
	"github.com/rhuss/dolmetsch/pkg/provider"
	"github.com/rhuss/dolmetsch/pkg/vault"
)

func newTestApp(t *testing.T, backendURL string, modify ...func(*config.Config)) *app.App {
	t.Helper()
	cfg := config.Defaults()
	cfg.Storage.Type = "memory"
	for _, m := range modify {
		m(&cfg)
	}

	ctx := context.Background()
	a, err := app.Open(ctx, &cfg, app.WithVaultOptions(vault.WithIterations(1000)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	doc, err := a.Settings.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	doc.Services[0].Kind = provider.KindChat
	doc.Services[0].BaseURL = backendURL
	if err := a.Settings.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := a.Settings.SetAPIKey(ctx, doc.Services[0].ID, "sk-mcp"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}
	return a
}

func connect(t *testing.T, a *app.App) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	go func() {
		_ = newMCPServer(a).Run(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func resultText(r *mcp.CallToolResult) string {
	var parts []string
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestTranslateTool(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Stream bool `json:"stream"`
		}
		json.Unmarshal(body, &req)
		if req.Stream {
			t.Error("translate tool should not stream")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Hallo"}}]}`)
	}))
	defer backend.Close()

	session := connect(t, newTestApp(t, backend.URL))
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "translate",
		Arguments: map[string]any{"text": "Hello", "target_language": "de"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(res))
	}
	if got := resultText(res); got != "Hallo" {
		t.Errorf("text = %q, want Hallo", got)
	}
}

func TestTranslateToolErrors(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key"}}`)
	}))
	defer backend.Close()

	session := connect(t, newTestApp(t, backend.URL))
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"empty text", map[string]any{"text": ""}, "must not be empty"},
		{"rejected key", map[string]any{"text": "Hello"}, "invalid api key"},
		{"unknown service", map[string]any{"text": "Hello", "service_id": "svc-9"}, "unknown service"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: "translate", Arguments: tt.args})
			if err != nil {
				t.Fatalf("CallTool: %v", err)
			}
			if !res.IsError {
				t.Fatal("expected tool error")
			}
			if got := resultText(res); !strings.Contains(got, tt.want) {
				t.Errorf("error text = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestListServicesAndResetSession(t *testing.T) {
	a := newTestApp(t, "http://localhost:9/v1")
	session := connect(t, a)
	ctx := context.Background()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "list_services", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	data, _ := json.Marshal(res.StructuredContent)
	var out listServicesOutput
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decoding %s: %v", data, err)
	}
	if len(out.Services) != 1 || !out.Services[0].Active || !out.Services[0].HasKey {
		t.Errorf("services = %+v", out.Services)
	}
	if out.Services[0].Kind != string(provider.KindChat) {
		t.Errorf("kind = %q", out.Services[0].Kind)
	}

	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "reset_session", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	cur, err := a.Sessions.Current(ctx)
	if err != nil || cur == nil {
		t.Fatalf("Current() = %v, %v", cur, err)
	}
	if !strings.Contains(resultText(res), cur.SessionID) {
		t.Errorf("reset result %q does not name session %s", resultText(res), cur.SessionID)
	}
}

// downStore is a memory store whose database connection is gone.
type downStore struct {
	*memory.Store
}

func (downStore) HealthCheck(context.Context) error {
	return errors.New("connection refused")
}

func TestHealthzReportsStorage(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Type = "memory"
	a, err := app.Open(context.Background(), &cfg,
		app.WithStore(downStore{memory.New()}),
		app.WithVaultOptions(vault.WithIterations(1000)),
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	h, _ := newHandler(a)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestHandlerRoutes(t *testing.T) {
	a := newTestApp(t, "http://localhost:9/v1")
	h, _ := newHandler(a)
	srv := httptest.NewServer(h)
	defer srv.Close()

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
		if path == "/metrics" && !strings.Contains(string(body), "dolmetsch_") {
			t.Errorf("metrics output lacks dolmetsch_ series")
		}
	}
}

func postTranslate(t *testing.T, url, authz, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, url+"/v1/translate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /v1/translate: %v", err)
	}
	return resp
}

func TestTranslateEndpoint(t *testing.T) {
	mock := httptest.NewServer(mockprovider.New(mockprovider.Options{APIKey: "sk-mcp"}).Handler())
	defer mock.Close()

	a := newTestApp(t, mock.URL+"/v1")
	h, _ := newHandler(a)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp := postTranslate(t, srv.URL, "", `{"text":"Hello","target_language":"de"}`)
	var res struct {
		Text     string `json:"text"`
		Protocol string `json:"protocol"`
	}
	json.NewDecoder(resp.Body).Decode(&res)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if res.Text != mockprovider.Translate("Hello") {
		t.Errorf("text = %q, want %q", res.Text, mockprovider.Translate("Hello"))
	}
	if res.Protocol != string(provider.KindChat) {
		t.Errorf("protocol = %q", res.Protocol)
	}

	resp = postTranslate(t, srv.URL, "", `{"text":"Hello","stream":true}`)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "event: translation.delta") || !strings.Contains(string(body), "event: translation.completed") {
		t.Errorf("unexpected stream:\n%s", body)
	}

	resp = postTranslate(t, srv.URL, "", `{"text":""}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty text status = %d, want 400", resp.StatusCode)
	}
}

func TestAuthProtectsEndpoints(t *testing.T) {
	a := newTestApp(t, "http://localhost:9/v1", func(c *config.Config) {
		c.Auth.Type = "apikey"
		c.Auth.APIKeys = []config.APIKeyConfig{{Key: "client-key", Subject: "alice", Tier: "small"}}
		c.Auth.RateLimit.Tiers = map[string]int{"small": 1}
	})
	h, _ := newHandler(a)
	srv := httptest.NewServer(h)
	defer srv.Close()

	tests := []struct {
		name       string
		method     string
		path       string
		authz      string
		wantStatus int
	}{
		{"health bypass", http.MethodGet, "/healthz", "", http.StatusOK},
		{"metrics bypass", http.MethodGet, "/metrics", "", http.StatusOK},
		{"mcp without key", http.MethodPost, "/mcp", "", http.StatusUnauthorized},
		{"translate wrong key", http.MethodPost, "/v1/translate", "Bearer nope", http.StatusUnauthorized},
		// The request passes auth and fails validation on the empty body.
		{"translate with key", http.MethodPost, "/v1/translate", "Bearer client-key", http.StatusBadRequest},
		{"rate limited", http.MethodPost, "/v1/translate", "Bearer client-key", http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader("{}"))
			req.Header.Set("Content-Type", "application/json")
			if tt.authz != "" {
				req.Header.Set("Authorization", tt.authz)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("%s %s: %v", tt.method, tt.path, err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}
