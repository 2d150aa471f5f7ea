// Command mock-backend runs a deterministic provider backend serving the
// OpenAI Responses, Chat Completions and Claude Messages endpoints below
// /v1, as JSON and as SSE streams. Point a dolmetsch service at
// http://localhost:9090/v1 to try the client without a real provider.
//
// Configuration:
//
//	MOCK_PORT              - Listen port (default: 9090)
//	MOCK_DISABLE_RESPONSES - Answer /v1/responses with 404 (forces Chat fallback)
//	MOCK_FAIL_FIRST        - Answer the first n requests with 503
//	MOCK_FAIL_STREAMS      - Answer streaming requests with 503
//	MOCK_CUT_STREAM_AFTER  - Cut streams after n chunks
//	MOCK_CHUNK_DELAY       - Delay between streamed chunks (e.g. 50ms)
//	MOCK_API_KEY           - Require this API key
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rhuss/dolmetsch/pkg/mockprovider"
)

func main() {
	if err := run(); err != nil {
		slog.Error("mock backend failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	port := envOrDefault("MOCK_PORT", "9090")
	opts, err := optionsFromEnv()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/", mockprovider.New(opts).Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("mock backend shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func optionsFromEnv() (mockprovider.Options, error) {
	var opts mockprovider.Options
	var err error

	opts.DisableResponses = os.Getenv("MOCK_DISABLE_RESPONSES") != ""
	opts.FailStreams = os.Getenv("MOCK_FAIL_STREAMS") != ""
	opts.APIKey = os.Getenv("MOCK_API_KEY")
	if opts.FailFirst, err = envInt("MOCK_FAIL_FIRST"); err != nil {
		return opts, err
	}
	if opts.CutStreamAfter, err = envInt("MOCK_CUT_STREAM_AFTER"); err != nil {
		return opts, err
	}
	if v := os.Getenv("MOCK_CHUNK_DELAY"); v != "" {
		if opts.ChunkDelay, err = time.ParseDuration(v); err != nil {
			return opts, fmt.Errorf("invalid MOCK_CHUNK_DELAY: %w", err)
		}
	}
	return opts, nil
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
