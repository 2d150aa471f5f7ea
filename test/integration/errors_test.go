package integration

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/mockprovider"
	"github.com/rhuss/dolmetsch/pkg/provider"
)

func TestRejectedKeyIsNotRetried(t *testing.T) {
	for _, kind := range provider.Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			env := newEnv(t, withKind(kind), withRetries(3), withMock(mockprovider.Options{APIKey: "sk-other"}))

			_, err := env.app.Client.Stream(context.Background(), "Hello", streamOpt(true), func(string) error { return nil })
			var apiErr *api.Error
			if !errors.As(err, &apiErr) || apiErr.Kind != api.KindAuthentication {
				t.Fatalf("err = %v, want authentication error", err)
			}
			if apiErr.Status != http.StatusUnauthorized {
				t.Errorf("status = %d", apiErr.Status)
			}
			if got := len(env.mock.Requests()); got != 1 {
				t.Errorf("%d requests, want 1", got)
			}
		})
	}
}

func TestRetryRecovers(t *testing.T) {
	env := newEnv(t, withKind(provider.KindChat), withRetries(2), withMock(mockprovider.Options{FailFirst: 2}))

	out, err := env.app.Client.Translate(context.Background(), "Hello", streamOpt(false))
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", out.Attempts)
	}
}

func TestRetryBound(t *testing.T) {
	env := newEnv(t, withKind(provider.KindChat), withRetries(2), withMock(mockprovider.Options{FailFirst: 100}))

	out, err := env.app.Client.Translate(context.Background(), "Hello", streamOpt(false))
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != api.KindAPI || apiErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, want API error 503", err)
	}
	if out.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", out.Attempts)
	}
	if got := len(env.mock.Requests()); got != 3 {
		t.Errorf("%d requests, want 3", got)
	}
}

func TestMissingKeyMakesNoRequest(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	doc, _ := env.app.Settings.Load(ctx)
	if err := env.app.Settings.SetAPIKey(ctx, doc.ActiveServiceID, ""); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}

	_, err := env.app.Client.Translate(ctx, "Hello", streamOpt(false))
	if !errors.Is(err, &api.Error{Kind: api.KindConfiguration, Code: api.CodeMissingAPIKey}) {
		t.Fatalf("err = %v, want missing API key", err)
	}
	if got := len(env.mock.Requests()); got != 0 {
		t.Errorf("%d requests, want none", got)
	}
}

func TestMasterPasswordProtectedKey(t *testing.T) {
	env := newEnv(t, withMasterPassword("correct horse"))

	out, err := env.app.Client.Translate(context.Background(), "Hello", streamOpt(false))
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out.Text != mockprovider.Translate("Hello") {
		t.Errorf("text = %q", out.Text)
	}
}
