package main

import (
	"testing"
	"time"
)

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("MOCK_DISABLE_RESPONSES", "1")
	t.Setenv("MOCK_FAIL_FIRST", "2")
	t.Setenv("MOCK_CUT_STREAM_AFTER", "")
	t.Setenv("MOCK_CHUNK_DELAY", "50ms")
	t.Setenv("MOCK_API_KEY", "sk-mock")

	opts, err := optionsFromEnv()
	if err != nil {
		t.Fatalf("optionsFromEnv: %v", err)
	}
	if !opts.DisableResponses || opts.FailFirst != 2 || opts.CutStreamAfter != 0 {
		t.Errorf("opts = %+v", opts)
	}
	if opts.ChunkDelay != 50*time.Millisecond || opts.APIKey != "sk-mock" {
		t.Errorf("opts = %+v", opts)
	}
}

func TestOptionsFromEnvInvalid(t *testing.T) {
	for _, key := range []string{"MOCK_FAIL_FIRST", "MOCK_CUT_STREAM_AFTER", "MOCK_CHUNK_DELAY"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv("MOCK_FAIL_FIRST", "")
			t.Setenv("MOCK_CUT_STREAM_AFTER", "")
			t.Setenv("MOCK_CHUNK_DELAY", "")
			t.Setenv(key, "lots")
			if _, err := optionsFromEnv(); err == nil {
				t.Errorf("%s=lots should fail", key)
			}
		})
	}
}
