package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/dolmetsch/pkg/api"
)

// trackingBody wraps a pipe and records how many bytes were handed out
// after Close.
type trackingBody struct {
	r *io.PipeReader

	mu         sync.Mutex
	closed     bool
	afterClose int
}

func (b *trackingBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.mu.Lock()
	if b.closed {
		b.afterClose += n
	}
	b.mu.Unlock()
	return n, err
}

func (b *trackingBody) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return b.r.Close()
}

func (b *trackingBody) bytesAfterClose() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.afterClose
}

type failingBody struct{ err error }

func (b failingBody) Read([]byte) (int, error) { return 0, b.err }
func (b failingBody) Close() error             { return nil }

func collect(t *testing.T, s *Sequencer) ([]Frame, error) {
	t.Helper()
	var frames []Frame
	for {
		f, err := s.Next()
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

func TestSequencerCleanStream(t *testing.T) {
	body := io.NopCloser(strings.NewReader("event: a\ndata: 1\n\nevent: b\ndata: 2\n\ndata: tail"))
	s := NewSequencer(context.Background(), body, Options{ChunkSize: 3})
	defer s.Close()

	frames, err := collect(t, s)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("end error = %v, want io.EOF", err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if frames[0].Event != "a" || frames[1].Event != "b" || frames[2].Payload() != "tail" {
		t.Errorf("frames out of order: %#v", frames)
	}

	// Repeated calls keep reporting the end.
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after end = %v, want io.EOF", err)
	}
}

func TestSequencerBackPressureKeepsOrder(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, "data: %d\n\n", i)
	}
	s := NewSequencer(context.Background(), io.NopCloser(strings.NewReader(sb.String())), Options{QueueSize: 1})
	defer s.Close()

	frames, err := collect(t, s)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("end error = %v", err)
	}
	if len(frames) != 200 {
		t.Fatalf("got %d frames, want 200", len(frames))
	}
	for i, f := range frames {
		if f.Payload() != fmt.Sprint(i) {
			t.Fatalf("frame %d = %q", i, f.Payload())
		}
	}
}

func TestSequencerCancelMidStream(t *testing.T) {
	pr, pw := io.Pipe()
	body := &trackingBody{r: pr}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewSequencer(ctx, body, Options{})
	defer s.Close()

	go func() { _, _ = pw.Write([]byte("data: first\n\n")) }()

	f, err := s.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if f.Payload() != "first" {
		t.Fatalf("payload = %q", f.Payload())
	}

	cancel()

	_, err = s.Next()
	if !api.IsKind(err, api.KindAbort) {
		t.Fatalf("Next() after cancel = %v, want abort", err)
	}

	// The body is closed: writes fail and nothing more is read.
	if _, werr := pw.Write([]byte("data: second\n\n")); werr == nil {
		t.Error("write after cancel succeeded, body still open")
	}
	time.Sleep(20 * time.Millisecond)
	if n := body.bytesAfterClose(); n != 0 {
		t.Errorf("read %d bytes after close", n)
	}
	if _, err := s.Next(); !api.IsKind(err, api.KindAbort) {
		t.Errorf("second Next() after cancel = %v, want abort", err)
	}
}

func TestSequencerTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	s := NewSequencer(context.Background(), pr, Options{Timeout: 20 * time.Millisecond})
	defer s.Close()

	_, err := s.Next()
	if !api.IsKind(err, api.KindTimeout) {
		t.Fatalf("Next() = %v, want timeout", err)
	}
}

func TestSequencerReadFailure(t *testing.T) {
	s := NewSequencer(context.Background(), failingBody{err: errors.New("connection reset")}, Options{})
	defer s.Close()

	_, err := s.Next()
	if !api.IsKind(err, api.KindNetwork) {
		t.Fatalf("Next() = %v, want network error", err)
	}
}

func TestSequencerCloseIdempotent(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	s := NewSequencer(context.Background(), pr, Options{})
	if err := s.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() = %v", err)
	}
	if _, err := s.Next(); !api.IsKind(err, api.KindAbort) {
		t.Errorf("Next() after Close = %v, want abort", err)
	}
}
