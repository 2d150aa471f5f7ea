package sse

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/debug"
)

const (
	// DefaultQueueSize is the number of parsed frames buffered between the
	// reading goroutine and the consumer.
	DefaultQueueSize = 64

	// DefaultChunkSize is the read buffer size for the response body.
	DefaultChunkSize = 4096
)

// Options configure a Sequencer.
type Options struct {
	// QueueSize bounds the frame queue. The reader waits when it is full.
	QueueSize int

	// ChunkSize is the size of each body read.
	ChunkSize int

	// Timeout, if positive, arms a deadline for the whole stream on top of
	// any deadline carried by the context.
	Timeout time.Duration
}

// Sequencer is a pull-based sequence of frames read from a streamed body.
//
// A reader goroutine pushes parsed frames into a bounded queue; Next pops
// them in source order and blocks only while the queue is empty and the
// source has not finished. Cancelling the context, hitting the timeout or
// calling Close closes the body, so no further bytes are read.
type Sequencer struct {
	body   io.ReadCloser
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Frame
	capacity int
	finished bool  // source drained or failed
	endErr   error // io.EOF or the read failure
	abortErr error // set once by abort, takes precedence over queued frames

	closeOnce  sync.Once
	readerDone chan struct{}
}

// NewSequencer starts reading body in a background goroutine.
func NewSequencer(ctx context.Context, body io.ReadCloser, opts Options) *Sequencer {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	s := &Sequencer{
		body:       body,
		ctx:        ctx,
		cancel:     cancel,
		capacity:   opts.QueueSize,
		readerDone: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	s.stop = context.AfterFunc(ctx, func() {
		s.abort(api.MapNetworkError(ctx, ctx.Err()))
	})

	go s.read(opts.ChunkSize)
	return s
}

// Next returns the next frame. It returns io.EOF after the last frame of a
// clean stream, an *api.Error of kind Abort or Timeout after cancellation,
// and the classified read error if the connection failed.
func (s *Sequencer) Next() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.abortErr != nil {
			return Frame{}, s.abortErr
		}
		if len(s.queue) > 0 {
			f := s.queue[0]
			s.queue[0] = Frame{}
			s.queue = s.queue[1:]
			s.cond.Broadcast()
			return f, nil
		}
		if s.finished {
			return Frame{}, s.endErr
		}
		s.cond.Wait()
	}
}

// Close aborts the sequence and releases the body. It is safe to call more
// than once and after the stream ended.
func (s *Sequencer) Close() error {
	s.abort(api.NewAbortError("stream closed", nil))
	s.stop()
	s.cancel()
	<-s.readerDone
	return nil
}

func (s *Sequencer) read(chunkSize int) {
	defer close(s.readerDone)

	var parser Parser
	buf := make([]byte, chunkSize)
	for {
		if s.aborted() {
			return
		}
		n, err := s.body.Read(buf)
		if n > 0 {
			if !s.push(parser.Feed(buf[:n])) {
				return
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if f, ok := parser.Flush(); ok && !s.push([]Frame{f}) {
				return
			}
			s.finish(io.EOF)
			return
		}
		debug.Log("streaming", "body read failed", "error", err.Error())
		s.finish(api.MapNetworkError(s.ctx, err))
		return
	}
}

// push appends frames to the queue, waiting for room. It reports false
// once the sequence has been aborted.
func (s *Sequencer) push(frames []Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range frames {
		for len(s.queue) >= s.capacity && s.abortErr == nil {
			s.cond.Wait()
		}
		if s.abortErr != nil {
			return false
		}
		debug.Trace("streaming", "frame", "event", f.Event, "lines", len(f.Data))
		s.queue = append(s.queue, f)
		s.cond.Broadcast()
	}
	return s.abortErr == nil
}

func (s *Sequencer) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		s.finished = true
		s.endErr = err
	}
	s.cond.Broadcast()
}

func (s *Sequencer) aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abortErr != nil
}

// abort records the first abort reason, closes the body so a blocked Read
// returns and wakes every waiter.
func (s *Sequencer) abort(err error) {
	s.mu.Lock()
	first := s.abortErr == nil
	if first {
		s.abortErr = err
		s.queue = nil
	}
	s.closeOnce.Do(func() { _ = s.body.Close() })
	s.cond.Broadcast()
	s.mu.Unlock()

	if first {
		debug.Log("streaming", "sequence aborted", "reason", err.Error())
	}
}
