// Package sse turns a server-sent-events byte stream into frames.
//
// [Parser] is the pure assembler: chunks go in, complete frames come out,
// and incomplete input stays buffered inside the parser until more bytes
// arrive. [Sequencer] wraps a parser around an HTTP response body and
// exposes the frames as a pull-based sequence with cancellation, a
// per-attempt timeout and bounded buffering between the reading goroutine
// and the consumer.
package sse
