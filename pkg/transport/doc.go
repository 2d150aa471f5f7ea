// Package transport defines the handler contract and middleware chain that
// serve translation requests arriving over the network.
//
// # Handler Interfaces
//
// A Translator handles one Request and writes the result to a
// ResponseWriter: text deltas while a streamed translation is in progress,
// then one final Result. ClientTranslator adapts a translate.Client to this
// contract.
//
// # Middleware
//
// The middleware chain wraps a Translator with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), structured logging via log/slog, and registration of
// in-flight requests so they can be cancelled by id.
//
// The HTTP binding lives in transport/http.
package transport
