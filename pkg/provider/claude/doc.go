// Package claude implements the provider adapter for the Anthropic Messages
// API (POST /messages). Claude has no fallback protocol.
package claude
