// Package chat implements the provider adapter for OpenAI Chat Completions
// (POST /chat/completions). It is also the fallback protocol for providers
// that reject the Responses API.
package chat
