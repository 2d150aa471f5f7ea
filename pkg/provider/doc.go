// Package provider defines the adapter interface for the three provider
// protocols dolmetsch speaks: the OpenAI Responses API, OpenAI Chat
// Completions and the Anthropic Messages API.
//
// An adapter is a pure codec. It knows the endpoint path, the auth headers,
// the request payload and how to pull text out of a full response body or
// out of one SSE frame. HTTP, retries and fallback live in package translate.
package provider
