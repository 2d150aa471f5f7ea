// Package auth protects the HTTP surface of the dolmetsch servers.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). A configurable default voter decides
// when all authenticators abstain.
//
// Auth is HTTP middleware in front of the MCP and translation endpoints.
// An optional per-subject rate limiter runs after authentication.
package auth
