// Package api defines the error taxonomy shared by every dolmetsch package.
//
// All failures that reach a caller of the translation client are *[Error]
// values carrying a [Kind]. The kind decides how the retry orchestrator
// treats the failure:
//
//   - [KindConfiguration], [KindAuthentication], [KindUnsupportedFormat],
//     [KindAbort] and [KindNotImplemented] are surfaced immediately.
//   - [KindNetwork], [KindTimeout] and [KindStream] are retried.
//   - [KindAPI] is retried for 5xx, 408 and 429 responses only.
//
// The package has no external dependencies and performs no I/O.
package api
