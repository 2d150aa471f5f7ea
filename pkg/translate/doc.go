// Package translate sends translation requests to a provider and streams the
// result back.
//
// Three layers are stacked:
//
//   - [Caller] performs one HTTP attempt with the adapter for the target's
//     protocol. A Responses target that signals it does not know the
//     endpoint is retried once with the Chat Completions adapter.
//   - [Orchestrator] repeats attempts up to a retry bound. Streaming attempts
//     are repeated only while no text has been emitted; when streaming keeps
//     failing without output, one non-streaming call is made instead.
//   - [Client] resolves the active service profile, decrypts its API key,
//     renders the prompt and records response ids in the session.
package translate
