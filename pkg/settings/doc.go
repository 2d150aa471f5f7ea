// Package settings holds the persisted settings document: the service
// profiles, the prompt set and the global translation options.
//
// The document is stored as JSON under [Key]. API keys are kept only as
// vault ciphertext (apiKeyEnc); plaintext fields written by older versions
// are dropped when the document is loaded. [Manager] ties the document to
// the credential vault and performs the operations that touch both, such as
// changing the master password.
package settings
