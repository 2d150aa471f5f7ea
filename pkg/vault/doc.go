// Package vault encrypts provider API keys at rest.
//
// Keys are sealed with AES-256-GCM under a key derived by PBKDF2-HMAC-SHA256
// (150 000 iterations) from the user's master password. The salt and nonce
// of each sealed secret live next to it in the kv store, one entry per
// service, so that the ciphertext itself stays a plain base64 string.
//
// The plaintext inside the ciphertext is a small JSON envelope carrying a
// truncated SHA-256 checksum of the secret. A checksum mismatch after a
// successful decryption is reported exactly like a failed decryption: the
// password was wrong.
//
// When no master password is set the empty string is used, which makes the
// scheme an obfuscation layer only. Anyone holding the store can decrypt
// such secrets. The master password itself is stored the same way under a
// constant key. This keeps it off disk in plain text and nothing more.
//
// A single-slot cache remembers the last decrypted secret for the exact
// (password, ciphertext, service) triple. It is cleared by [Vault.InvalidateCache],
// which callers invoke when the active service changes.
package vault
