// Package password implements password hashing and verification with bcrypt.
//
// The [Hasher] supports transparent cost upgrades: if the stored hash was
// produced with a lower cost than the configured one, [Hasher.NeedsRehash]
// returns true so the caller can re-hash on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum
// length) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other clubauth package.
//   - Log plaintext passwords.
package password
