// Package jwt wraps token signing and verification for clubauth. It issues two
// token kinds over the same signing key: long-lived session tokens and
// short-lived password-reset tokens, distinguished by a purpose claim. A token
// minted for one purpose never verifies under the other.
//
// # What this package must NOT do
//
//   - Touch Redis or any account state. Tokens are self-contained.
//   - Accept an unsigned or differently-signed algorithm than the configured one.
package jwt
