// Package internal contains helper utilities that are intentionally private to
// clubauth, currently secure random one-time code generation.
//
// # What this package must NOT do
//
//   - Export types that appear in the public clubauth API.
//   - Be imported by any package outside the clubauth module.
package internal
