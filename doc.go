// Package clubauth provides the account lifecycle and authentication engine for a
// club-management platform: email OTP verification, signed session tokens,
// short-lived password-reset tokens, and a pending-registration/admin-approval
// workflow with whitelist-driven admin bootstrap.
//
// The package is designed for concurrent server workloads: Engine methods are safe
// to call from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// clubauth is the public surface. It exposes [Engine], [Builder], [Config], and
// value types (AccountProjection, LoginResult, MetricsSnapshot). Account documents
// live in clubauth/accounts, token signing in clubauth/jwt, password hashing in
// clubauth/password. The one-time-code ledger is owned by this package and is never
// exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, ledger records, or encoding details in its public API.
//   - Render UI, proxy files, or speak HTTP - transport integration belongs to the
//     caller (see examples/http-minimal).
//   - Store a plaintext password or a plaintext one-time code, ever.
package clubauth
