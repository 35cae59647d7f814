// Package accounts is the Redis-backed credential store for clubauth. An
// account document is keyed by a generated ID; two unique secondary indexes
// (email, ID number) are claimed with conditional writes so no two accounts can
// ever share either.
//
// # Key layout
//
//	<prefix>:id:<accountID>     JSON account document
//	<prefix>:email:<email>      accountID owning the email
//	<prefix>:num:<idNumber>     accountID owning the ID number
//
// # What this package must NOT do
//
//   - Hash, verify, or otherwise interpret passwords. It stores opaque hashes.
//   - Enforce business gates (verification, approval). That is Engine logic.
package accounts
