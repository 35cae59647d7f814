package clubauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEngineNotReady is returned when an Engine method is called on a partially
	// constructed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidCredentials is returned when a password comparison fails.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotFound is returned when no account exists for the given subject.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountNotSetUp is returned when an account exists but has no password hash.
	ErrAccountNotSetUp = errors.New("account has no password set")
	// ErrAccountUnverified is returned when the email-verified gate blocks an operation.
	ErrAccountUnverified = errors.New("account email unverified")
	// ErrAccountNotApproved is returned when a pending or rejected account attempts to log in.
	ErrAccountNotApproved = errors.New("account not approved")
	// ErrAccountExists is returned when a pending registration targets an email that
	// already has an account.
	ErrAccountExists = errors.New("account already exists")
	// ErrAlreadyRegistered is returned when registration targets an account that
	// already completed registration.
	ErrAlreadyRegistered = errors.New("account already registered")
	// ErrIDNumberTaken is returned when another account owns the requested ID number.
	ErrIDNumberTaken = errors.New("id number already taken")
	// ErrEmailMismatch is returned when the email is not the one derived from the ID
	// number under the configured domain rule.
	ErrEmailMismatch = errors.New("email does not match id number")
	// ErrInvalidEmail is returned for syntactically invalid email input.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidIDNumber is returned when the ID number has the wrong digit count.
	ErrInvalidIDNumber = errors.New("invalid id number")
	// ErrInvalidFullName is returned when the full name is outside the length bounds.
	ErrInvalidFullName = errors.New("invalid full name")
	// ErrPasswordPolicy is returned when a password is shorter than the configured minimum.
	ErrPasswordPolicy = errors.New("password policy violation")

	// ErrCodeBusy is matched by the [CodeBusyError] returned while a live one-time
	// code already occupies the (email, purpose) slot.
	ErrCodeBusy = errors.New("one-time code already issued")
	// ErrCodeNotFound is returned when no live one-time code exists for the subject.
	ErrCodeNotFound = errors.New("one-time code not found")
	// ErrCodeExpired is returned when the one-time code lapsed; the record is deleted.
	ErrCodeExpired = errors.New("one-time code expired")
	// ErrCodeMismatch is returned on a wrong code below the attempt ceiling.
	ErrCodeMismatch = errors.New("one-time code mismatch")
	// ErrCodeAttemptsExceeded is returned when the attempt ceiling is reached; the
	// record is deleted and a new code must be requested.
	ErrCodeAttemptsExceeded = errors.New("one-time code attempts exceeded")

	// ErrTokenInvalid is returned for any token failure other than expiry: bad
	// signature, malformed claims, or purpose mismatch.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned when a structurally valid token is past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrNotifierUnavailable is returned when out-of-band code dispatch fails. The
	// undelivered code is deleted so the busy slot is not consumed.
	ErrNotifierUnavailable = errors.New("notifier unavailable")
	// ErrStoreUnavailable wraps unexpected storage failures; it is the only opaque
	// "internal error" kind this engine surfaces.
	ErrStoreUnavailable = errors.New("account store unavailable")
)

// CodeBusyError reports that a live one-time code already exists for the
// (email, purpose) pair. RetryAfter is the remaining lifetime of that code.
// It matches [ErrCodeBusy] under errors.Is.
type CodeBusyError struct {
	RetryAfter time.Duration
}

func (e *CodeBusyError) Error() string {
	return fmt.Sprintf("one-time code already issued, retry in %ds", int(e.RetryAfter.Seconds())+1)
}

// Is describes the is operation and its observable behavior.
//
// Is may return an error when input validation, dependency calls, or security checks fail.
// Is does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *CodeBusyError) Is(target error) bool {
	return target == ErrCodeBusy
}
