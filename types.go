package clubauth

import "context"

// Role is the closed set of account roles. Roles are never free-form strings:
// illegal roles are unrepresentable.
type Role uint8

const (
	// RoleStudent is the default role for every self-registered account.
	RoleStudent Role = iota
	// RoleAdmin is granted exclusively through the whitelist bootstrap inside Login.
	RoleAdmin
)

// String describes the string operation and its observable behavior.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	default:
		return "student"
	}
}

// AccountStatus represents the lifecycle state of an account.
type AccountStatus uint8

const (
	// AccountActive is a loginable account (subject to the remaining gates).
	AccountActive AccountStatus = iota
	// AccountPendingApproval is a no-OTP registration awaiting an admin decision.
	AccountPendingApproval
	// AccountRejected is a pending registration an admin declined.
	AccountRejected
)

// CodePurpose tags a one-time code with the flow that issued it. A code issued
// for one purpose can never verify under another.
type CodePurpose uint8

const (
	// PurposeEmailVerification gates the OTP registration path.
	PurposeEmailVerification CodePurpose = iota
	// PurposePasswordReset gates the password-reset workflow.
	PurposePasswordReset
)

// String describes the string operation and its observable behavior.
func (p CodePurpose) String() string {
	switch p {
	case PurposePasswordReset:
		return "password-reset"
	default:
		return "email-verification"
	}
}

// Notifier delivers a one-time code out of band (email, SMS). Implementations
// must return a non-nil error when delivery cannot be confirmed; the engine then
// rolls the code back so the busy slot is not consumed by an undelivered code.
type Notifier interface {
	Send(ctx context.Context, email, code string, purpose CodePurpose) error
}

// AccountProjection is the password-free view of an account handed to callers.
// It never includes the password hash.
type AccountProjection struct {
	ID            string
	Email         string
	FullName      string
	IDNumber      string
	Phone         string
	Role          Role
	Status        AccountStatus
	EmailVerified bool
}

// LoginResult is returned by [Engine.Login] and by the OTP registration path
// (auto-login after registration).
type LoginResult struct {
	Token   string
	Account AccountProjection
}

// RegisterInput is the input for [Engine.Register] (the OTP path).
type RegisterInput struct {
	Email    string
	IDNumber string
	FullName string
	Password string
}

// PendingInput is the input for [Engine.RegisterPending] (the approval path).
type PendingInput struct {
	Email    string
	IDNumber string
	FullName string
	Password string
	Phone    string
}
