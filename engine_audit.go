package clubauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess            = "login_success"
	auditEventLoginFailure            = "login_failure"
	auditEventAdminBootstrap          = "admin_bootstrap"
	auditEventRolePromoted            = "role_promoted"
	auditEventCodeIssued              = "code_issued"
	auditEventCodeDispatchFailed      = "code_dispatch_failed"
	auditEventVerificationConfirm     = "verification_confirm"
	auditEventRegistrationSuccess     = "registration_success"
	auditEventRegistrationFailure     = "registration_failure"
	auditEventPendingRegistration     = "pending_registration"
	auditEventAccountApproved         = "account_approved"
	auditEventAccountRejected         = "account_rejected"
	auditEventPasswordResetRequest    = "password_reset_request"
	auditEventPasswordResetConfirm    = "password_reset_confirm"
	auditEventPasswordResetSuccess    = "password_reset_success"
	auditEventPasswordResetFailure    = "password_reset_failure"
	auditEventPasswordChangeSuccess   = "password_change_success"
	auditEventPasswordChangeFailure   = "password_change_failure"
)

// AuditErrorCode defines a public type used by clubauth APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrAccountNotSetUp    AuditErrorCode = "account_not_set_up"
	auditErrAccountUnverified  AuditErrorCode = "account_unverified"
	auditErrAccountNotApproved AuditErrorCode = "account_not_approved"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrCodeBusy           AuditErrorCode = "code_busy"
	auditErrCodeInvalid        AuditErrorCode = "code_invalid"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	email string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrAccountNotSetUp):
		return auditErrAccountNotSetUp
	case errors.Is(err, ErrAccountUnverified):
		return auditErrAccountUnverified
	case errors.Is(err, ErrAccountNotApproved):
		return auditErrAccountNotApproved
	case errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrAlreadyRegistered),
		errors.Is(err, ErrIDNumberTaken):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrInvalidIDNumber),
		errors.Is(err, ErrInvalidFullName),
		errors.Is(err, ErrEmailMismatch):
		return auditErrValidation
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrCodeBusy):
		return auditErrCodeBusy
	case errors.Is(err, ErrCodeNotFound),
		errors.Is(err, ErrCodeExpired),
		errors.Is(err, ErrCodeMismatch):
		return auditErrCodeInvalid
	case errors.Is(err, ErrCodeAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenExpired):
		return auditErrInvalidToken
	case errors.Is(err, ErrNotifierUnavailable),
		errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
