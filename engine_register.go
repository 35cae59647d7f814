package clubauth

import (
	"context"
	"errors"

	"github.com/opencampus-dev/clubauth/accounts"
)

// Register completes the OTP registration path: the email must already be
// verified, the email must be the one derived from the ID number, and exactly
// one concurrent attempt can win the account. On success the caller is logged
// in immediately.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*LoginResult, error) {
	if e == nil || e.accountStore == nil || e.passwordHash == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(input.Email)

	if err := e.validateRegistrationInput(email, input.IDNumber, input.FullName, input.Password); err != nil {
		e.metricInc(MetricRegistrationFailure)
		e.emitAudit(ctx, auditEventRegistrationFailure, false, "", email, err, nil)
		return nil, err
	}
	if email != e.derivedEmail(input.IDNumber) {
		e.metricInc(MetricRegistrationFailure)
		e.emitAudit(ctx, auditEventRegistrationFailure, false, "", email, ErrEmailMismatch, nil)
		return nil, ErrEmailMismatch
	}

	record, err := e.accountStore.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			// Never verified, so no shell account exists.
			e.metricInc(MetricRegistrationFailure)
			e.emitAudit(ctx, auditEventRegistrationFailure, false, "", email, ErrAccountUnverified, nil)
			return nil, ErrAccountUnverified
		}
		return nil, mapAccountStoreError(err)
	}
	if !record.EmailVerified {
		e.metricInc(MetricRegistrationFailure)
		e.emitAudit(ctx, auditEventRegistrationFailure, false, record.ID, email, ErrAccountUnverified, nil)
		return nil, ErrAccountUnverified
	}

	hash, err := e.passwordHash.Hash(input.Password)
	if err != nil {
		return nil, ErrPasswordPolicy
	}

	updated, err := e.accountStore.CompleteRegistration(ctx, email, input.IDNumber, input.FullName, hash)
	if err != nil {
		mapped := mapAccountStoreError(err)
		e.metricInc(MetricRegistrationFailure)
		e.emitAudit(ctx, auditEventRegistrationFailure, false, record.ID, email, mapped, nil)
		return nil, mapped
	}

	token, err := e.jwtManager.IssueSession(updated.ID, updated.Email)
	if err != nil {
		return nil, err
	}

	if err := e.accountStore.TouchLogin(ctx, updated.ID); err != nil {
		return nil, mapAccountStoreError(err)
	}

	e.metricInc(MetricRegistrationSuccess)
	e.emitAudit(ctx, auditEventRegistrationSuccess, true, updated.ID, email, nil, nil)

	return &LoginResult{
		Token:   token,
		Account: projectAccount(updated),
	}, nil
}

// RegisterPending files a registration that needs an admin decision instead of
// an OTP round-trip. The account is created immediately but cannot log in until
// approved. No token is issued.
func (e *Engine) RegisterPending(ctx context.Context, input PendingInput) (*AccountProjection, error) {
	if e == nil || e.accountStore == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(input.Email)

	if err := e.validateRegistrationInput(email, input.IDNumber, input.FullName, input.Password); err != nil {
		e.emitAudit(ctx, auditEventPendingRegistration, false, "", email, err, nil)
		return nil, err
	}

	hash, err := e.passwordHash.Hash(input.Password)
	if err != nil {
		return nil, ErrPasswordPolicy
	}

	record := &accounts.Record{
		Email:        email,
		IDNumber:     input.IDNumber,
		FullName:     input.FullName,
		Phone:        input.Phone,
		PasswordHash: hash,
		Role:         accounts.RoleStudent,
		Status:       accounts.StatusPendingApproval,
	}

	if err := e.accountStore.Create(ctx, record); err != nil {
		mapped := mapAccountStoreError(err)
		e.emitAudit(ctx, auditEventPendingRegistration, false, "", email, mapped, nil)
		return nil, mapped
	}

	e.metricInc(MetricPendingRegistration)
	e.emitAudit(ctx, auditEventPendingRegistration, true, record.ID, email, nil, nil)

	projection := projectAccount(record)
	return &projection, nil
}

// ApproveAccount activates a pending registration. Approving an already-active
// account is a no-op.
func (e *Engine) ApproveAccount(ctx context.Context, email string) error {
	if e == nil || e.accountStore == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)

	record, err := e.accountStore.GetByEmail(ctx, email)
	if err != nil {
		return mapAccountStoreError(err)
	}
	if record.Status == accounts.StatusActive {
		return nil
	}

	if _, err := e.accountStore.Approve(ctx, record.ID); err != nil {
		return mapAccountStoreError(err)
	}

	e.metricInc(MetricAccountApproved)
	e.emitAudit(ctx, auditEventAccountApproved, true, record.ID, email, nil, nil)

	return nil
}

// RejectAccount declines a pending registration. Rejecting an already-rejected
// account is a no-op; the stored reason is the first one given.
func (e *Engine) RejectAccount(ctx context.Context, email, reason string) error {
	if e == nil || e.accountStore == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)

	record, err := e.accountStore.GetByEmail(ctx, email)
	if err != nil {
		return mapAccountStoreError(err)
	}
	if record.Status == accounts.StatusRejected {
		return nil
	}

	if _, err := e.accountStore.UpdateStatus(ctx, record.ID, accounts.StatusRejected, reason); err != nil {
		return mapAccountStoreError(err)
	}

	e.metricInc(MetricAccountRejected)
	e.emitAudit(ctx, auditEventAccountRejected, true, record.ID, email, nil, func() map[string]string {
		if reason == "" {
			return nil
		}
		return map[string]string{
			"reason": reason,
		}
	})

	return nil
}

func (e *Engine) validateRegistrationInput(email, idNumber, fullName, password string) error {
	if !isEmailSyntax(email) {
		return ErrInvalidEmail
	}
	if !isDigitString(idNumber, e.config.Registration.IDNumberDigits) {
		return ErrInvalidIDNumber
	}
	nameLen := len([]rune(fullName))
	if nameLen < e.config.Registration.MinNameLength || nameLen > e.config.Registration.MaxNameLength {
		return ErrInvalidFullName
	}
	if len(password) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}
	return nil
}

func isDigitString(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
