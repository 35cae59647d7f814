package clubauth

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/opencampus-dev/clubauth/accounts"
	"github.com/opencampus-dev/clubauth/jwt"
)

// RequestPasswordReset issues a password-reset code for the account matching
// identifier (an email address or an ID number) and dispatches it through the
// Notifier. Unknown identifiers return nil after a small randomized delay so
// the response shape never reveals whether an account exists.
//
// A live reset code surfaces as a [CodeBusyError]; only real accounts can hold
// one, and its retry hint matches what the owner would see, so it leaks nothing.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) error {
	if e == nil || e.codes == nil || e.notifier == nil {
		return ErrEngineNotReady
	}

	record, err := e.resolveAccount(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricPasswordResetRequest)
			return sleepEnumerationDelay(ctx)
		}
		return err
	}

	if err := e.issueAndDispatch(ctx, record.Email, PurposePasswordReset); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, record.ID, record.Email, nil, nil)

	return nil
}

// ConfirmPasswordResetCode consumes a reset code and exchanges it for a
// short-lived reset token. The token is only accepted by [Engine.ResetPassword];
// it never validates as a session.
func (e *Engine) ConfirmPasswordResetCode(ctx context.Context, identifier, code string) (string, error) {
	if e == nil || e.codes == nil || e.jwtManager == nil {
		return "", ErrEngineNotReady
	}

	record, err := e.resolveAccount(ctx, identifier)
	if err != nil {
		// Unknown identifiers never hold a code; answer exactly as a wrong code
		// against a known account with no live code would.
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricPasswordResetConfirmFailure)
			return "", ErrCodeNotFound
		}
		return "", err
	}

	if err := e.codes.Verify(ctx, record.Email, PurposePasswordReset, code); err != nil {
		e.observeCodeFailure(err)
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, record.ID, record.Email, err, nil)
		return "", err
	}

	token, err := e.jwtManager.IssueReset(record.ID, record.Email)
	if err != nil {
		return "", err
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, record.ID, record.Email, nil, nil)

	return token, nil
}

// ResetPassword finishes the reset workflow. The token must carry the reset
// purpose. After writing the new hash the account is re-read and the hash
// verified against the supplied password, so a silent write failure cannot
// report success.
func (e *Engine) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if e == nil || e.accountStore == nil || e.passwordHash == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(resetToken, jwt.PurposeReset)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			e.emitAudit(ctx, auditEventPasswordResetFailure, false, "", "", ErrTokenExpired, nil)
			return ErrTokenExpired
		}
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, "", "", ErrTokenInvalid, nil)
		return ErrTokenInvalid
	}

	if len(newPassword) < e.config.Password.MinLength {
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, claims.Subject, claims.Email, ErrPasswordPolicy, nil)
		return ErrPasswordPolicy
	}

	record, err := e.accountStore.GetByID(ctx, claims.Subject)
	if err != nil {
		mapped := mapAccountStoreError(err)
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, claims.Subject, claims.Email, mapped, nil)
		return mapped
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return ErrPasswordPolicy
	}

	if _, err := e.accountStore.UpdatePasswordHash(ctx, record.ID, hash); err != nil {
		mapped := mapAccountStoreError(err)
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, record.ID, record.Email, mapped, nil)
		return mapped
	}

	// Post-write verification guards against a lost or partial write.
	reread, err := e.accountStore.GetByID(ctx, record.ID)
	if err != nil {
		return mapAccountStoreError(err)
	}
	ok, err := e.passwordHash.Verify(newPassword, reread.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, record.ID, record.Email, ErrStoreUnavailable, func() map[string]string {
			return map[string]string{
				"reason": "post_write_verify_failed",
			}
		})
		return ErrStoreUnavailable
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetSuccess, true, record.ID, record.Email, nil, nil)

	return nil
}

// ChangePassword rotates the password of a logged-in account after verifying
// the current one.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if e == nil || e.accountStore == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}
	if accountID == "" || oldPassword == "" {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}
	if len(newPassword) < e.config.Password.MinLength {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, "", ErrPasswordPolicy, nil)
		return ErrPasswordPolicy
	}

	record, err := e.accountStore.GetByID(ctx, accountID)
	if err != nil {
		mapped := mapAccountStoreError(err)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, "", mapped, nil)
		return mapped
	}
	if record.PasswordHash == "" {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, record.ID, record.Email, ErrAccountNotSetUp, nil)
		return ErrAccountNotSetUp
	}

	ok, err := e.passwordHash.Verify(oldPassword, record.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, record.ID, record.Email, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return ErrPasswordPolicy
	}

	if _, err := e.accountStore.UpdatePasswordHash(ctx, record.ID, hash); err != nil {
		mapped := mapAccountStoreError(err)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, record.ID, record.Email, mapped, nil)
		return mapped
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, record.ID, record.Email, nil, nil)

	return nil
}

// resolveAccount looks up an account by email address or ID number.
func (e *Engine) resolveAccount(ctx context.Context, identifier string) (*accounts.Record, error) {
	identifier = strings.TrimSpace(identifier)

	var (
		record *accounts.Record
		err    error
	)
	if strings.ContainsRune(identifier, '@') {
		record, err = e.accountStore.GetByEmail(ctx, normalizeEmail(identifier))
	} else {
		record, err = e.accountStore.GetByIDNumber(ctx, identifier)
	}
	if err != nil {
		return nil, mapAccountStoreError(err)
	}

	return record, nil
}

// sleepEnumerationDelay masks the lookup-miss fast path with a randomized
// 20-40ms pause.
func sleepEnumerationDelay(ctx context.Context) error {
	minMs := int64(20)
	maxMs := int64(40)
	span := maxMs - minMs + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return err
	}

	delay := time.Duration(minMs+n.Int64()) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
