package clubauth

import (
	"context"
	"errors"

	"github.com/opencampus-dev/clubauth/accounts"
)

// RequestEmailVerification issues a one-time code for the email-verification
// purpose and dispatches it through the Notifier. While a live code exists the
// request fails with a [CodeBusyError] and the existing code stays valid.
//
// A failed dispatch deletes the undelivered code so the busy slot is released.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) error {
	if e == nil || e.codes == nil || e.notifier == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !isEmailSyntax(email) {
		return ErrInvalidEmail
	}

	// Already-verified accounts are a silent no-op so the endpoint stays
	// enumeration-neutral.
	record, err := e.accountStore.GetByEmail(ctx, email)
	if err == nil && record.EmailVerified {
		return nil
	}
	if err != nil && !errors.Is(err, accounts.ErrNotFound) {
		return mapAccountStoreError(err)
	}

	return e.issueAndDispatch(ctx, email, PurposeEmailVerification)
}

// ConfirmEmailVerification consumes a verification code and marks the email as
// verified. When no account exists yet, a verified shell account is created so
// registration can complete later. Confirming an already-verified email with a
// valid code is idempotent.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, email, code string) error {
	if e == nil || e.codes == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !isEmailSyntax(email) {
		return ErrInvalidEmail
	}

	if err := e.codes.Verify(ctx, email, PurposeEmailVerification, code); err != nil {
		e.observeCodeFailure(err)
		e.emitAudit(ctx, auditEventVerificationConfirm, false, "", email, err, nil)
		return err
	}

	record, err := e.accountStore.EnsureVerified(ctx, email)
	if err != nil {
		mapped := mapAccountStoreError(err)
		e.emitAudit(ctx, auditEventVerificationConfirm, false, "", email, mapped, nil)
		return mapped
	}

	e.metricInc(MetricVerificationConfirmed)
	e.emitAudit(ctx, auditEventVerificationConfirm, true, record.ID, email, nil, nil)

	return nil
}

// issueAndDispatch is the shared issue-then-notify step of both code flows.
func (e *Engine) issueAndDispatch(ctx context.Context, email string, purpose CodePurpose) error {
	code, err := e.codes.Issue(ctx, email, purpose)
	if err != nil {
		if errors.Is(err, ErrCodeBusy) {
			e.metricInc(MetricCodeBusy)
		}
		return err
	}

	if err := e.notifier.Send(ctx, email, code, purpose); err != nil {
		// Undelivered codes must not hold the busy slot.
		_ = e.codes.Delete(ctx, email, purpose)
		e.metricInc(MetricNotifierFailure)
		e.emitAudit(ctx, auditEventCodeDispatchFailed, false, "", email, ErrNotifierUnavailable, func() map[string]string {
			return map[string]string{
				"purpose": purpose.String(),
			}
		})
		return ErrNotifierUnavailable
	}

	e.metricInc(MetricCodeIssued)
	e.emitAudit(ctx, auditEventCodeIssued, true, "", email, nil, func() map[string]string {
		return map[string]string{
			"purpose": purpose.String(),
		}
	})

	return nil
}

func (e *Engine) observeCodeFailure(err error) {
	switch {
	case errors.Is(err, ErrCodeMismatch):
		e.metricInc(MetricCodeMismatch)
	case errors.Is(err, ErrCodeExpired):
		e.metricInc(MetricCodeExpired)
	case errors.Is(err, ErrCodeAttemptsExceeded):
		e.metricInc(MetricCodeAttemptsExceeded)
	}
}
