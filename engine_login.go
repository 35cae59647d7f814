package clubauth

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/opencampus-dev/clubauth/accounts"
)

// Login authenticates an account and issues a session token.
//
// Whitelisted admin emails get two extra behaviors: the first login attempt for
// a whitelisted address creates the account on the fly (admin bootstrap, the
// supplied password becomes the account password), and an existing whitelisted
// account is promoted to admin on login when its stored role disagrees.
//
// Existence and hash presence are checked before any password comparison so the
// distinct failure kinds do not change which work is done after the hash check.
func (e *Engine) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	if e == nil || e.accountStore == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer e.metrics.Observe(MetricLoginLatency, time.Since(start))
	}

	email = normalizeEmail(email)
	whitelisted := e.isWhitelisted(email)

	record, err := e.accountStore.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, accounts.ErrNotFound) {
			return nil, mapAccountStoreError(err)
		}
		if !whitelisted {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", email, ErrAccountNotFound, nil)
			return nil, ErrAccountNotFound
		}

		record, err = e.bootstrapAdmin(ctx, email, pass)
		if err != nil {
			return nil, err
		}
	}

	if record.PasswordHash == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, record.ID, email, ErrAccountNotSetUp, nil)
		return nil, ErrAccountNotSetUp
	}

	ok, err := e.passwordHash.Verify(pass, record.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, record.ID, email, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	// Self-healing role assignment for whitelisted accounts that predate the
	// whitelist entry.
	if whitelisted && record.Role != accounts.RoleAdmin {
		promoted, err := e.accountStore.UpdateRole(ctx, record.ID, accounts.RoleAdmin)
		if err != nil {
			return nil, mapAccountStoreError(err)
		}
		record = promoted
		e.metricInc(MetricRolePromoted)
		e.emitAudit(ctx, auditEventRolePromoted, true, record.ID, email, nil, nil)
	}

	if !record.EmailVerified && !whitelisted {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, record.ID, email, ErrAccountUnverified, nil)
		return nil, ErrAccountUnverified
	}

	if record.Status != accounts.StatusActive && !whitelisted {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, record.ID, email, ErrAccountNotApproved, nil)
		return nil, ErrAccountNotApproved
	}

	if e.config.Password.UpgradeOnLogin && e.passwordHash.NeedsRehash(record.PasswordHash) {
		if upgradedHash, err := e.passwordHash.Hash(pass); err == nil {
			// Rehash update is best-effort and must not block successful login.
			if _, err := e.accountStore.UpdatePasswordHash(ctx, record.ID, upgradedHash); err != nil {
				log.Print("clubauth: password hash upgrade update failed")
			}
		} else {
			log.Print("clubauth: password hash upgrade generation failed")
		}
	}
	pass = ""

	if err := e.accountStore.TouchLogin(ctx, record.ID); err != nil {
		return nil, mapAccountStoreError(err)
	}

	token, err := e.jwtManager.IssueSession(record.ID, record.Email)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, record.ID, email, nil, nil)

	return &LoginResult{
		Token:   token,
		Account: projectAccount(record),
	}, nil
}

// bootstrapAdmin creates the account for a whitelisted email on its first
// login. The supplied password becomes the account password.
func (e *Engine) bootstrapAdmin(ctx context.Context, email, pass string) (*accounts.Record, error) {
	if len(pass) < e.config.Password.MinLength {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", email, ErrPasswordPolicy, nil)
		return nil, ErrPasswordPolicy
	}

	hash, err := e.passwordHash.Hash(pass)
	if err != nil {
		return nil, ErrPasswordPolicy
	}

	record := &accounts.Record{
		Email:         email,
		PasswordHash:  hash,
		EmailVerified: true,
		Role:          accounts.RoleAdmin,
		Status:        accounts.StatusActive,
	}

	if err := e.accountStore.Create(ctx, record); err != nil {
		// Lost a concurrent bootstrap race; the winner's account is the real one.
		if errors.Is(err, accounts.ErrDuplicateEmail) {
			return e.accountStore.GetByEmail(ctx, email)
		}
		return nil, mapAccountStoreError(err)
	}

	e.metricInc(MetricAdminBootstrap)
	e.emitAudit(ctx, auditEventAdminBootstrap, true, record.ID, email, nil, nil)

	return record, nil
}
