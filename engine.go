package clubauth

import (
	"context"
	"errors"

	"github.com/opencampus-dev/clubauth/accounts"
	"github.com/opencampus-dev/clubauth/jwt"
	"github.com/opencampus-dev/clubauth/password"
)

// Engine defines a public type used by clubauth APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	accountStore *accounts.Store
	codes        *codeStore
	notifier     Notifier
	audit        *auditDispatcher
	metrics      *Metrics
	passwordHash *password.Hasher
	jwtManager   *jwt.Manager
	admins       map[string]struct{}
}

// Close describes the close operation and its observable behavior.
//
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Validate verifies a session token and returns the account it belongs to.
// Reset tokens never validate here: their purpose claim does not match.
func (e *Engine) Validate(ctx context.Context, tokenStr string) (*AccountProjection, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(tokenStr, jwt.PurposeSession)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	record, err := e.accountStore.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, mapAccountStoreError(err)
	}

	projection := projectAccount(record)
	return &projection, nil
}

// GetAccount returns the password-free view of an account by email.
func (e *Engine) GetAccount(ctx context.Context, email string) (*AccountProjection, error) {
	if e == nil || e.accountStore == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	record, err := e.accountStore.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, mapAccountStoreError(err)
	}

	projection := projectAccount(record)
	return &projection, nil
}

func (e *Engine) isWhitelisted(email string) bool {
	_, ok := e.admins[email]
	return ok
}

// derivedEmail is the deterministic ID-number to email mapping used by the
// registration flows.
func (e *Engine) derivedEmail(idNumber string) string {
	return idNumber + "@" + e.config.Registration.EmailDomain
}

func projectAccount(record *accounts.Record) AccountProjection {
	return AccountProjection{
		ID:            record.ID,
		Email:         record.Email,
		FullName:      record.FullName,
		IDNumber:      record.IDNumber,
		Phone:         record.Phone,
		Role:          Role(record.Role),
		Status:        AccountStatus(record.Status),
		EmailVerified: record.EmailVerified,
	}
}

func mapAccountStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, accounts.ErrNotFound):
		return ErrAccountNotFound
	case errors.Is(err, accounts.ErrAlreadyRegistered):
		return ErrAlreadyRegistered
	case errors.Is(err, accounts.ErrDuplicateIDNumber):
		return ErrIDNumberTaken
	case errors.Is(err, accounts.ErrDuplicateEmail):
		return ErrAccountExists
	default:
		return ErrStoreUnavailable
	}
}
