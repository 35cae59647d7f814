package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Account lifecycle states, stored as small integers in the document.
const (
	StatusActive          uint8 = 0
	StatusPendingApproval uint8 = 1
	StatusRejected        uint8 = 2
)

// Account roles, stored as small integers in the document.
const (
	RoleStudent uint8 = 0
	RoleAdmin   uint8 = 1
)

var (
	// ErrNotFound is returned when no account exists for the given lookup key.
	ErrNotFound = errors.New("account record not found")
	// ErrDuplicateEmail is returned when another account already owns the email.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicateIDNumber is returned when another account already owns the ID number.
	ErrDuplicateIDNumber = errors.New("id number already registered")
	// ErrAlreadyRegistered is returned when registration targets an account that
	// already has a password hash.
	ErrAlreadyRegistered = errors.New("account already registered")
	// ErrUnavailable wraps Redis failures.
	ErrUnavailable = errors.New("account store unavailable")
)

// Record is the stored shape of an account. PasswordHash is opaque to this
// package; an empty hash marks a verified-but-not-registered shell account.
type Record struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	IDNumber      string `json:"id_number,omitempty"`
	FullName      string `json:"full_name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	PasswordHash  string `json:"password_hash,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	Role          uint8  `json:"role"`
	Status        uint8  `json:"status"`
	RejectReason  string `json:"reject_reason,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	LastLoginAt   int64  `json:"last_login_at,omitempty"`
}

// Store defines a public type used by clubauth APIs.
//
// Store instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Store struct {
	redis  *redis.Client
	prefix string
}

// NewStore describes the newstore operation and its observable behavior.
func NewStore(redisClient *redis.Client, prefix string) *Store {
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) idKey(accountID string) string {
	return s.prefix + ":id:" + accountID
}

func (s *Store) emailKey(email string) string {
	return s.prefix + ":email:" + email
}

func (s *Store) numKey(idNumber string) string {
	return s.prefix + ":num:" + idNumber
}

/*
====================================
LOOKUPS
====================================
*/

// GetByID describes the getbyid operation and its observable behavior.
//
// GetByID may return an error when input validation, dependency calls, or security checks fail.
// GetByID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) GetByID(ctx context.Context, accountID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.idKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return decodeRecord(data)
}

// GetByEmail describes the getbyemail operation and its observable behavior.
//
// GetByEmail may return an error when input validation, dependency calls, or security checks fail.
// GetByEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) GetByEmail(ctx context.Context, email string) (*Record, error) {
	accountID, err := s.redis.Get(ctx, s.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return s.GetByID(ctx, accountID)
}

// GetByIDNumber describes the getbyidnumber operation and its observable behavior.
//
// GetByIDNumber may return an error when input validation, dependency calls, or security checks fail.
// GetByIDNumber does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) GetByIDNumber(ctx context.Context, idNumber string) (*Record, error) {
	accountID, err := s.redis.Get(ctx, s.numKey(idNumber)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return s.GetByID(ctx, accountID)
}

/*
====================================
CREATION
====================================
*/

// Create persists a brand-new account. The email index (and the ID-number index
// when an ID number is present) is claimed conditionally: a lost race returns
// [ErrDuplicateEmail] or [ErrDuplicateIDNumber] and writes nothing.
func (s *Store) Create(ctx context.Context, record *Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().Unix()
	}

	claimed, err := s.redis.SetNX(ctx, s.emailKey(record.Email), record.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !claimed {
		return ErrDuplicateEmail
	}

	if record.IDNumber != "" {
		claimed, err = s.redis.SetNX(ctx, s.numKey(record.IDNumber), record.ID, 0).Result()
		if err != nil {
			s.redis.Del(ctx, s.emailKey(record.Email))
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if !claimed {
			s.redis.Del(ctx, s.emailKey(record.Email))
			return ErrDuplicateIDNumber
		}
	}

	if err := s.save(ctx, record); err != nil {
		return err
	}

	return nil
}

// EnsureVerified marks the account for email as verified, creating a shell
// account (no password, no profile) when none exists yet. It is idempotent.
func (s *Store) EnsureVerified(ctx context.Context, email string) (*Record, error) {
	record, err := s.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if record.EmailVerified {
			return record, nil
		}
		record.EmailVerified = true
		if err := s.save(ctx, record); err != nil {
			return nil, err
		}
		return record, nil
	case errors.Is(err, ErrNotFound):
	default:
		return nil, err
	}

	shell := &Record{
		Email:         email,
		EmailVerified: true,
		Role:          RoleStudent,
		Status:        StatusActive,
	}
	if err := s.Create(ctx, shell); err != nil {
		// Lost the creation race; the winner's record is authoritative.
		if errors.Is(err, ErrDuplicateEmail) {
			return s.EnsureVerified(ctx, email)
		}
		return nil, err
	}

	return shell, nil
}

// CompleteRegistration fills in the profile and password hash of a verified
// shell account. The account document is watched so exactly one concurrent
// registration can win; the ID-number index is claimed in the same step.
func (s *Store) CompleteRegistration(ctx context.Context, email, idNumber, fullName, passwordHash string) (*Record, error) {
	const maxRetries = 4

	accountID, err := s.redis.Get(ctx, s.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	accountKey := s.idKey(accountID)
	numberKey := s.numKey(idNumber)

	for i := 0; i < maxRetries; i++ {
		var updated *Record

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, accountKey).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeRecord(data)
			if err != nil {
				return err
			}
			if record.PasswordHash != "" {
				return ErrAlreadyRegistered
			}

			owner, err := tx.Get(ctx, numberKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil && owner != record.ID {
				return ErrDuplicateIDNumber
			}

			record.IDNumber = idNumber
			record.FullName = fullName
			record.PasswordHash = passwordHash

			encoded, err := json.Marshal(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, accountKey, encoded, 0)
				pipe.Set(ctx, numberKey, record.ID, 0)
				return nil
			})
			if err != nil {
				return err
			}

			updated = record
			return nil
		}, accountKey, numberKey)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrNotFound
			case errors.Is(err, ErrAlreadyRegistered), errors.Is(err, ErrDuplicateIDNumber):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}

		return updated, nil
	}

	return nil, ErrAlreadyRegistered
}

/*
====================================
UPDATES
====================================
*/

// UpdateStatus describes the updatestatus operation and its observable behavior.
//
// UpdateStatus may return an error when input validation, dependency calls, or security checks fail.
// UpdateStatus does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) UpdateStatus(ctx context.Context, accountID string, status uint8, rejectReason string) (*Record, error) {
	return s.update(ctx, accountID, func(record *Record) {
		record.Status = status
		record.RejectReason = rejectReason
	})
}

// Approve activates a pending account. Approval substitutes for email
// verification, so the verified flag is set in the same write.
func (s *Store) Approve(ctx context.Context, accountID string) (*Record, error) {
	return s.update(ctx, accountID, func(record *Record) {
		record.Status = StatusActive
		record.RejectReason = ""
		record.EmailVerified = true
	})
}

// UpdateRole describes the updaterole operation and its observable behavior.
//
// UpdateRole may return an error when input validation, dependency calls, or security checks fail.
// UpdateRole does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) UpdateRole(ctx context.Context, accountID string, role uint8) (*Record, error) {
	return s.update(ctx, accountID, func(record *Record) {
		record.Role = role
	})
}

// UpdatePasswordHash describes the updatepasswordhash operation and its observable behavior.
//
// UpdatePasswordHash may return an error when input validation, dependency calls, or security checks fail.
// UpdatePasswordHash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) (*Record, error) {
	return s.update(ctx, accountID, func(record *Record) {
		record.PasswordHash = passwordHash
	})
}

// TouchLogin stamps the last successful login time.
func (s *Store) TouchLogin(ctx context.Context, accountID string) error {
	_, err := s.update(ctx, accountID, func(record *Record) {
		record.LastLoginAt = time.Now().Unix()
	})
	return err
}

func (s *Store) update(ctx context.Context, accountID string, mutate func(*Record)) (*Record, error) {
	const maxRetries = 4

	accountKey := s.idKey(accountID)

	for i := 0; i < maxRetries; i++ {
		var updated *Record

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, accountKey).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeRecord(data)
			if err != nil {
				return err
			}

			mutate(record)

			encoded, err := json.Marshal(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, accountKey, encoded, 0)
				return nil
			})
			if err != nil {
				return err
			}

			updated = record
			return nil
		}, accountKey)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		return updated, nil
	}

	return nil, fmt.Errorf("%w: transaction retries exhausted", ErrUnavailable)
}

func (s *Store) save(ctx context.Context, record *Record) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.idKey(record.ID), encoded, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

func decodeRecord(data []byte) (*Record, error) {
	record := &Record{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("%w: corrupt account record", ErrUnavailable)
	}
	return record, nil
}
