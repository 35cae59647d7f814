package clubauth

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opencampus-dev/clubauth/internal"
)

const codeRecordVersionV1 = 1

// oneTimeCodeRecord is the stored shape of a live code. Only the sha256 hash of
// the code is persisted; the plaintext exists solely in the Notifier call.
type oneTimeCodeRecord struct {
	Purpose  CodePurpose
	Attempts uint16
	// ExpiresAt is authoritative even when the Redis TTL disagrees.
	ExpiresAt int64
	CodeHash  [32]byte
}

// codeStore is the one-time-code ledger. At most one live code exists per
// (email, purpose) pair. The ledger never stores plaintext codes.
type codeStore struct {
	redis       *redis.Client
	prefix      string
	ttl         time.Duration
	digits      int
	maxAttempts int
}

func newCodeStore(redisClient *redis.Client, cfg Config) *codeStore {
	return &codeStore{
		redis:       redisClient,
		prefix:      cfg.Store.CodePrefix,
		ttl:         cfg.Code.TTL,
		digits:      cfg.Code.Digits,
		maxAttempts: cfg.Code.MaxAttempts,
	}
}

func (s *codeStore) key(email string, purpose CodePurpose) string {
	return s.prefix + ":" + purpose.String() + ":" + email
}

// Issue creates a fresh code for the (email, purpose) slot and returns its
// plaintext exactly once. The insert is conditional: when a live code already
// occupies the slot, a [CodeBusyError] carrying its remaining lifetime is
// returned and the existing code is left untouched.
func (s *codeStore) Issue(ctx context.Context, email string, purpose CodePurpose) (string, error) {
	code, err := internal.NewOTP(s.digits)
	if err != nil {
		return "", err
	}

	record := &oneTimeCodeRecord{
		Purpose:   purpose,
		Attempts:  0,
		ExpiresAt: time.Now().Add(s.ttl).Unix(),
		CodeHash:  sha256.Sum256([]byte(code)),
	}

	encoded, err := encodeOneTimeCodeRecord(record)
	if err != nil {
		return "", err
	}

	key := s.key(email, purpose)

	set, err := s.redis.SetNX(ctx, key, encoded, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !set {
		remaining, err := s.redis.PTTL(ctx, key).Result()
		if err != nil || remaining < 0 {
			remaining = s.ttl
		}
		return "", &CodeBusyError{RetryAfter: remaining}
	}

	return code, nil
}

// Verify consumes one attempt against the live code for (email, purpose).
//
// A correct code deletes the record and returns nil. A wrong code increments
// the attempt counter inside the same transaction; reaching the ceiling deletes
// the record and returns [ErrCodeAttemptsExceeded], otherwise [ErrCodeMismatch].
// Expired records are deleted on sight.
func (s *codeStore) Verify(ctx context.Context, email string, purpose CodePurpose, code string) error {
	const maxRetries = 4

	key := s.key(email, purpose)
	providedHash := sha256.Sum256([]byte(code))

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeOneTimeCodeRecord(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				if err := txDelete(ctx, tx, key); err != nil {
					return err
				}
				return ErrCodeExpired
			}

			if int(record.Attempts) >= s.maxAttempts {
				if err := txDelete(ctx, tx, key); err != nil {
					return err
				}
				return ErrCodeAttemptsExceeded
			}

			if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) == 1 {
				return txDelete(ctx, tx, key)
			}

			record.Attempts++
			if int(record.Attempts) >= s.maxAttempts {
				if err := txDelete(ctx, tx, key); err != nil {
					return err
				}
				return ErrCodeAttemptsExceeded
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				if err := txDelete(ctx, tx, key); err != nil {
					return err
				}
				return ErrCodeExpired
			}

			updated, err := encodeOneTimeCodeRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			if err != nil {
				return err
			}
			return ErrCodeMismatch
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return ErrCodeNotFound
			case errors.Is(err, ErrCodeExpired),
				errors.Is(err, ErrCodeMismatch),
				errors.Is(err, ErrCodeAttemptsExceeded):
				return err
			default:
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}

		return nil
	}

	return ErrCodeNotFound
}

// Delete removes the live code for (email, purpose). It is the rollback hook
// for failed notifier dispatch and is idempotent.
func (s *codeStore) Delete(ctx context.Context, email string, purpose CodePurpose) error {
	if err := s.redis.Del(ctx, s.key(email, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func txDelete(ctx context.Context, tx *redis.Tx, key string) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	return err
}

func encodeOneTimeCodeRecord(record *oneTimeCodeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(codeRecordVersionV1)
	buf.WriteByte(byte(record.Purpose))

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeOneTimeCodeRecord(data []byte) (*oneTimeCodeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid one-time code record version")
	}

	purpose, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &oneTimeCodeRecord{
		Purpose: CodePurpose(purpose),
	}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
