package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	return NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "acc")
}

func TestCreateAndLookups(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := &Record{
		Email:        "a@b.co",
		IDNumber:     "12345678",
		FullName:     "Ada Lovelace",
		PasswordHash: "hash",
		Role:         RoleStudent,
		Status:       StatusActive,
	}
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if record.ID == "" {
		t.Fatal("expected generated ID")
	}
	if record.CreatedAt == 0 {
		t.Fatal("expected CreatedAt stamp")
	}

	byEmail, err := store.GetByEmail(ctx, "a@b.co")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	byNumber, err := store.GetByIDNumber(ctx, "12345678")
	if err != nil {
		t.Fatalf("GetByIDNumber failed: %v", err)
	}
	byID, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if byEmail.ID != record.ID || byNumber.ID != record.ID || byID.ID != record.ID {
		t.Fatal("lookups must resolve to the same account")
	}

	if _, err := store.GetByEmail(ctx, "missing@b.co"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateDuplicateIndexes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, &Record{Email: "a@b.co", IDNumber: "12345678"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	err := store.Create(ctx, &Record{Email: "a@b.co", IDNumber: "00000000"})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	err = store.Create(ctx, &Record{Email: "c@d.co", IDNumber: "12345678"})
	if !errors.Is(err, ErrDuplicateIDNumber) {
		t.Fatalf("expected ErrDuplicateIDNumber, got %v", err)
	}

	// The losing create must not leave a dangling email index.
	if _, err := store.GetByEmail(ctx, "c@d.co"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for rolled-back email, got %v", err)
	}
}

func TestEnsureVerifiedUpsertsShell(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	shell, err := store.EnsureVerified(ctx, "a@b.co")
	if err != nil {
		t.Fatalf("EnsureVerified failed: %v", err)
	}
	if !shell.EmailVerified || shell.PasswordHash != "" {
		t.Fatalf("unexpected shell %+v", shell)
	}

	// Idempotent for an existing account.
	again, err := store.EnsureVerified(ctx, "a@b.co")
	if err != nil {
		t.Fatalf("second EnsureVerified failed: %v", err)
	}
	if again.ID != shell.ID {
		t.Fatal("EnsureVerified must not create a second account")
	}
}

func TestEnsureVerifiedFlagsExistingAccount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := &Record{Email: "a@b.co", PasswordHash: "hash"}
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := store.EnsureVerified(ctx, "a@b.co")
	if err != nil {
		t.Fatalf("EnsureVerified failed: %v", err)
	}
	if !updated.EmailVerified || updated.ID != record.ID || updated.PasswordHash != "hash" {
		t.Fatalf("unexpected record %+v", updated)
	}
}

func TestCompleteRegistrationSingleWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.EnsureVerified(ctx, "a@b.co"); err != nil {
		t.Fatalf("EnsureVerified failed: %v", err)
	}

	record, err := store.CompleteRegistration(ctx, "a@b.co", "12345678", "Ada Lovelace", "hash")
	if err != nil {
		t.Fatalf("CompleteRegistration failed: %v", err)
	}
	if record.IDNumber != "12345678" || record.PasswordHash != "hash" {
		t.Fatalf("unexpected record %+v", record)
	}

	// Second completion observes the hash and loses.
	if _, err := store.CompleteRegistration(ctx, "a@b.co", "12345678", "Ada Lovelace", "hash2"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}

	// The ID number is now owned.
	if _, err := store.EnsureVerified(ctx, "c@d.co"); err != nil {
		t.Fatalf("EnsureVerified failed: %v", err)
	}
	if _, err := store.CompleteRegistration(ctx, "c@d.co", "12345678", "Grace Hopper", "hash3"); !errors.Is(err, ErrDuplicateIDNumber) {
		t.Fatalf("expected ErrDuplicateIDNumber, got %v", err)
	}

	if _, err := store.CompleteRegistration(ctx, "missing@b.co", "00000000", "Nobody", "hash"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatesAndApprove(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := &Record{Email: "a@b.co", PasswordHash: "hash", Status: StatusPendingApproval}
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	approved, err := store.Approve(ctx, record.ID)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if approved.Status != StatusActive || !approved.EmailVerified {
		t.Fatalf("unexpected approved record %+v", approved)
	}

	rejected, err := store.UpdateStatus(ctx, record.ID, StatusRejected, "not a member")
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if rejected.Status != StatusRejected || rejected.RejectReason != "not a member" {
		t.Fatalf("unexpected rejected record %+v", rejected)
	}

	promoted, err := store.UpdateRole(ctx, record.ID, RoleAdmin)
	if err != nil {
		t.Fatalf("UpdateRole failed: %v", err)
	}
	if promoted.Role != RoleAdmin {
		t.Fatalf("unexpected role %d", promoted.Role)
	}

	if _, err := store.UpdatePasswordHash(ctx, record.ID, "hash2"); err != nil {
		t.Fatalf("UpdatePasswordHash failed: %v", err)
	}
	if err := store.TouchLogin(ctx, record.ID); err != nil {
		t.Fatalf("TouchLogin failed: %v", err)
	}

	final, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if final.PasswordHash != "hash2" || final.LastLoginAt == 0 {
		t.Fatalf("unexpected final record %+v", final)
	}

	if _, err := store.UpdateRole(ctx, "missing-id", RoleAdmin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
