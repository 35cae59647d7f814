package clubauth

import (
	"context"
	"errors"
	"testing"
)

func registeredAccount(t *testing.T, engine *Engine, notifier *mockNotifier) {
	t.Helper()

	verifiedAccount(t, engine, notifier, "12345678@campus.edu")
	if _, err := engine.Register(context.Background(), RegisterInput{
		Email:    "12345678@campus.edu",
		IDNumber: "12345678",
		FullName: "Ada Lovelace",
		Password: "correct-horse",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}

func TestPasswordResetRoundTrip(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	notifier := newMockNotifier()
	engine := newTestEngine(t, rdb, notifier, nil)
	ctx := context.Background()

	registeredAccount(t, engine, notifier)

	if err := engine.RequestPasswordReset(ctx, "12345678@campus.edu"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	code := notifier.lastCode("12345678@campus.edu", PurposePasswordReset)
	if code == "" {
		t.Fatal("no reset code dispatched")
	}

	resetToken, err := engine.ConfirmPasswordResetCode(ctx, "12345678@campus.edu", code)
	if err != nil {
		t.Fatalf("ConfirmPasswordResetCode failed: %v", err)
	}

	if err := engine.ResetPassword(ctx, resetToken, "brand-new-horse"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	// Old password is dead, new one works.
	if _, err := engine.Login(ctx, "12345678@campus.edu", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for old password, got %v", err)
	}
	if _, err := engine.Login(ctx, "12345678@campus.edu", "brand-new-horse"); err != nil {
		t.Fatalf("Login with new password failed: %v", err)
	}
}

func TestPasswordResetByIDNumber(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	notifier := newMockNotifier()
	engine := newTestEngine(t, rdb, notifier, nil)
	ctx := context.Background()

	registeredAccount(t, engine, notifier)

	if err := engine.RequestPasswordReset(ctx, "12345678"); err != nil {
		t.Fatalf("RequestPasswordReset by ID number failed: %v", err)
	}
	if notifier.lastCode("12345678@campus.edu", PurposePasswordReset) == "" {
		t.Fatal("code must be dispatched to the account email")
	}
}

func TestPasswordResetUnknownIdentifierIsSilent(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	notifier := newMockNotifier()
	engine := newTestEngine(t, rdb, notifier, nil)
	ctx := context.Background()

	// Same success shape for unknown email and unknown ID number.
	if err := engine.RequestPasswordReset(ctx, "nobody@campus.edu"); err != nil {
		t.Fatalf("unknown email must return nil, got %v", err)
	}
	if err := engine.RequestPasswordReset(ctx, "00000000"); err != nil {
		t.Fatalf("unknown ID number must return nil, got %v", err)
	}
	if notifier.sendCount() != 0 {
		t.Fatalf("unknown identifiers must not dispatch, sends=%d", notifier.sendCount())
	}
}

func TestPasswordResetTokenPurposeIsolation(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	notifier := newMockNotifier()
	engine := newTestEngine(t, rdb, notifier, nil)
	ctx := context.Background()

	registeredAccount(t, engine, notifier)

	if err := engine.RequestPasswordReset(ctx, "12345678@campus.edu"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	code := notifier.lastCode("12345678@campus.edu", PurposePasswordReset)

	resetToken, err := engine.ConfirmPasswordResetCode(ctx, "12345678@campus.edu", code)
	if err != nil {
		t.Fatalf("ConfirmPasswordResetCode failed: %v", err)
	}

	// A reset token is not a session.
	if _, err := engine.Validate(ctx, resetToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for reset token as session, got %v", err)
	}

	// A session token is not a reset token.
	login, err := engine.Login(ctx, "12345678@campus.edu", "correct-horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := engine.ResetPassword(ctx, login.Token, "brand-new-horse"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for session token as reset, got %v", err)
	}
}

func TestPasswordResetCodeIsSingleUse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	notifier := newMockNotifier()
	engine := newTestEngine(t, rdb, notifier, nil)
	ctx := context.Background()

	registeredAccount(t, engine, notifier)

	if err := engine.RequestPasswordReset(ctx, "12345678@campus.edu"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	code := notifier.lastCode("12345678@campus.edu", PurposePasswordReset)

	if _, err := engine.ConfirmPasswordResetCode(ctx, "12345678@campus.edu", code); err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}
	if _, err := engine.ConfirmPasswordResetCode(ctx, "12345678@campus.edu", code); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound on replay, got %v", err)
	}
}

func TestPasswordResetUnknownIdentifierConfirm(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb, newMockNotifier(), nil)

	_, err := engine.ConfirmPasswordResetCode(context.Background(), "nobody@campus.edu", "123456")
	if !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestResetPasswordEnforcesPolicy(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	notifier := newMockNotifier()
	engine := newTestEngine(t, rdb, notifier, nil)
	ctx := context.Background()

	registeredAccount(t, engine, notifier)

	if err := engine.RequestPasswordReset(ctx, "12345678@campus.edu"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	code := notifier.lastCode("12345678@campus.edu", PurposePasswordReset)
	resetToken, err := engine.ConfirmPasswordResetCode(ctx, "12345678@campus.edu", code)
	if err != nil {
		t.Fatalf("ConfirmPasswordResetCode failed: %v", err)
	}

	if err := engine.ResetPassword(ctx, resetToken, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}

	// The token survives a policy rejection and can be used again.
	if err := engine.ResetPassword(ctx, resetToken, "brand-new-horse"); err != nil {
		t.Fatalf("ResetPassword after policy rejection failed: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	notifier := newMockNotifier()
	engine := newTestEngine(t, rdb, notifier, nil)
	ctx := context.Background()

	registeredAccount(t, engine, notifier)

	login, err := engine.Login(ctx, "12345678@campus.edu", "correct-horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	accountID := login.Account.ID

	if err := engine.ChangePassword(ctx, accountID, "wrong-horse!", "brand-new-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong old password, got %v", err)
	}
	if err := engine.ChangePassword(ctx, accountID, "correct-horse", "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}

	if err := engine.ChangePassword(ctx, accountID, "correct-horse", "brand-new-horse"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, err := engine.Login(ctx, "12345678@campus.edu", "brand-new-horse"); err != nil {
		t.Fatalf("Login with changed password failed: %v", err)
	}
}
