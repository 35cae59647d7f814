package internal

import "testing"

func TestNewOTPLengthAndCharset(t *testing.T) {
	for _, digits := range []int{4, 6, 10} {
		otp, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d) failed: %v", digits, err)
		}
		if len(otp) != digits {
			t.Fatalf("NewOTP(%d) returned %q", digits, otp)
		}
		for _, c := range otp {
			if c < '0' || c > '9' {
				t.Fatalf("non-digit %q in %q", c, otp)
			}
		}
	}
}

func TestNewOTPBounds(t *testing.T) {
	if _, err := NewOTP(3); err == nil {
		t.Fatal("expected error for 3 digits")
	}
	if _, err := NewOTP(11); err == nil {
		t.Fatal("expected error for 11 digits")
	}
}
