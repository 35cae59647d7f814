package clubauth

import (
	"errors"
	"strings"
	"time"
)

// Config defines a public type used by clubauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Token        TokenConfig
	Code         CodeConfig
	Password     PasswordConfig
	Registration RegistrationConfig
	Admin        AdminConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
	Store        StoreConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by clubauth APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	SessionTTL    time.Duration
	ResetTTL      time.Duration
	SigningMethod string // "hs256" (default), "ed25519" optional
	Secret        []byte // hs256 signing secret
	PrivateKey    []byte // ed25519 only
	PublicKey     []byte // ed25519 only
}

/*
====================================
ONE-TIME CODE CONFIG
====================================
*/

// CodeConfig defines a public type used by clubauth APIs.
//
// CodeConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CodeConfig struct {
	TTL         time.Duration
	Digits      int
	MaxAttempts int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by clubauth APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Cost           int // bcrypt cost
	MinLength      int
	UpgradeOnLogin bool
}

// RegistrationConfig defines a public type used by clubauth APIs.
//
// RegistrationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RegistrationConfig struct {
	// EmailDomain is the fixed domain suffix of the deterministic ID-number →
	// email derivation rule: <idNumber>@<EmailDomain>.
	EmailDomain    string
	IDNumberDigits int
	MinNameLength  int
	MaxNameLength  int
}

// AdminConfig defines a public type used by clubauth APIs.
//
// AdminConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AdminConfig struct {
	// Emails is the static admin whitelist. It is the sole source of
	// administrative trust and is consulted only inside Login.
	Emails []string
}

// AuditConfig defines a public type used by clubauth APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by clubauth APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// StoreConfig defines a public type used by clubauth APIs.
//
// StoreConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StoreConfig struct {
	AccountPrefix string
	CodePrefix    string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Callers must still supply
// a token secret and the registration email domain before the config validates.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			SessionTTL:    7 * 24 * time.Hour,
			ResetTTL:      10 * time.Minute,
			SigningMethod: "hs256",
		},
		Code: CodeConfig{
			TTL:         5 * time.Minute,
			Digits:      6,
			MaxAttempts: 5,
		},
		Password: PasswordConfig{
			Cost:           12,
			MinLength:      8,
			UpgradeOnLogin: true,
		},
		Registration: RegistrationConfig{
			EmailDomain:    "",
			IDNumberDigits: 8,
			MinNameLength:  2,
			MaxNameLength:  80,
		},
		Admin: AdminConfig{},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Store: StoreConfig{
			AccountPrefix: "acc",
			CodePrefix:    "otc",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	out.Admin.Emails = append([]string(nil), cfg.Admin.Emails...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ParseAdminEmails splits a comma-separated whitelist (the deployment-side
// configuration format) into normalized entries. Empty items are dropped.
func ParseAdminEmails(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = normalizeEmail(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Token
	if c.Token.SessionTTL <= 0 {
		return errors.New("Token SessionTTL must be > 0")
	}
	if c.Token.ResetTTL <= 0 {
		return errors.New("Token ResetTTL must be > 0")
	}
	if c.Token.ResetTTL >= c.Token.SessionTTL {
		return errors.New("Token ResetTTL must be shorter than SessionTTL")
	}

	switch c.Token.SigningMethod {
	case "hs256":
		if len(c.Token.Secret) < 32 {
			return errors.New("hs256 requires Secret length >= 32 bytes")
		}
	case "ed25519":
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.Token.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported Token signing method")
	}

	// One-time codes
	if c.Code.TTL <= 0 {
		return errors.New("Code TTL must be > 0")
	}
	if c.Code.TTL > 15*time.Minute {
		return errors.New("Code TTL must be <= 15m")
	}
	if c.Code.Digits < 4 || c.Code.Digits > 10 {
		return errors.New("Code Digits must be between 4 and 10")
	}
	if c.Code.MaxAttempts <= 0 || c.Code.MaxAttempts > 10 {
		return errors.New("Code MaxAttempts must be between 1 and 10")
	}

	// Password
	if c.Password.Cost < 10 || c.Password.Cost > 16 {
		return errors.New("Password Cost must be between 10 and 16")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}

	// Registration
	if c.Registration.EmailDomain == "" {
		return errors.New("Registration EmailDomain is required")
	}
	if strings.ContainsAny(c.Registration.EmailDomain, "@ ") {
		return errors.New("Registration EmailDomain must be a bare domain")
	}
	if c.Registration.IDNumberDigits < 4 || c.Registration.IDNumberDigits > 16 {
		return errors.New("Registration IDNumberDigits must be between 4 and 16")
	}
	if c.Registration.MinNameLength < 1 {
		return errors.New("Registration MinNameLength must be >= 1")
	}
	if c.Registration.MaxNameLength < c.Registration.MinNameLength {
		return errors.New("Registration MaxNameLength must be >= MinNameLength")
	}

	// Admin whitelist entries must already be normalized email addresses.
	for _, email := range c.Admin.Emails {
		if email != normalizeEmail(email) || !isEmailSyntax(email) {
			return errors.New("Admin Emails entries must be normalized email addresses")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Store
	if c.Store.AccountPrefix == "" || c.Store.CodePrefix == "" {
		return errors.New("Store prefixes must not be empty")
	}
	if c.Store.AccountPrefix == c.Store.CodePrefix {
		return errors.New("Store prefixes must differ")
	}

	return nil
}

// isEmailSyntax is deliberately minimal: one "@", non-empty local part, a dot in
// the domain. Anything stricter belongs to the derivation rule, not here.
func isEmailSyntax(email string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at != strings.LastIndexByte(email, '@') {
		return false
	}
	domain := email[at+1:]
	if len(domain) < 3 || !strings.Contains(domain, ".") {
		return false
	}
	return !strings.ContainsAny(email, " \t\r\n")
}
