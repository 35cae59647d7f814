package clubauth

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Cost = 10
	cfg.Registration.EmailDomain = "campus.edu"
	cfg.Registration.IDNumberDigits = 8
	return cfg
}

type mockNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	fail  bool
	sends int
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{
		codes: map[string]string{},
	}
}

func (n *mockNotifier) Send(_ context.Context, email, code string, purpose CodePurpose) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sends++
	if n.fail {
		return context.DeadlineExceeded
	}
	n.codes[purpose.String()+":"+email] = code
	return nil
}

func (n *mockNotifier) lastCode(email string, purpose CodePurpose) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.codes[purpose.String()+":"+email]
}

func (n *mockNotifier) sendCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.sends
}

func newTestEngine(t *testing.T, rdb *redis.Client, notifier Notifier, mutate func(*Config)) *Engine {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithNotifier(notifier).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine
}

// verifiedAccount walks the real verification flow so tests exercise the same
// path production callers do.
func verifiedAccount(t *testing.T, engine *Engine, notifier *mockNotifier, email string) {
	t.Helper()

	ctx := context.Background()
	if err := engine.RequestEmailVerification(ctx, email); err != nil {
		t.Fatalf("RequestEmailVerification failed: %v", err)
	}

	code := notifier.lastCode(normalizeEmail(email), PurposeEmailVerification)
	if code == "" {
		t.Fatal("no verification code dispatched")
	}
	if err := engine.ConfirmEmailVerification(ctx, email, code); err != nil {
		t.Fatalf("ConfirmEmailVerification failed: %v", err)
	}
}
