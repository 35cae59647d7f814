package clubauth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestAuditEventsFlowToChannelSink(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	sink := NewChannelSink(16)

	cfg := testConfig()
	cfg.Admin.Emails = []string{"chair@campus.edu"}
	cfg.Audit.Enabled = true

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithNotifier(newMockNotifier()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Login(context.Background(), "chair@campus.edu", "first-login-pass"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	seen := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case event := <-sink.Events():
			seen[event.EventType] = true
		case <-timeout:
			t.Fatalf("timed out waiting for audit events, saw %v", seen)
		}
	}

	if !seen[auditEventAdminBootstrap] || !seen[auditEventLoginSuccess] {
		t.Fatalf("expected bootstrap and login events, saw %v", seen)
	}
}

func TestJSONWriterSinkWritesOneEventPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{EventType: auditEventLoginFailure, Email: "a@b.co"})
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventLoginSuccess, Email: "a@b.co", Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var event AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if event.EventType != auditEventLoginFailure {
		t.Fatalf("unexpected event type %q", event.EventType)
	}
}

func TestAuditDispatcherDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{release: block}

	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(block)
		d.Close()
	}()

	// First event occupies the worker, second fills the buffer, the rest drop.
	for i := 0; i < 8; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventLoginFailure})
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.Dropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected dropped events")
		}
		time.Sleep(time.Millisecond)
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(_ context.Context, _ AuditEvent) {
	<-s.release
}

func TestAuditErrorCodeMapping(t *testing.T) {
	cases := map[error]AuditErrorCode{
		ErrInvalidCredentials:   auditErrInvalidCredentials,
		ErrAccountUnverified:    auditErrAccountUnverified,
		ErrCodeAttemptsExceeded: auditErrAttemptsExceeded,
		ErrTokenExpired:         auditErrInvalidToken,
		ErrNotifierUnavailable:  auditErrUnavailable,
		ErrIDNumberTaken:        auditErrDuplicate,
	}

	for err, want := range cases {
		if got := auditErrorCode(err); got != want {
			t.Fatalf("%v: got %q, want %q", err, got, want)
		}
	}
	if auditErrorCode(nil) != "" {
		t.Fatal("nil error must map to empty code")
	}
}
