package ratelimit

import (
	"testing"
	"time"

	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/gatewayerr"
)

func TestRateLimitBoundary(t *testing.T) {
	l := New()
	policy := Policy{Requests: 3, Window: time.Minute}

	for i := 1; i <= 3; i++ {
		if err := l.Check("agent:a", policy); err != nil {
			t.Fatalf("request %d: Check() error = %v, want ok", i, err)
		}
	}

	err := l.Check("agent:a", policy)
	if err == nil {
		t.Fatal("4th request succeeded, want rate_limit_exceeded")
	}
	ge, ok := gatewayerr.As(err)
	if !ok || ge.Kind != gatewayerr.KindRateLimitExceeded {
		t.Errorf("error = %v, want gatewayerr.RateLimitExceeded", err)
	}
}

func TestRateLimitResetsAfterWindow(t *testing.T) {
	l := New()
	policy := Policy{Requests: 1, Window: 20 * time.Millisecond}

	if err := l.Check("agent:a", policy); err != nil {
		t.Fatalf("first Check() error = %v", err)
	}
	if err := l.Check("agent:a", policy); err == nil {
		t.Fatal("second immediate Check() succeeded, want rejection")
	}

	time.Sleep(30 * time.Millisecond)

	if err := l.Check("agent:a", policy); err != nil {
		t.Fatalf("Check() after window elapsed = %v, want ok", err)
	}
}

func TestRateLimitKeyIsolation(t *testing.T) {
	l := New()
	policy := Policy{Requests: 1, Window: time.Minute}

	if err := l.Check("agent:a", policy); err != nil {
		t.Fatalf("Check(a) error = %v", err)
	}
	if err := l.Check("agent:a", policy); err == nil {
		t.Fatal("exhausted agent a's budget did not reject a second request")
	}
	if err := l.Check("agent:b", policy); err != nil {
		t.Fatalf("agent b's Check() errored after agent a exhausted its own budget: %v", err)
	}
}

func TestCheckAgentUsesDefaultPolicy(t *testing.T) {
	l := New()
	for i := 0; i < 200; i++ {
		if err := l.CheckAgent("agent-x"); err != nil {
			t.Fatalf("request %d under default agent policy rejected: %v", i+1, err)
		}
	}
	if err := l.CheckAgent("agent-x"); err == nil {
		t.Fatal("request beyond the default 200/60s policy succeeded, want rejection")
	}
}

func TestCheckServiceUsesConfiguredPolicy(t *testing.T) {
	l := New()
	for i := 0; i < 50; i++ {
		if err := l.CheckService("bank"); err != nil {
			t.Fatalf("request %d under bank's 50/60s policy rejected: %v", i+1, err)
		}
	}
	if err := l.CheckService("bank"); err == nil {
		t.Fatal("request beyond bank's configured policy succeeded, want rejection")
	}
}

func TestCheckServiceDefaultsUnknownService(t *testing.T) {
	l := New()
	for i := 0; i < 100; i++ {
		if err := l.CheckService("weather"); err != nil {
			t.Fatalf("request %d under the default service policy rejected: %v", i+1, err)
		}
	}
	if err := l.CheckService("weather"); err == nil {
		t.Fatal("request beyond the default 100/60s policy succeeded, want rejection")
	}
}

func TestRemainingDoesNotConsumeBudget(t *testing.T) {
	l := New()
	policy := Policy{Requests: 5, Window: time.Minute}

	if got := l.Remaining("agent:a", policy); got != 5 {
		t.Fatalf("Remaining() = %d, want 5", got)
	}

	if err := l.Check("agent:a", policy); err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if got := l.Remaining("agent:a", policy); got != 4 {
		t.Fatalf("Remaining() after one request = %d, want 4", got)
	}
	if got := l.Remaining("agent:a", policy); got != 4 {
		t.Fatalf("calling Remaining() twice changed the count: got %d, want 4", got)
	}
}
