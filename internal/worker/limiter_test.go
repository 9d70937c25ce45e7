package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "brasilapi"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
	if err := limiter.Wait(ctx, "pncp"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestLimiter_PerSourceBuckets(t *testing.T) {
	limiter := NewLimiter(1, 1)

	if !limiter.Allow("portal_transparencia") {
		t.Errorf("first request should pass")
	}
	if limiter.Allow("portal_transparencia") {
		t.Errorf("expected allow to fail (exhausted tokens)")
	}
	if !limiter.Allow("tse") {
		t.Errorf("other source should have its own bucket")
	}
}

func TestLimiter_SetRate(t *testing.T) {
	limiter := NewLimiter(10, 10)
	limiter.SetRate("siop", 0.1, 1)

	if !limiter.Allow("siop") {
		t.Errorf("first request should pass")
	}
	if limiter.Allow("siop") {
		t.Errorf("second request should fail")
	}
	if !limiter.Allow("ibge") {
		t.Errorf("other source should pass")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !limiter.Allow("static") {
			t.Fatalf("request %d should pass with unlimited rate", i)
		}
	}
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	limiter := NewLimiter(0.01, 1)
	limiter.Allow("slow")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "slow"); err == nil {
		t.Error("expected error when context expires before a token is available")
	}
}

func TestLimiter_SetRateDefaults(t *testing.T) {
	limiter := NewLimiter(2, 5)
	limiter.SetRate("catalog-file", 0, 0)
	if got := limiter.Rate("catalog-file"); got != 2 {
		t.Errorf("rate = %v, want the default 2", got)
	}

	limiter.SetRate("catalog-file", 0.5, 1)
	if got := limiter.Rate("catalog-file"); got != 0.5 {
		t.Errorf("rate = %v, want 0.5 after update", got)
	}
}
