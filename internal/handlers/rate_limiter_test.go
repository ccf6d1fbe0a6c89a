package handlers

import (
	"testing"
	"time"
)

func TestFixedWindowLimiter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newSimpleRateLimiter(3, time.Minute, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		if !limiter.Allow("198.51.100.1") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if limiter.Allow("198.51.100.1") {
		t.Fatalf("fourth request should be limited")
	}
	if !limiter.Allow("198.51.100.2") {
		t.Fatalf("distinct key should have its own window")
	}

	now = now.Add(61 * time.Second)
	if !limiter.Allow("198.51.100.1") {
		t.Fatalf("window should reset")
	}

	impl := limiter.(*fixedWindowLimiter)
	if _, ok := impl.windows["198.51.100.2"]; ok {
		t.Fatalf("expired window should be swept")
	}
}

func TestNewSimpleRateLimiterDisabled(t *testing.T) {
	if limiter := newSimpleRateLimiter(0, time.Minute, nil); limiter != nil {
		t.Fatalf("expected nil limiter when limit is zero")
	}
}
