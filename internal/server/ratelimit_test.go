package server

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketExhausts(t *testing.T) {
	bucket := newTokenBucket(1, 2)
	if !bucket.Allow() || !bucket.Allow() {
		t.Fatal("expected burst capacity of 2")
	}
	if bucket.Allow() {
		t.Fatal("expected bucket to be empty")
	}
}

func TestAllowLoginTracksKeysIndependently(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{LoginLimit: 1, LoginWindow: time.Minute})
	ctx := context.Background()

	if ok, _, _ := rl.AllowLogin(ctx, "10.0.0.1"); !ok {
		t.Fatal("first attempt for A should pass")
	}
	if ok, _, _ := rl.AllowLogin(ctx, "10.0.0.1"); ok {
		t.Fatal("second attempt for A should be throttled")
	}
	if ok, _, _ := rl.AllowLogin(ctx, "10.0.0.2"); !ok {
		t.Fatal("B must not share A's budget")
	}
}

func TestDisabledLimitsAllowEverything(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{})
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		if !rl.AllowRequest() {
			t.Fatal("global limiter should be disabled")
		}
		if ok, _, _ := rl.AllowLogin(ctx, "10.0.0.1"); !ok {
			t.Fatal("login limiter should be disabled")
		}
	}
}
