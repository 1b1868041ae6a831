package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newLimiter(t *testing.T, limit int) (*FixedWindowLimiter, *miniredis.Miniredis) {
	t.Helper()
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", limit, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return limiter, redis
}

func TestAllowUpToLimit(t *testing.T) {
	limiter, _ := newLimiter(t, 2)
	for i := 0; i < 2; i++ {
		if !limiter.Allow("client-a") {
			t.Fatalf("request %d should be within quota", i+1)
		}
	}
	if limiter.Allow("client-a") {
		t.Fatal("request over the limit should be blocked")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	limiter, _ := newLimiter(t, 1)
	if !limiter.Allow("client-a") {
		t.Fatal("client-a first request should pass")
	}
	if !limiter.Allow("client-b") {
		t.Fatal("client-b must not inherit client-a's count")
	}
	if limiter.Allow("client-a") {
		t.Fatal("client-a is out of quota")
	}
}

func TestFailsClosedWhenRedisIsDown(t *testing.T) {
	limiter, redis := newLimiter(t, 5)
	redis.Close()
	if limiter.Allow("client-a") {
		t.Fatal("limiter must deny when Redis is unreachable")
	}
}

func TestConstructorValidation(t *testing.T) {
	if _, err := NewRedisFixedWindowLimiter("", "", "p", 1, time.Minute); err == nil {
		t.Fatal("empty addr must be rejected")
	}
	if _, err := NewRedisFixedWindowLimiter("localhost:6379", "", "p", 0, time.Minute); err == nil {
		t.Fatal("zero limit must be rejected")
	}
	if _, err := NewRedisFixedWindowLimiter("localhost:6379", "", "p", 1, 0); err == nil {
		t.Fatal("zero window must be rejected")
	}
}

func TestNilLimiterDenies(t *testing.T) {
	var limiter *FixedWindowLimiter
	if limiter.Allow("anything") {
		t.Fatal("a nil limiter must not grant quota")
	}
}
