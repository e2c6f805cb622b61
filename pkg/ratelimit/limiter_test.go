package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_BurstThenReject(t *testing.T) {
	limiter := NewLimiter(3, 1)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("alice") {
			t.Fatalf("request %d within burst capacity was rejected", i+1)
		}
	}

	if limiter.Allow("alice") {
		t.Error("request beyond burst capacity was allowed")
	}
}

func TestLimiter_KeysIndependent(t *testing.T) {
	limiter := NewLimiter(1, 1)

	if !limiter.Allow("alice") {
		t.Fatal("first request for alice rejected")
	}
	if limiter.Allow("alice") {
		t.Error("second request for alice allowed")
	}
	if !limiter.Allow("bob") {
		t.Error("bob must have his own bucket")
	}
}

func TestLimiter_Refill(t *testing.T) {
	// 100 tokens per second refills one token within 10ms.
	limiter := NewLimiter(1, 100)

	if !limiter.Allow("alice") {
		t.Fatal("first request rejected")
	}
	if limiter.Allow("alice") {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(25 * time.Millisecond)

	if !limiter.Allow("alice") {
		t.Error("bucket should have refilled")
	}
}

func TestLimiter_Reset(t *testing.T) {
	limiter := NewLimiter(1, 0.001)

	if !limiter.Allow("alice") {
		t.Fatal("first request rejected")
	}
	if limiter.Allow("alice") {
		t.Fatal("bucket should be empty")
	}

	limiter.Reset("alice")

	if !limiter.Allow("alice") {
		t.Error("reset should restore the full bucket")
	}
}
