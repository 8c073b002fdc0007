package ratelimit_test

import (
	"testing"
	"time"

	"github.com/gather-app/gather/internal/ratelimit"
)

func TestAllowUpToMax(t *testing.T) {
	l := ratelimit.New(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Fatalf("request over the limit should be blocked")
	}

	// other keys are unaffected
	if !l.Allow("10.0.0.2") {
		t.Fatalf("different key should have its own budget")
	}
}

func TestRejectedRequestNotRecorded(t *testing.T) {
	l := ratelimit.New(1, time.Minute)

	if !l.Allow("k") {
		t.Fatalf("first request should pass")
	}
	for i := 0; i < 5; i++ {
		if l.Allow("k") {
			t.Fatalf("blocked request %d should stay blocked", i)
		}
	}
	if got := l.Remaining("k"); got != 0 {
		t.Fatalf("expected 0 remaining got %d", got)
	}
}

func TestWindowSlides(t *testing.T) {
	l := ratelimit.New(2, 50*time.Millisecond)

	if !l.Allow("k") || !l.Allow("k") {
		t.Fatalf("first two requests should pass")
	}
	if l.Allow("k") {
		t.Fatalf("third request inside window should be blocked")
	}

	time.Sleep(60 * time.Millisecond)

	if !l.Allow("k") {
		t.Fatalf("request after window should pass")
	}
}

func TestRemaining(t *testing.T) {
	l := ratelimit.New(3, time.Minute)

	if got := l.Remaining("k"); got != 3 {
		t.Fatalf("fresh key should have full budget, got %d", got)
	}
	l.Allow("k")
	l.Allow("k")
	if got := l.Remaining("k"); got != 1 {
		t.Fatalf("expected 1 remaining got %d", got)
	}
}

func TestResetAt(t *testing.T) {
	window := time.Minute
	l := ratelimit.New(2, window)

	if !l.ResetAt("k").IsZero() {
		t.Fatalf("unused key should have zero reset time")
	}

	before := time.Now()
	l.Allow("k")
	after := time.Now()

	reset := l.ResetAt("k")
	if reset.Before(before.Add(window)) || reset.After(after.Add(window)) {
		t.Fatalf("reset time should be first hit plus window, got %v", reset)
	}
}
