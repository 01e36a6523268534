package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNewDefaultsInvalidRate(t *testing.T) {
	l := New(-5)
	if l.rate != 1.0 {
		t.Errorf("expected fallback rate 1.0, got %f", l.rate)
	}
}

func TestAllowConsumesBurst(t *testing.T) {
	l := New(3)

	allowed := 0
	for i := 0; i < 10; i++ {
		if l.Allow() {
			allowed++
		}
	}

	if allowed != 3 {
		t.Errorf("expected burst of 3, got %d", allowed)
	}
}

func TestWaitRefills(t *testing.T) {
	l := New(100) // 10ms per token

	for l.Allow() {
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("wait took far longer than refill interval")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l := New(0.001) // effectively never refills during the test

	for l.Allow() {
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); err == nil {
		t.Error("expected context deadline error")
	}
}
