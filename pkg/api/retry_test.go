package api

import (
	"testing"
	"time"
)

func TestDefaultRetryPolicyBackoffSequence(t *testing.T) {
	p := DefaultRetryPolicy()

	want := []time.Duration{
		1 * time.Second, // after attempt 1
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}
	for attempt, wantDelay := range want {
		delay, retry := p.Next(attempt + 1)
		if !retry {
			t.Fatalf("attempt %d: gave up early", attempt+1)
		}
		if delay != wantDelay {
			t.Errorf("attempt %d: delay = %v, want %v", attempt+1, delay, wantDelay)
		}
	}

	// Attempt 5 is the last one.
	if _, retry := p.Next(5); retry {
		t.Error("policy should give up after attempt 5")
	}
	if !p.GaveUp(5) {
		t.Error("GaveUp(5) = false, want true")
	}
	if p.GaveUp(4) {
		t.Error("GaveUp(4) = true, want false")
	}
}

func TestRetryPolicyMaxBackoffCap(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts:       10,
		InitialBackoff:    time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        60 * time.Second,
	}

	// 1s doubles past 60s after 6 failures; from there every delay is
	// pinned to the cap.
	delay, retry := p.Next(7)
	if !retry || delay != 60*time.Second {
		t.Errorf("Next(7) = %v, %v; want 60s, true", delay, retry)
	}
	delay, retry = p.Next(9)
	if !retry || delay != 60*time.Second {
		t.Errorf("Next(9) = %v, %v; want 60s, true", delay, retry)
	}
}

func TestRetryPolicySingleAttempt(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 1}
	if _, retry := p.Next(1); retry {
		t.Error("MaxAttempts 1 must never retry")
	}
}

func TestRetryPolicyZeroValueActsAsSingleAttempt(t *testing.T) {
	var p RetryPolicy
	if _, retry := p.Next(1); retry {
		t.Error("zero-value policy must not retry")
	}
}

func TestRetryPolicyImmediate(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3}
	delay, retry := p.Next(1)
	if !retry || delay != 0 {
		t.Errorf("Next(1) = %v, %v; want 0, true", delay, retry)
	}
	delay, retry = p.Next(2)
	if !retry || delay != 0 {
		t.Errorf("Next(2) = %v, %v; want 0, true", delay, retry)
	}
	if _, retry := p.Next(3); retry {
		t.Error("should give up after attempt 3")
	}
}
