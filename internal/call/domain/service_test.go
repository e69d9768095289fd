package domain

import (
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]CallStatus{
		"in_progress": CallStatusInProgress,
		"completed":   CallStatusCompleted,
		"failed":      CallStatusFailed,
		"ringing":     CallStatusInProgress,
		"queued":      CallStatusInProgress,
		"initiated":   CallStatusInProgress,
		"answered":    CallStatusInProgress,
		"busy":        CallStatusFailed,
		"no-answer":   CallStatusFailed,
		"canceled":    CallStatusFailed,
	}
	for raw, want := range cases {
		got, err := ParseStatus(raw)
		if err != nil {
			t.Fatalf("ParseStatus(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseStatus(%q) = %q, want %q", raw, got, want)
		}
	}

	if _, err := ParseStatus("exploded"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestClaimState(t *testing.T) {
	record := CallRecord{}
	if record.Claim().Claimed() {
		t.Fatal("fresh record should be unclaimed")
	}
	if _, ok := record.Claim().At(); ok {
		t.Fatal("unclaimed state should have no instant")
	}

	now := time.Now()
	record.UsageClaimedAt = &now
	state := record.Claim()
	if !state.Claimed() {
		t.Fatal("record with usage_claimed_at should be claimed")
	}
	at, ok := state.At()
	if !ok || !at.Equal(now.UTC()) {
		t.Fatalf("claim instant = %v, want %v", at, now.UTC())
	}
}
