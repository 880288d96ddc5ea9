package kv

import (
	"errors"
	"testing"
	"time"
)

func TestComputeExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		timeout time.Duration
		want    time.Time
		err     error
	}{
		{"no timeout", 0, time.Time{}, nil},
		{"one second", time.Second, now.Add(time.Second), nil},
		{"one minute", time.Minute, now.Add(time.Minute), nil},
		{"sub second", 250 * time.Millisecond, now.Add(250 * time.Millisecond), nil},
		{"negative", -time.Second, time.Time{}, ErrInvalidTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeExpiry(tt.timeout, now)
			if !errors.Is(err, tt.err) {
				t.Fatalf("ComputeExpiry() error = %v, want %v", err, tt.err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("ComputeExpiry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestZeroTimeoutNeverExpires(t *testing.T) {
	now := time.Now()
	expiresAt, err := ComputeExpiry(0, now)
	if err != nil {
		t.Fatalf("ComputeExpiry() error = %v", err)
	}
	if !expiresAt.IsZero() {
		t.Fatalf("zero timeout produced expiry %v", expiresAt)
	}
	rec := Record{Key: "k", ExpiresAt: expiresAt}
	if !rec.Live(now.Add(100 * 365 * 24 * time.Hour)) {
		t.Fatalf("record without expiry must stay live")
	}
}

func TestRecordLiveBoundary(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := Record{Key: "k", ExpiresAt: now.Add(time.Second)}

	if !rec.Live(now) {
		t.Fatalf("record should be live before expiry")
	}
	if !rec.Live(now.Add(time.Second - time.Nanosecond)) {
		t.Fatalf("record should be live just before expiry")
	}
	if rec.Live(now.Add(time.Second)) {
		t.Fatalf("record must not be live at its expiry instant")
	}
	if rec.Live(now.Add(2 * time.Second)) {
		t.Fatalf("record must not be live after expiry")
	}
}
