package kv

import "time"

// Record is the structured form a backend without native TTL keeps per key.
// A zero ExpiresAt means the record never expires. Version changes on every
// write and lets the lazy cleanup avoid deleting a record that replaced the
// one it judged expired.
type Record struct {
	Key       string
	Value     []byte
	ExpiresAt time.Time
	Version   int64
}

// ComputeExpiry turns a relative timeout into an absolute instant.
//
// A zero timeout means "no expiry" and yields the zero time, exactly like an
// absent timeout. This mirrors stores whose callers pass 0 to mean "keep
// forever"; it is intentional and covered by tests.
func ComputeExpiry(timeout time.Duration, now time.Time) (time.Time, error) {
	if timeout < 0 {
		return time.Time{}, ErrInvalidTimeout
	}
	if timeout == 0 {
		return time.Time{}, nil
	}
	return now.Add(timeout), nil
}

// IsLive reports whether a record expiring at expiresAt is observable at now.
func IsLive(expiresAt, now time.Time) bool {
	return expiresAt.IsZero() || expiresAt.After(now)
}

// Live reports whether r is observable at now.
func (r Record) Live(now time.Time) bool {
	return IsLive(r.ExpiresAt, now)
}
