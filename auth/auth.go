// Package auth guards the key-value service with static bearer tokens and
// keeps login sessions in a kv.Store.
package auth

import (
	"context"
	"time"
)

// Principal identifies a caller whose bearer token was accepted.
type Principal struct {
	Name string
}

// TokenVerifier checks a raw bearer token.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (Principal, error)
}

// SessionDescriptor represents the persisted shape of a session token.
type SessionDescriptor struct {
	ID        string            `json:"id"`
	Subject   string            `json:"subject"`
	IssuedAt  time.Time         `json:"issued_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SessionToken surfaces runtime helpers for issued sessions.
type SessionToken interface {
	Descriptor() SessionDescriptor
	IsExpired(at time.Time) bool
}

// SessionStore persists session tokens and supports lifecycle management.
type SessionStore interface {
	Create(ctx context.Context, desc SessionDescriptor) (SessionToken, error)
	Get(ctx context.Context, id string) (SessionToken, error)
	Delete(ctx context.Context, id string) error
	Touch(ctx context.Context, id string, expiresAt time.Time) error
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
