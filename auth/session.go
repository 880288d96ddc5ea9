package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adeilh/skvdb/kv"
)

var (
	ErrSessionInvalidDescriptor = errors.New("auth: invalid session descriptor")
	ErrSessionExpired           = errors.New("auth: session expired")
)

type SessionStoreOptions struct {
	Prefix     string
	DefaultTTL time.Duration
	// Now overrides the clock used to stamp and check sessions.
	Now func() time.Time
}

// KVSessionStore keeps sessions under "<prefix>:<id>" in a kv.Store and
// hands the session lifetime to the store as the key timeout.
type KVSessionStore struct {
	store      kv.Store
	prefix     string
	defaultTTL time.Duration
	now        func() time.Time
}

var _ SessionStore = (*KVSessionStore)(nil)

func NewKVSessionStore(store kv.Store, opts SessionStoreOptions) *KVSessionStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "session"
	}
	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &KVSessionStore{
		store:      store,
		prefix:     prefix,
		defaultTTL: ttl,
		now:        now,
	}
}

func (s *KVSessionStore) key(id string) string {
	return fmt.Sprintf("%s:%s", s.prefix, id)
}

func (s *KVSessionStore) Create(ctx context.Context, desc SessionDescriptor) (SessionToken, error) {
	if err := contextError(ctx); err != nil {
		return nil, err
	}
	prepared, ttl, err := s.prepareDescriptor(desc)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, s.key(prepared.ID), prepared, ttl); err != nil {
		return nil, err
	}
	return sessionToken{desc: prepared}, nil
}

// Get fetches a session token by ID. Missing and expired sessions both
// report ErrSessionExpired.
func (s *KVSessionStore) Get(ctx context.Context, id string) (SessionToken, error) {
	if err := contextError(ctx); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrSessionInvalidDescriptor
	}

	var desc SessionDescriptor
	ok, err := s.store.Get(ctx, s.key(id), &desc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionExpired
	}

	if !desc.ExpiresAt.After(s.now()) {
		_ = s.store.Delete(ctx, s.key(id))
		return nil, ErrSessionExpired
	}

	return sessionToken{desc: desc}, nil
}

// Delete removes a session by ID.
func (s *KVSessionStore) Delete(ctx context.Context, id string) error {
	if err := contextError(ctx); err != nil {
		return err
	}
	if id == "" {
		return ErrSessionInvalidDescriptor
	}
	return s.store.Delete(ctx, s.key(id))
}

// Touch extends the expiry of a session.
func (s *KVSessionStore) Touch(ctx context.Context, id string, expiresAt time.Time) error {
	if err := contextError(ctx); err != nil {
		return err
	}
	if id == "" {
		return ErrSessionInvalidDescriptor
	}

	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrSessionExpired
	}

	token, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	desc := token.Descriptor()
	desc.ExpiresAt = expiresAt
	return s.store.Set(ctx, s.key(id), desc, ttl)
}

func (s *KVSessionStore) prepareDescriptor(desc SessionDescriptor) (SessionDescriptor, time.Duration, error) {
	if desc.Subject == "" {
		return SessionDescriptor{}, 0, ErrSessionInvalidDescriptor
	}

	out := desc
	out.Metadata = cloneSessionMetadata(desc.Metadata)

	now := s.now()
	if out.ID == "" {
		id, err := GenerateToken(32)
		if err != nil {
			return SessionDescriptor{}, 0, err
		}
		out.ID = id
	}
	if out.IssuedAt.IsZero() {
		out.IssuedAt = now
	}
	if out.ExpiresAt.IsZero() {
		out.ExpiresAt = out.IssuedAt.Add(s.defaultTTL)
	}
	if out.ExpiresAt.Before(out.IssuedAt) {
		return SessionDescriptor{}, 0, ErrSessionInvalidDescriptor
	}

	ttl := out.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return SessionDescriptor{}, 0, ErrSessionExpired
	}

	return out, ttl, nil
}

type sessionToken struct {
	desc SessionDescriptor
}

func (t sessionToken) Descriptor() SessionDescriptor { return t.desc }

func (t sessionToken) IsExpired(at time.Time) bool {
	if t.desc.ExpiresAt.IsZero() {
		return false
	}
	return !at.Before(t.desc.ExpiresAt)
}

func cloneSessionMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
