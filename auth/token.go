package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrTokenMismatch = errors.New("auth: token rejected")
	ErrNoTokens      = errors.New("auth: no token hashes configured")
)

// HashToken bcrypt-hashes a bearer token for storage in configuration.
func HashToken(token string, cost int) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenInvalidInput
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", fmt.Errorf("auth: bcrypt hash failed: %w", err)
	}
	return string(hashed), nil
}

// GenerateToken returns a random URL-safe token of n random bytes.
func GenerateToken(n int) (string, error) {
	if n <= 0 {
		n = 32
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashedToken is one accepted token hash and the principal it stands for.
type HashedToken struct {
	Name string
	Hash string
}

// BcryptVerifier accepts any token matching one of its bcrypt hashes.
type BcryptVerifier struct {
	tokens []HashedToken
}

var _ TokenVerifier = (*BcryptVerifier)(nil)

// NewBcryptVerifier rejects malformed hashes. Unnamed entries are called
// token-<index>.
func NewBcryptVerifier(tokens ...HashedToken) (*BcryptVerifier, error) {
	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}
	copied := make([]HashedToken, 0, len(tokens))
	for i, t := range tokens {
		if _, err := bcrypt.Cost([]byte(t.Hash)); err != nil {
			return nil, fmt.Errorf("auth: token hash %d: %w", i, err)
		}
		if t.Name == "" {
			t.Name = fmt.Sprintf("token-%d", i)
		}
		copied = append(copied, t)
	}
	return &BcryptVerifier{tokens: copied}, nil
}

// ParseHashedTokens reads a comma-separated list of hashes, each optionally
// prefixed by "name=".
func ParseHashedTokens(list string) []HashedToken {
	var out []HashedToken
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, hash, found := strings.Cut(part, "=")
		if !found || strings.HasPrefix(part, "$") {
			name, hash = "", part
		}
		out = append(out, HashedToken{Name: strings.TrimSpace(name), Hash: strings.TrimSpace(hash)})
	}
	return out
}

func (v *BcryptVerifier) VerifyToken(ctx context.Context, raw string) (Principal, error) {
	if err := contextError(ctx); err != nil {
		return Principal{}, err
	}
	for _, t := range v.tokens {
		err := bcrypt.CompareHashAndPassword([]byte(t.Hash), []byte(raw))
		if err == nil {
			return Principal{Name: t.Name}, nil
		}
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return Principal{}, fmt.Errorf("auth: bcrypt compare failed: %w", err)
		}
	}
	return Principal{}, ErrTokenMismatch
}
