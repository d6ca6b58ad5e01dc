// Package apikey issues and verifies the API keys that guard the HTTP
// surface. Keys look like pk_<id>_<secret>; only a bcrypt hash of the
// secret is persisted, so a leaked database dump cannot mint valid keys.
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"parchment/api/internal/store"

	"golang.org/x/crypto/bcrypt"
)

const keyPrefix = "pk"

var (
	// ErrInvalidKey is returned for malformed, unknown or mismatched keys.
	ErrInvalidKey = errors.New("invalid api key")
	// ErrRevokedKey is returned when the key exists but was revoked.
	ErrRevokedKey = errors.New("api key revoked")
)

// KeyStore is the persistence surface the service needs.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key store.APIKey) error
	GetAPIKey(ctx context.Context, id string) (store.APIKey, error)
	TouchAPIKey(ctx context.Context, id string) error
	RevokeAPIKey(ctx context.Context, id string) error
}

// Service issues and verifies API keys.
type Service struct {
	store KeyStore
}

// NewService creates an API key service.
func NewService(store KeyStore) *Service {
	return &Service{store: store}
}

// Issue creates a named key and returns the full key string. The secret is
// shown exactly once; afterwards only its hash exists.
func (s *Service) Issue(ctx context.Context, name string) (string, store.APIKey, error) {
	id := randomHex(8)
	secret := randomHex(24)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", store.APIKey{}, fmt.Errorf("hash api key secret: %w", err)
	}

	key := store.APIKey{
		ID:         id,
		Name:       name,
		SecretHash: string(hash),
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return "", store.APIKey{}, fmt.Errorf("persist api key: %w", err)
	}

	return fmt.Sprintf("%s_%s_%s", keyPrefix, id, secret), key, nil
}

// Verify checks a presented key and records its use. Returns the stored
// key metadata on success.
func (s *Service) Verify(ctx context.Context, presented string) (store.APIKey, error) {
	id, secret, err := splitKey(presented)
	if err != nil {
		return store.APIKey{}, err
	}

	key, err := s.store.GetAPIKey(ctx, id)
	if err != nil {
		// Burn a comparison anyway so unknown ids cost the same as bad
		// secrets.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000"), []byte(secret))
		return store.APIKey{}, ErrInvalidKey
	}

	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		return store.APIKey{}, ErrInvalidKey
	}
	if key.RevokedAt != nil {
		return store.APIKey{}, ErrRevokedKey
	}

	if err := s.store.TouchAPIKey(ctx, id); err != nil {
		return store.APIKey{}, fmt.Errorf("touch api key: %w", err)
	}
	return key, nil
}

// Revoke permanently disables a key by id.
func (s *Service) Revoke(ctx context.Context, id string) error {
	return s.store.RevokeAPIKey(ctx, id)
}

func splitKey(presented string) (id, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(presented), "_")
	if len(parts) != 3 || parts[0] != keyPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", ErrInvalidKey
	}
	return parts[1], parts[2], nil
}

func randomHex(n int) string {
	bytes := make([]byte, n)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
