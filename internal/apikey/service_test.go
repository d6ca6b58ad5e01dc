package apikey

import (
	"context"
	"errors"
	"testing"
	"time"

	"parchment/api/internal/store"
)

type memKeyStore struct {
	keys    map[string]store.APIKey
	touched int
}

func newMemKeyStore() *memKeyStore {
	return &memKeyStore{keys: make(map[string]store.APIKey)}
}

func (m *memKeyStore) CreateAPIKey(_ context.Context, key store.APIKey) error {
	m.keys[key.ID] = key
	return nil
}

func (m *memKeyStore) GetAPIKey(_ context.Context, id string) (store.APIKey, error) {
	key, ok := m.keys[id]
	if !ok {
		return store.APIKey{}, errors.New("not found")
	}
	return key, nil
}

func (m *memKeyStore) TouchAPIKey(_ context.Context, id string) error {
	m.touched++
	return nil
}

func (m *memKeyStore) RevokeAPIKey(_ context.Context, id string) error {
	key, ok := m.keys[id]
	if !ok {
		return nil
	}
	now := time.Now()
	key.RevokedAt = &now
	m.keys[id] = key
	return nil
}

func TestIssueAndVerify(t *testing.T) {
	ks := newMemKeyStore()
	svc := NewService(ks)
	ctx := context.Background()

	presented, meta, err := svc.Issue(ctx, "ci-pipeline")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if meta.Name != "ci-pipeline" {
		t.Errorf("unexpected key name %q", meta.Name)
	}

	verified, err := svc.Verify(ctx, presented)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if verified.ID != meta.ID {
		t.Errorf("verified wrong key: %s != %s", verified.ID, meta.ID)
	}
	if ks.touched != 1 {
		t.Errorf("expected 1 touch, got %d", ks.touched)
	}
}

func TestVerifyRejectsBadSecrets(t *testing.T) {
	ks := newMemKeyStore()
	svc := NewService(ks)
	ctx := context.Background()

	presented, meta, err := svc.Issue(ctx, "test")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"malformed", "not-a-key"},
		{"wrong prefix", "sk_" + meta.ID + "_deadbeef"},
		{"unknown id", "pk_ffffffffffffffff_deadbeef"},
		{"wrong secret", "pk_" + meta.ID + "_deadbeef"},
		{"truncated", presented[:len(presented)-4]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Verify(ctx, tt.key); !errors.Is(err, ErrInvalidKey) {
				t.Errorf("expected ErrInvalidKey, got %v", err)
			}
		})
	}
}

func TestVerifyRevokedKey(t *testing.T) {
	ks := newMemKeyStore()
	svc := NewService(ks)
	ctx := context.Background()

	presented, meta, err := svc.Issue(ctx, "temp")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if err := svc.Revoke(ctx, meta.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	if _, err := svc.Verify(ctx, presented); !errors.Is(err, ErrRevokedKey) {
		t.Errorf("expected ErrRevokedKey, got %v", err)
	}
}

func TestIssuedKeysAreUnique(t *testing.T) {
	ks := newMemKeyStore()
	svc := NewService(ks)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		presented, _, err := svc.Issue(ctx, "k")
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if seen[presented] {
			t.Fatal("duplicate key issued")
		}
		seen[presented] = true
	}
}
