package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openTestDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("PARCHMENT_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("PARCHMENT_TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db, ctx
}

func TestVersionLifecyclePostgres(t *testing.T) {
	db, ctx := openTestDB(t)
	s := NewPostgresStore(db)

	tpl, err := s.CreateTemplate(ctx, Template{ID: "tpl_test", WorkspaceID: "default", Name: "Lease"})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}

	v1, err := s.CreateVersion(ctx, TemplateVersion{
		ID: "ver_one", TemplateID: tpl.ID, Name: "Initial", Language: "en",
		Content: []byte(`{"version":2,"content":[]}`),
	})
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	if v1.VersionNumber != 1 {
		t.Fatalf("expected version number 1, got %d", v1.VersionNumber)
	}
	if v1.Status != VersionStatusDraft {
		t.Fatalf("expected draft, got %s", v1.Status)
	}

	v2, err := s.CreateVersion(ctx, TemplateVersion{
		ID: "ver_two", TemplateID: tpl.ID, Name: "Second", Language: "en",
		Content: []byte(`{"version":2,"content":[]}`),
	})
	if err != nil {
		t.Fatalf("create second version: %v", err)
	}
	if v2.VersionNumber != 2 {
		t.Fatalf("expected version number 2, got %d", v2.VersionNumber)
	}

	payload := []byte(`{"version":2,"content":[{"type":"paragraph","content":[{"type":"text","text":"Hello"}]}]}`)
	if err := s.UpdateVersionContent(ctx, v1.ID, payload, "", "", "Hello"); err != nil {
		t.Fatalf("update content: %v", err)
	}

	roles := []VersionSignerRole{{ID: "role-1", VersionID: v1.ID, Label: "tenant", SigningOrder: 1}}
	injectables := []VersionInjectable{{ID: "inj_1", VersionID: v1.ID, VariableID: "VAR.rent"}}
	if err := s.PublishVersion(ctx, v1.ID, roles, injectables); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Frozen content rejects further writes.
	err = s.UpdateVersionContent(ctx, v1.ID, payload, "", "", "Hello")
	if !errors.Is(err, ErrVersionNotDraft) {
		t.Fatalf("expected ErrVersionNotDraft, got %v", err)
	}

	// Double publish is rejected too.
	if err := s.PublishVersion(ctx, v1.ID, roles, injectables); !errors.Is(err, ErrVersionNotDraft) {
		t.Fatalf("expected ErrVersionNotDraft on republish, got %v", err)
	}

	published, err := s.GetVersion(ctx, tpl.ID, v1.ID)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if published.Status != VersionStatusPublished || published.PublishedAt == nil {
		t.Fatalf("expected published version, got %+v", published)
	}

	gotRoles, err := s.GetVersionSignerRoles(ctx, v1.ID)
	if err != nil {
		t.Fatalf("get roles: %v", err)
	}
	if len(gotRoles) != 1 || gotRoles[0].Label != "tenant" {
		t.Fatalf("unexpected roles: %+v", gotRoles)
	}

	gotInjectables, err := s.GetVersionInjectables(ctx, v1.ID)
	if err != nil {
		t.Fatalf("get injectables: %v", err)
	}
	if len(gotInjectables) != 1 || gotInjectables[0].VariableID != "VAR.rent" {
		t.Fatalf("unexpected injectables: %+v", gotInjectables)
	}

	doc, err := s.CreateDocument(ctx, Document{ID: "doc_one", VersionID: v1.ID, Title: "Lease for Alice"})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	if doc.Status != DocumentStatusPending {
		t.Fatalf("expected pending, got %s", doc.Status)
	}

	got, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got.Title != "Lease for Alice" {
		t.Fatalf("unexpected document: %+v", got)
	}
}

func TestAPIKeysPostgres(t *testing.T) {
	db, ctx := openTestDB(t)
	s := NewPostgresStore(db)

	if err := s.CreateAPIKey(ctx, APIKey{ID: "abc123", Name: "ci", SecretHash: "$2a$10$hash"}); err != nil {
		t.Fatalf("create key: %v", err)
	}

	key, err := s.GetAPIKey(ctx, "abc123")
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if key.LastUsedAt != nil || key.RevokedAt != nil {
		t.Fatalf("fresh key must not be used or revoked: %+v", key)
	}

	if err := s.TouchAPIKey(ctx, "abc123"); err != nil {
		t.Fatalf("touch key: %v", err)
	}
	key, err = s.GetAPIKey(ctx, "abc123")
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if key.LastUsedAt == nil {
		t.Fatal("expected last_used_at set after touch")
	}

	if err := s.RevokeAPIKey(ctx, "abc123"); err != nil {
		t.Fatalf("revoke key: %v", err)
	}
	key, err = s.GetAPIKey(ctx, "abc123")
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if key.RevokedAt == nil {
		t.Fatal("expected revoked_at set")
	}
}
