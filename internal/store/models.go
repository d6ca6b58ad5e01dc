package store

import "time"

// Version lifecycle states. Content is writable only while a version is a
// draft; publishing freezes it.
const (
	VersionStatusDraft     = "draft"
	VersionStatusPublished = "published"
	VersionStatusArchived  = "archived"
)

// Document signing states.
const (
	DocumentStatusPending   = "pending"
	DocumentStatusCompleted = "completed"
	DocumentStatusVoided    = "voided"
)

type Template struct {
	ID          string
	WorkspaceID string
	Name        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TemplateVersion owns one persisted snapshot. Content holds the raw wire
// payload exactly as saved; the codec interprets it on load.
type TemplateVersion struct {
	ID            string
	TemplateID    string
	VersionNumber int
	Name          string
	Language      string
	Status        string
	Content       []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PublishedAt   *time.Time
}

// VersionSignerRole is a signer role extracted from a snapshot at publish
// time, denormalized for querying and signing-provider integration.
type VersionSignerRole struct {
	ID           string
	VersionID    string
	Label        string
	SigningOrder int
}

// VersionInjectable records one variable a published version references.
type VersionInjectable struct {
	ID         string
	VersionID  string
	VariableID string
}

// Document is a concrete signable document generated from a published
// template version.
type Document struct {
	ID        string
	VersionID string
	Title     string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// APIKey is an automation credential. Only the bcrypt hash of the secret
// is stored.
type APIKey struct {
	ID         string
	Name       string
	SecretHash string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// CommitInfo describes one entry in a template's content history.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}
