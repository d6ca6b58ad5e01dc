package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrVersionNotDraft is returned when a write targets a version whose
// content is frozen.
var ErrVersionNotDraft = errors.New("template version is not a draft")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateTemplate(ctx context.Context, t Template) (Template, error) {
	const query = `
		INSERT INTO templates (id, workspace_id, name)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`
	if err := s.db.QueryRowContext(ctx, query, t.ID, t.WorkspaceID, t.Name).Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		return Template{}, fmt.Errorf("insert template: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) GetTemplate(ctx context.Context, id string) (Template, error) {
	const query = `
		SELECT id, workspace_id, name, created_at, updated_at
		FROM templates WHERE id = $1
	`
	var t Template
	err := s.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.WorkspaceID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Template{}, err
	}
	return t, nil
}

func (s *PostgresStore) ListTemplates(ctx context.Context, workspaceID string) ([]Template, error) {
	const query = `
		SELECT id, workspace_id, name, created_at, updated_at
		FROM templates WHERE workspace_id = $1
		ORDER BY updated_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	templates := make([]Template, 0)
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *PostgresStore) CreateVersion(ctx context.Context, v TemplateVersion) (TemplateVersion, error) {
	const nextNumber = `
		SELECT COALESCE(MAX(version_number), 0) + 1
		FROM template_versions WHERE template_id = $1
	`
	if err := s.db.QueryRowContext(ctx, nextNumber, v.TemplateID).Scan(&v.VersionNumber); err != nil {
		return TemplateVersion{}, fmt.Errorf("next version number: %w", err)
	}

	const insert = `
		INSERT INTO template_versions (id, template_id, version_number, name, language, status, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	v.Status = VersionStatusDraft
	err := s.db.QueryRowContext(ctx, insert,
		v.ID, v.TemplateID, v.VersionNumber, v.Name, v.Language, v.Status, v.Content,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return TemplateVersion{}, fmt.Errorf("insert version: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, templateID, versionID string) (TemplateVersion, error) {
	const query = `
		SELECT id, template_id, version_number, name, language, status, content,
			created_at, updated_at, published_at
		FROM template_versions
		WHERE id = $1 AND template_id = $2
	`
	var v TemplateVersion
	err := s.db.QueryRowContext(ctx, query, versionID, templateID).Scan(
		&v.ID, &v.TemplateID, &v.VersionNumber, &v.Name, &v.Language, &v.Status,
		&v.Content, &v.CreatedAt, &v.UpdatedAt, &v.PublishedAt,
	)
	if err != nil {
		return TemplateVersion{}, err
	}
	return v, nil
}

func (s *PostgresStore) GetVersionByID(ctx context.Context, versionID string) (TemplateVersion, error) {
	const query = `
		SELECT id, template_id, version_number, name, language, status, content,
			created_at, updated_at, published_at
		FROM template_versions
		WHERE id = $1
	`
	var v TemplateVersion
	err := s.db.QueryRowContext(ctx, query, versionID).Scan(
		&v.ID, &v.TemplateID, &v.VersionNumber, &v.Name, &v.Language, &v.Status,
		&v.Content, &v.CreatedAt, &v.UpdatedAt, &v.PublishedAt,
	)
	if err != nil {
		return TemplateVersion{}, err
	}
	return v, nil
}

// UpdateVersionContent persists a new snapshot payload onto a draft
// version. Writes against published or archived versions fail with
// ErrVersionNotDraft.
func (s *PostgresStore) UpdateVersionContent(ctx context.Context, versionID string, content []byte, name, language, plainText string) error {
	const query = `
		UPDATE template_versions
		SET content = $2,
			name = COALESCE(NULLIF($3, ''), name),
			language = COALESCE(NULLIF($4, ''), language),
			plain_text = $5,
			updated_at = NOW()
		WHERE id = $1 AND status = $6
	`
	result, err := s.db.ExecContext(ctx, query, versionID, content, name, language, plainText, VersionStatusDraft)
	if err != nil {
		return fmt.Errorf("update version content: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update version content: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetVersionByID(ctx, versionID); err != nil {
			return err
		}
		return ErrVersionNotDraft
	}
	return nil
}

// PublishVersion freezes a draft and replaces its extracted signer roles
// and injectables in one transaction.
func (s *PostgresStore) PublishVersion(ctx context.Context, versionID string, roles []VersionSignerRole, injectables []VersionInjectable) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const publish = `
		UPDATE template_versions
		SET status = $2, published_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3
	`
	result, err := tx.ExecContext(ctx, publish, versionID, VersionStatusPublished, VersionStatusDraft)
	if err != nil {
		return fmt.Errorf("publish version: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("publish version: %w", err)
	}
	if affected == 0 {
		return ErrVersionNotDraft
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM template_version_signer_roles WHERE version_id = $1`, versionID); err != nil {
		return fmt.Errorf("clear signer roles: %w", err)
	}
	for _, role := range roles {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO template_version_signer_roles (id, version_id, label, signing_order)
			VALUES ($1, $2, $3, $4)
		`, role.ID, versionID, role.Label, role.SigningOrder); err != nil {
			return fmt.Errorf("insert signer role: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM template_version_injectables WHERE version_id = $1`, versionID); err != nil {
		return fmt.Errorf("clear injectables: %w", err)
	}
	for _, inj := range injectables {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO template_version_injectables (id, version_id, variable_id)
			VALUES ($1, $2, $3)
		`, inj.ID, versionID, inj.VariableID); err != nil {
			return fmt.Errorf("insert injectable: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit publish tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVersionSignerRoles(ctx context.Context, versionID string) ([]VersionSignerRole, error) {
	const query = `
		SELECT id, version_id, label, signing_order
		FROM template_version_signer_roles
		WHERE version_id = $1
		ORDER BY signing_order
	`
	rows, err := s.db.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("list signer roles: %w", err)
	}
	defer rows.Close()

	roles := make([]VersionSignerRole, 0)
	for rows.Next() {
		var role VersionSignerRole
		if err := rows.Scan(&role.ID, &role.VersionID, &role.Label, &role.SigningOrder); err != nil {
			return nil, fmt.Errorf("scan signer role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *PostgresStore) GetVersionInjectables(ctx context.Context, versionID string) ([]VersionInjectable, error) {
	const query = `
		SELECT id, version_id, variable_id
		FROM template_version_injectables
		WHERE version_id = $1
		ORDER BY variable_id
	`
	rows, err := s.db.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("list injectables: %w", err)
	}
	defer rows.Close()

	injectables := make([]VersionInjectable, 0)
	for rows.Next() {
		var inj VersionInjectable
		if err := rows.Scan(&inj.ID, &inj.VersionID, &inj.VariableID); err != nil {
			return nil, fmt.Errorf("scan injectable: %w", err)
		}
		injectables = append(injectables, inj)
	}
	return injectables, rows.Err()
}

func (s *PostgresStore) CreateDocument(ctx context.Context, d Document) (Document, error) {
	const query = `
		INSERT INTO documents (id, version_id, title, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	d.Status = DocumentStatusPending
	if err := s.db.QueryRowContext(ctx, query, d.ID, d.VersionID, d.Title, d.Status).Scan(&d.CreatedAt, &d.UpdatedAt); err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (Document, error) {
	const query = `
		SELECT id, version_id, title, status, created_at, updated_at
		FROM documents WHERE id = $1
	`
	var d Document
	err := s.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.VersionID, &d.Title, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	return d, nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key APIKey) error {
	const query = `
		INSERT INTO api_keys (id, name, secret_hash)
		VALUES ($1, $2, $3)
	`
	if _, err := s.db.ExecContext(ctx, query, key.ID, key.Name, key.SecretHash); err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAPIKey(ctx context.Context, id string) (APIKey, error) {
	const query = `
		SELECT id, name, secret_hash, created_at, last_used_at, revoked_at
		FROM api_keys WHERE id = $1
	`
	var key APIKey
	err := s.db.QueryRowContext(ctx, query, id).Scan(&key.ID, &key.Name, &key.SecretHash, &key.CreatedAt, &key.LastUsedAt, &key.RevokedAt)
	if err != nil {
		return APIKey{}, err
	}
	return key, nil
}

func (s *PostgresStore) TouchAPIKey(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, id); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return nil
}
