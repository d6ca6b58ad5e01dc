package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across template_versions and documents
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Template versions sub-query
	if q.FilterType == "" || q.FilterType == ResultVersion {
		verWhere := "v.fts @@ " + tsQuery
		if q.FilterTemplate != "" {
			verWhere += fmt.Sprintf(" AND v.template_id = $%d", argN)
			args = append(args, q.FilterTemplate)
			argN++
		}
		if q.FilterStatus != "" {
			verWhere += fmt.Sprintf(" AND v.status = $%d", argN)
			args = append(args, q.FilterStatus)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'version'::text AS type, v.id, v.name AS title,
				ts_headline('english', coalesce(v.plain_text, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				v.template_id, v.status, v.language,
				ts_rank(v.fts, %s) AS rank
			FROM template_versions v
			WHERE %s`, tsQuery, tsQuery, verWhere))
	}

	// Documents sub-query
	if q.FilterType == "" || q.FilterType == ResultDocument {
		docWhere := "d.fts @@ " + tsQuery
		if q.FilterTemplate != "" {
			docWhere += fmt.Sprintf(" AND v.template_id = $%d", argN)
			args = append(args, q.FilterTemplate)
			argN++
		}
		if q.FilterStatus != "" {
			docWhere += fmt.Sprintf(" AND d.status = $%d", argN)
			args = append(args, q.FilterStatus)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'document'::text AS type, d.id, d.title,
				ts_headline('english', coalesce(d.title, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				v.template_id, d.status, ''::text AS language,
				ts_rank(d.fts, %s) AS rank
			FROM documents d
			JOIN template_versions v ON v.id = d.version_id
			WHERE %s`, tsQuery, tsQuery, docWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, template_id, status, language
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.TemplateID, &r.Status, &r.Language); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]VersionRecord, []DocumentRecord, error) {
	verRows, err := p.db.QueryContext(ctx, `
		SELECT id, template_id, name, language, status, coalesce(plain_text, '')
		FROM template_versions
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load versions: %w", err)
	}
	defer verRows.Close()

	versions := make([]VersionRecord, 0)
	for verRows.Next() {
		var v VersionRecord
		if err := verRows.Scan(&v.ID, &v.TemplateID, &v.Name, &v.Language, &v.Status, &v.Text); err != nil {
			return nil, nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := verRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate versions: %w", err)
	}

	docRows, err := p.db.QueryContext(ctx, `
		SELECT d.id, v.template_id, d.title, d.status
		FROM documents d
		JOIN template_versions v ON v.id = d.version_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load documents: %w", err)
	}
	defer docRows.Close()

	documents := make([]DocumentRecord, 0)
	for docRows.Next() {
		var d DocumentRecord
		if err := docRows.Scan(&d.ID, &d.TemplateID, &d.Title, &d.Status); err != nil {
			return nil, nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, d)
	}
	if err := docRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate documents: %w", err)
	}

	return versions, documents, nil
}
