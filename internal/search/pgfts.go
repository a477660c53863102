package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS is the fallback search backend on PostgreSQL full-text search.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true, if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across incidents and ideas using
// plainto_tsquery and ts_rank, with ts_headline for snippets. The 'simple'
// configuration keeps Vietnamese text searchable without stemming surprises.
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

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Incidents sub-query
	if q.FilterType == "" || q.FilterType == ResultIncident {
		incidentWhere := "i.fts @@ " + tsQuery
		if q.FilterDepartmentID != "" {
			incidentWhere += fmt.Sprintf(" AND i.assigned_department_id = $%d", argN)
			args = append(args, q.FilterDepartmentID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'incident'::text AS type, i.id::text, i.title,
				ts_headline('simple', coalesce(i.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				coalesce(i.assigned_department_id::text, '') AS department_id,
				i.status,
				ts_rank(i.fts, %s) AS rank
			FROM incidents i
			WHERE %s`, tsQuery, tsQuery, incidentWhere))
	}

	// Ideas sub-query
	if q.FilterType == "" || q.FilterType == ResultIdea {
		ideaWhere := "d.fts @@ " + tsQuery
		if q.FilterDepartmentID != "" {
			ideaWhere += fmt.Sprintf(" AND d.department_id = $%d", argN)
			args = append(args, q.FilterDepartmentID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'idea'::text AS type, d.id::text, d.title,
				ts_headline('simple', coalesce(d.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				coalesce(d.department_id::text, '') AS department_id,
				d.status,
				ts_rank(d.fts, %s) AS rank
			FROM ideas d
			WHERE %s`, tsQuery, tsQuery, ideaWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	// Count query
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	// Data query
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, department_id, status
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
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.DepartmentID, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]IncidentRecord, []IdeaRecord, error) {
	incidentRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, incident_type, coalesce(assigned_department_id::text, ''), status, priority
		FROM incidents
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load incidents: %w", err)
	}
	defer incidentRows.Close()

	incidents := make([]IncidentRecord, 0)
	for incidentRows.Next() {
		var record IncidentRecord
		if err := incidentRows.Scan(&record.ID, &record.Title, &record.Description, &record.IncidentType, &record.DepartmentID, &record.Status, &record.Priority); err != nil {
			return nil, nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, record)
	}
	if err := incidentRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate incidents: %w", err)
	}

	ideaRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, coalesce(category, ''), coalesce(department_id::text, ''), status
		FROM ideas
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load ideas: %w", err)
	}
	defer ideaRows.Close()

	ideas := make([]IdeaRecord, 0)
	for ideaRows.Next() {
		var record IdeaRecord
		if err := ideaRows.Scan(&record.ID, &record.Title, &record.Description, &record.Category, &record.DepartmentID, &record.Status); err != nil {
			return nil, nil, fmt.Errorf("scan idea: %w", err)
		}
		ideas = append(ideas, record)
	}
	if err := ideaRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate ideas: %w", err)
	}

	return incidents, ideas, nil
}
