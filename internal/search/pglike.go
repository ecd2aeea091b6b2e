package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PGSearch is the fallback lead search, substring matching across the lead
// text columns with ILIKE.
type PGSearch struct {
	db *sql.DB
}

func NewPGSearch(db *sql.DB) *PGSearch {
	return &PGSearch{db: db}
}

// Healthy always reports true; when Postgres is down nothing else works either.
func (p *PGSearch) Healthy() bool {
	return true
}

// SearchLeadIDs matches the query as a substring of name, email,
// phone_number, address, or notes, newest leads first.
func (p *PGSearch) SearchLeadIDs(ctx context.Context, query string, limit int) ([]int64, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	pattern := "%" + query + "%"
	rows, err := p.db.QueryContext(ctx, `
		SELECT id
		FROM leads
		WHERE name ILIKE $1
			OR email ILIKE $1
			OR phone_number ILIKE $1
			OR address ILIKE $1
			OR notes ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search leads: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan lead id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lead ids: %w", err)
	}
	return ids, nil
}
