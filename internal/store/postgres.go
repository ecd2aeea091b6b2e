package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type PostgresStore struct {
	db   *sql.DB
	caps Capabilities
}

func NewPostgresStore(db *sql.DB, caps Capabilities) *PostgresStore {
	return &PostgresStore{db: db, caps: caps}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// leadColumns builds the select list, substituting empty literals for
// columns the database does not have.
func (s *PostgresStore) leadColumns() string {
	status := "status"
	if !s.caps.LeadStatusColumn {
		status = "''::text AS status"
	}
	priority := "priority"
	if !s.caps.LeadPriorityColumn {
		priority = "''::text AS priority"
	}
	return strings.Join([]string{
		"id", "name", "email", "phone_number", "address", "notes",
		status, priority, "created_at", "updated_at",
	}, ", ")
}

func scanLead(row interface{ Scan(...any) error }) (Lead, error) {
	var lead Lead
	err := row.Scan(
		&lead.ID,
		&lead.Name,
		&lead.Email,
		&lead.PhoneNumber,
		&lead.Address,
		&lead.Notes,
		&lead.Status,
		&lead.Priority,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	return lead, err
}

func (s *PostgresStore) ListLeads(ctx context.Context) ([]Lead, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+s.leadColumns()+`
		FROM leads
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	items := make([]Lead, 0)
	for rows.Next() {
		item, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return items, nil
}

// ListLeadsByIDs returns the leads matching ids. Order is unspecified;
// callers that care about ranking reorder the result themselves.
func (s *PostgresStore) ListLeadsByIDs(ctx context.Context, ids []int64) ([]Lead, error) {
	if len(ids) == 0 {
		return []Lead{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+s.leadColumns()+`
		FROM leads
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list leads by ids: %w", err)
	}
	defer rows.Close()

	items := make([]Lead, 0, len(ids))
	for rows.Next() {
		item, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID int64) (Lead, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+s.leadColumns()+`
		FROM leads
		WHERE id=$1
	`, leadID)
	lead, err := scanLead(row)
	if err != nil {
		return Lead{}, err
	}
	return lead, nil
}

func (s *PostgresStore) CreateLead(ctx context.Context, data NewLead) (Lead, error) {
	columns := []string{"name", "email", "phone_number", "address", "notes"}
	values := []any{data.Name, data.Email, data.PhoneNumber, data.Address, data.Notes}
	if s.caps.LeadStatusColumn {
		columns = append(columns, "status")
		values = append(values, data.Status)
	}
	if s.caps.LeadPriorityColumn {
		columns = append(columns, "priority")
		values = append(values, data.Priority)
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO leads (`+strings.Join(columns, ", ")+`)
		VALUES (`+strings.Join(placeholders, ", ")+`)
		RETURNING `+s.leadColumns(),
		values...,
	)
	lead, err := scanLead(row)
	if err != nil {
		return Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	return lead, nil
}

func (s *PostgresStore) UpdateLead(ctx context.Context, leadID int64, patch LeadPatch) (Lead, error) {
	sets := []string{"updated_at=NOW()"}
	args := []any{leadID}
	next := 2

	assign := func(column string, value *string) {
		if value == nil {
			return
		}
		sets = append(sets, fmt.Sprintf("%s=$%d", column, next))
		args = append(args, *value)
		next++
	}

	assign("name", patch.Name)
	assign("email", patch.Email)
	assign("phone_number", patch.PhoneNumber)
	assign("address", patch.Address)
	assign("notes", patch.Notes)
	if s.caps.LeadStatusColumn {
		assign("status", patch.Status)
	}
	if s.caps.LeadPriorityColumn {
		assign("priority", patch.Priority)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE leads
		SET `+strings.Join(sets, ", ")+`
		WHERE id=$1
		RETURNING `+s.leadColumns(),
		args...,
	)
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Lead{}, err
	}
	if err != nil {
		return Lead{}, fmt.Errorf("update lead: %w", err)
	}
	return lead, nil
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, leadID int64, status string) (Lead, error) {
	return s.UpdateLead(ctx, leadID, LeadPatch{Status: &status})
}

func (s *PostgresStore) DeleteLead(ctx context.Context, leadID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE id=$1`, leadID)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete lead rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListStages(ctx context.Context) ([]Stage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, color, position
		FROM kanban_boards
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	items := make([]Stage, 0)
	for rows.Next() {
		var item Stage
		if err := rows.Scan(&item.ID, &item.Title, &item.Color, &item.Position); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateStage(ctx context.Context, title, color string) (Stage, error) {
	var item Stage
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO kanban_boards (id, title, color, position)
		VALUES ($1, $2, $3, (SELECT COALESCE(MAX(position) + 1, 0) FROM kanban_boards))
		RETURNING id, title, color, position
	`, uuid.NewString(), title, color).Scan(&item.ID, &item.Title, &item.Color, &item.Position)
	if err != nil {
		return Stage{}, fmt.Errorf("insert stage: %w", err)
	}
	return item, nil
}

// InsertStage writes a stage with a caller-chosen id and position. Used for
// seeding the default pipeline.
func (s *PostgresStore) InsertStage(ctx context.Context, stage Stage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kanban_boards (id, title, color, position)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, stage.ID, stage.Title, stage.Color, stage.Position)
	if err != nil {
		return fmt.Errorf("insert stage: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateStage(ctx context.Context, stageID string, title, color *string) (Stage, error) {
	sets := make([]string, 0, 2)
	args := []any{stageID}
	next := 2
	if title != nil {
		sets = append(sets, fmt.Sprintf("title=$%d", next))
		args = append(args, *title)
		next++
	}
	if color != nil {
		sets = append(sets, fmt.Sprintf("color=$%d", next))
		args = append(args, *color)
		next++
	}
	if len(sets) == 0 {
		return s.getStage(ctx, stageID)
	}

	var item Stage
	err := s.db.QueryRowContext(ctx, `
		UPDATE kanban_boards
		SET `+strings.Join(sets, ", ")+`
		WHERE id=$1
		RETURNING id, title, color, position
	`, args...).Scan(&item.ID, &item.Title, &item.Color, &item.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return Stage{}, err
	}
	if err != nil {
		return Stage{}, fmt.Errorf("update stage: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) getStage(ctx context.Context, stageID string) (Stage, error) {
	var item Stage
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, color, position FROM kanban_boards WHERE id=$1
	`, stageID).Scan(&item.ID, &item.Title, &item.Color, &item.Position)
	if err != nil {
		return Stage{}, err
	}
	return item, nil
}

// DeleteStage removes a stage and repoints its leads at the fallback stage
// in the same transaction, so no persisted status is left referencing a
// deleted stage.
func (s *PostgresStore) DeleteStage(ctx context.Context, stageID, fallbackStageID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete stage tx: %w", err)
	}

	if s.caps.LeadStatusColumn {
		if _, err := tx.ExecContext(ctx, `
			UPDATE leads SET status=$2, updated_at=NOW() WHERE status=$1
		`, stageID, fallbackStageID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("reassign stage leads: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM kanban_boards WHERE id=$1`, stageID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete stage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete stage rows: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete stage: %w", err)
	}
	return nil
}

// UpdatePositions rewrites stage positions in one transaction so a reorder
// is never half applied.
func (s *PostgresStore) UpdatePositions(ctx context.Context, positions []StagePosition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin positions tx: %w", err)
	}
	for _, p := range positions {
		if _, err := tx.ExecContext(ctx, `
			UPDATE kanban_boards SET position=$2 WHERE id=$1
		`, p.ID, p.Position); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("update position for stage %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit positions: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateHistoryEntry(ctx context.Context, entry HistoryEntry) (HistoryEntry, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO kanban_card_history (lead_id, from_column, to_column, from_column_title, to_column_title, notes)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))
		RETURNING id, created_at
	`, entry.LeadID, entry.FromColumn, entry.ToColumn, entry.FromColumnTitle, entry.ToColumnTitle, entry.Notes).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("insert history entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, leadID int64) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lead_id, from_column, to_column,
			COALESCE(from_column_title, ''), COALESCE(to_column_title, ''),
			COALESCE(notes, ''), created_at
		FROM kanban_card_history
		WHERE lead_id=$1
		ORDER BY created_at DESC
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	items := make([]HistoryEntry, 0)
	for rows.Next() {
		var item HistoryEntry
		if err := rows.Scan(
			&item.ID,
			&item.LeadID,
			&item.FromColumn,
			&item.ToColumn,
			&item.FromColumnTitle,
			&item.ToColumnTitle,
			&item.Notes,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreatePropertyChange(ctx context.Context, change PropertyChange) (PropertyChange, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO lead_property_history (lead_id, property_name, from_value, to_value, notes)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))
		RETURNING id, created_at
	`, change.LeadID, change.PropertyName, change.FromValue, change.ToValue, change.Notes).
		Scan(&change.ID, &change.CreatedAt)
	if err != nil {
		return PropertyChange{}, fmt.Errorf("insert property change: %w", err)
	}
	return change, nil
}

func (s *PostgresStore) ListPropertyChanges(ctx context.Context, leadID int64) ([]PropertyChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lead_id, property_name,
			COALESCE(from_value, ''), COALESCE(to_value, ''), COALESCE(notes, ''), created_at
		FROM lead_property_history
		WHERE lead_id=$1
		ORDER BY created_at DESC
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list property changes: %w", err)
	}
	defer rows.Close()

	items := make([]PropertyChange, 0)
	for rows.Next() {
		var item PropertyChange
		if err := rows.Scan(
			&item.ID,
			&item.LeadID,
			&item.PropertyName,
			&item.FromValue,
			&item.ToValue,
			&item.Notes,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan property change: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate property changes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at, updated_at
		FROM users
		WHERE email=$1
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at, updated_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, user.ID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.password_hash, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).
		Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
