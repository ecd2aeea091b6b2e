package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// Capabilities describes optional schema features, resolved once at startup
// and passed into the store instead of being discovered mid-request.
type Capabilities struct {
	LeadStatusColumn   bool
	LeadPriorityColumn bool
}

// ResolveCapabilities probes the leads table for the status and priority
// columns and attempts the additive ALTER when one is missing. Databases
// predating those columns (or without DDL rights) keep working; the store
// just skips the missing column.
func ResolveCapabilities(ctx context.Context, db *sql.DB) (Capabilities, error) {
	caps := Capabilities{}

	for _, probe := range []struct {
		column string
		ddl    string
		flag   *bool
	}{
		{"status", `ALTER TABLE leads ADD COLUMN IF NOT EXISTS status TEXT NOT NULL DEFAULT ''`, &caps.LeadStatusColumn},
		{"priority", `ALTER TABLE leads ADD COLUMN IF NOT EXISTS priority TEXT NOT NULL DEFAULT ''`, &caps.LeadPriorityColumn},
	} {
		exists, err := columnExists(ctx, db, "leads", probe.column)
		if err != nil {
			return Capabilities{}, err
		}
		if !exists {
			if _, ddlErr := db.ExecContext(ctx, probe.ddl); ddlErr != nil {
				log.Printf("store: cannot add leads.%s column, continuing without it: %v", probe.column, ddlErr)
				continue
			}
			exists = true
		}
		*probe.flag = exists
	}

	return caps, nil
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM information_schema.columns
			WHERE table_name=$1 AND column_name=$2
		)
	`, table, column).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe column %s.%s: %w", table, column, err)
	}
	return exists, nil
}
