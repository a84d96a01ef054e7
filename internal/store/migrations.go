package store

import (
	"context"
	"fmt"
)

// migrations returns the schema statements. Type names are chosen to carry
// the right affinity on SQLite and the exact types on Postgres; the binary
// column is the one per-dialect divergence.
func (s *Store) migrations() []string {
	binary := "BLOB"
	if s.dialect == "postgres" {
		binary = "BYTEA"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS invoice_records (
			id                 TEXT PRIMARY KEY,
			fingerprint        TEXT NOT NULL DEFAULT '',
			fields             TEXT NOT NULL DEFAULT '{}',
			processing_state   TEXT NOT NULL DEFAULT 'PENDING',
			review_version     BIGINT NOT NULL DEFAULT 0,
			overall_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			credit_note        BOOLEAN NOT NULL DEFAULT FALSE,
			created_at         TIMESTAMP NOT NULL,
			updated_at         TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invoice_records_state ON invoice_records (processing_state)`,
		`CREATE INDEX IF NOT EXISTS idx_invoice_records_fingerprint ON invoice_records (fingerprint)`,
		`CREATE TABLE IF NOT EXISTS invoice_documents (
			record_id TEXT PRIMARY KEY,
			mime      TEXT NOT NULL DEFAULT 'application/pdf',
			content   ` + binary + ` NOT NULL
		)`,
	}
}

// Migrate creates the record tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := s.migrations()
	for i, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	s.logger.Info("store.migrated", "statements", len(stmts))
	return nil
}
