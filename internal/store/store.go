package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/constants"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/entity"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/score"
)

// Store owns every write to invoice records. State changes and field commits
// go through single guarded UPDATE statements whose WHERE clause carries the
// version or state precondition; a zero row count is how a lost race surfaces.
type Store struct {
	db      *sql.DB
	dialect string
	logger  *slog.Logger
	now     func() time.Time
}

// New wraps an open database handle. dialect is "postgres" or "sqlite" and
// controls placeholder style only.
func New(db *sql.DB, dialect string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, dialect: dialect, logger: logger, now: time.Now}
}

// rebind rewrites ? placeholders to $1..$n for Postgres. Queries are written
// in ? style throughout.
func (s *Store) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// statesIn builds an "processing_state IN (?,?)" fragment plus its args.
func statesIn(states []constants.ProcessingState) (string, []any) {
	ph := make([]string, len(states))
	args := make([]any, len(states))
	for i, st := range states {
		ph[i] = "?"
		args[i] = string(st)
	}
	return "processing_state IN (" + strings.Join(ph, ",") + ")", args
}

// CreateRecord inserts a new PENDING record at review version 0.
func (s *Store) CreateRecord(ctx context.Context, fingerprint string, creditNote bool) (*entity.Record, error) {
	now := s.now().UTC()
	rec := &entity.Record{
		ID:          uuid.New(),
		Fingerprint: fingerprint,
		Fields:      map[string]entity.FieldValue{},
		State:       constants.StatePending,
		CreditNote:  creditNote,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q := s.rebind(`INSERT INTO invoice_records
		(id, fingerprint, fields, processing_state, review_version, overall_confidence, credit_note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		rec.ID.String(), rec.Fingerprint, "{}", string(rec.State),
		rec.ReviewVersion, rec.OverallConfidence, rec.CreditNote, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}
	s.logger.Info("store.record_created", "record_id", rec.ID, "fingerprint", fingerprint)
	return rec, nil
}

const selectColumns = `id, fingerprint, fields, processing_state, review_version, overall_confidence, credit_note, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*entity.Record, error) {
	var (
		rec       entity.Record
		idRaw     string
		fieldsRaw string
		stateRaw  string
	)
	err := row.Scan(&idRaw, &rec.Fingerprint, &fieldsRaw, &stateRaw,
		&rec.ReviewVersion, &rec.OverallConfidence, &rec.CreditNote,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	rec.ID, err = uuid.Parse(idRaw)
	if err != nil {
		return nil, fmt.Errorf("parse record id: %w", err)
	}
	rec.State = constants.ProcessingState(stateRaw)
	if err := json.Unmarshal([]byte(fieldsRaw), &rec.Fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if rec.Fields == nil {
		rec.Fields = map[string]entity.FieldValue{}
	}
	return &rec, nil
}

// GetRecord loads one record by id.
func (s *Store) GetRecord(ctx context.Context, id uuid.UUID) (*entity.Record, error) {
	q := s.rebind(`SELECT ` + selectColumns + ` FROM invoice_records WHERE id = ?`)
	return scanRecord(s.db.QueryRowContext(ctx, q, id.String()))
}

// GetState reads the current state and review version without decoding fields.
func (s *Store) GetState(ctx context.Context, id uuid.UUID) (constants.ProcessingState, int64, error) {
	q := s.rebind(`SELECT processing_state, review_version FROM invoice_records WHERE id = ?`)
	var (
		stateRaw string
		version  int64
	)
	err := s.db.QueryRowContext(ctx, q, id.String()).Scan(&stateRaw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, common.ErrNotFound
	}
	if err != nil {
		return "", 0, fmt.Errorf("read state: %w", err)
	}
	return constants.ProcessingState(stateRaw), version, nil
}

// ListByState returns up to limit record ids currently in the given state,
// oldest first. Used to re-enqueue pending work on startup.
func (s *Store) ListByState(ctx context.Context, state constants.ProcessingState, limit int) ([]uuid.UUID, error) {
	q := s.rebind(`SELECT id FROM invoice_records WHERE processing_state = ? ORDER BY created_at ASC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, q, string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("list by state: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse record id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Claim transitions a record into PROCESSING, guarded on the claimable states.
// Exactly one of N concurrent claims succeeds; the rest get ErrClaimConflict.
// Claiming does not bump the review version: a claim is ownership, not a
// field write.
func (s *Store) Claim(ctx context.Context, id uuid.UUID) error {
	frag, stateArgs := statesIn(constants.ClaimFromStates)
	q := s.rebind(`UPDATE invoice_records SET processing_state = ?, updated_at = ? WHERE id = ? AND ` + frag)
	args := append([]any{string(constants.StateProcessing), s.now().UTC(), id.String()}, stateArgs...)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("claim record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim record: %w", err)
	}
	if n == 1 {
		s.logger.Info("store.record_claimed", "record_id", id)
		return nil
	}

	state, _, err := s.GetState(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("record in state %s: %w", state, common.ErrClaimConflict)
}

// Commit is a guarded write-back of fields, optionally combined with a state
// transition. The review version is incremented by every successful commit.
type Commit struct {
	Patch entity.Patch
	// OverallConfidence overrides the recomputed aggregate when non-nil.
	OverallConfidence *float64
	// ToState, when set, moves processing_state in the same statement.
	// FromStates guards which states the transition may leave.
	ToState    constants.ProcessingState
	FromStates []constants.ProcessingState
}

// CommitPatch applies a commit at the expected review version. The merged
// field map is computed from a fresh read, but the UPDATE itself re-checks the
// version, so a concurrent commit between read and write loses cleanly: zero
// rows affected, reported as StaleWriteError with the winner's version.
func (s *Store) CommitPatch(ctx context.Context, id uuid.UUID, expectedVersion int64, c Commit) (*entity.Record, error) {
	if stripped := c.Patch.SanitizeSet(); len(stripped) > 0 {
		s.logger.Warn("store.commit_stripped_fields", "record_id", id, "fields", stripped)
	}
	if bad := c.Patch.ValidateClear(); bad != "" {
		return nil, fmt.Errorf("field %q: %w", bad, common.ErrClearNotAllowed)
	}
	if c.ToState != "" {
		if len(c.FromStates) == 0 {
			return nil, fmt.Errorf("transition to %s without from states: %w", c.ToState, common.ErrInvalidState)
		}
		for _, from := range c.FromStates {
			if !constants.CanTransition(from, c.ToState) {
				return nil, fmt.Errorf("transition %s -> %s: %w", from, c.ToState, common.ErrInvalidState)
			}
		}
	}

	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.ReviewVersion != expectedVersion {
		return nil, &common.StaleWriteError{CurrentVersion: rec.ReviewVersion}
	}

	merged := make(map[string]entity.FieldValue, len(rec.Fields)+len(c.Patch.Set))
	for k, v := range rec.Fields {
		merged[k] = v
	}
	for k, v := range c.Patch.Set {
		merged[k] = v
	}
	for _, k := range c.Patch.Clear {
		delete(merged, k)
	}

	overall := score.Overall(merged)
	if c.OverallConfidence != nil {
		overall = *c.OverallConfidence
	}

	fieldsJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}

	set := `fields = ?, overall_confidence = ?, review_version = review_version + 1, updated_at = ?`
	args := []any{string(fieldsJSON), overall, s.now().UTC()}
	if c.ToState != "" {
		set += `, processing_state = ?`
		args = append(args, string(c.ToState))
	}
	where := ` WHERE id = ? AND review_version = ?`
	args = append(args, id.String(), expectedVersion)
	if c.ToState != "" {
		frag, stateArgs := statesIn(c.FromStates)
		where += ` AND ` + frag
		args = append(args, stateArgs...)
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE invoice_records SET `+set+where), args...)
	if err != nil {
		return nil, fmt.Errorf("commit record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("commit record: %w", err)
	}
	if n == 0 {
		state, version, gerr := s.GetState(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		if version != expectedVersion {
			return nil, &common.StaleWriteError{CurrentVersion: version}
		}
		return nil, fmt.Errorf("record in state %s: %w", state, common.ErrInvalidState)
	}

	s.logger.Info("store.record_committed",
		"record_id", id, "version", expectedVersion+1, "state", c.ToState,
		"set", len(c.Patch.Set), "cleared", len(c.Patch.Clear))
	return s.GetRecord(ctx, id)
}

// SaveDocument stores the uploaded document bytes for later processing.
// An existing document for the record is replaced.
func (s *Store) SaveDocument(ctx context.Context, id uuid.UUID, mime string, content []byte) error {
	del := s.rebind(`DELETE FROM invoice_documents WHERE record_id = ?`)
	if _, err := s.db.ExecContext(ctx, del, id.String()); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	q := s.rebind(`INSERT INTO invoice_documents (record_id, mime, content) VALUES (?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, id.String(), mime, content); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// GetDocument loads the stored document bytes for a record.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (mime string, content []byte, err error) {
	q := s.rebind(`SELECT mime, content FROM invoice_documents WHERE record_id = ?`)
	err = s.db.QueryRowContext(ctx, q, id.String()).Scan(&mime, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, common.ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("load document: %w", err)
	}
	return mime, content, nil
}

// ResetForReprocessing clears all fields and returns the record to PENDING,
// bumping the review version so any in-flight commit against the old version
// fails its guard. PROCESSING records cannot be reset.
func (s *Store) ResetForReprocessing(ctx context.Context, id uuid.UUID) error {
	frag, stateArgs := statesIn(constants.ResetFromStates)
	q := s.rebind(`UPDATE invoice_records
		SET fields = '{}', overall_confidence = 0, processing_state = ?,
		    review_version = review_version + 1, updated_at = ?
		WHERE id = ? AND ` + frag)
	args := append([]any{string(constants.StatePending), s.now().UTC(), id.String()}, stateArgs...)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("reset record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reset record: %w", err)
	}
	if n == 0 {
		state, _, gerr := s.GetState(ctx, id)
		if gerr != nil {
			return gerr
		}
		return fmt.Errorf("record in state %s: %w", state, common.ErrInvalidState)
	}
	s.logger.Info("store.record_reset", "record_id", id)
	return nil
}
