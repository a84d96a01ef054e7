// Package review is the human write-back surface: validating reviewed
// records, resetting them for reprocessing, and retrying failures. All writes
// go through the store's guarded primitives.
package review

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/constants"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/entity"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/extract"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/orchestrate"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/store"
)

// Enqueuer hands records to the background extraction workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, job orchestrate.Job) error
}

// Service implements the review operations behind the HTTP boundary.
type Service struct {
	store  *store.Store
	queue  Enqueuer
	logger *slog.Logger
}

func NewService(st *store.Store, queue Enqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, queue: queue, logger: logger}
}

// Create registers a new invoice document: a PENDING record at version 0 plus
// the stored document bytes keyed by content fingerprint.
func (s *Service) Create(ctx context.Context, document []byte, mime string, creditNote bool) (*entity.Record, error) {
	if len(document) == 0 {
		return nil, common.WrapError(common.ErrAuthOrRequest, "empty document")
	}
	fp := extract.Fingerprint(document)
	rec, err := s.store.CreateRecord(ctx, fp, creditNote)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveDocument(ctx, rec.ID, mime, document); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get loads one record.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*entity.Record, error) {
	return s.store.GetRecord(ctx, id)
}

// Process enqueues an extraction pass. The claim itself happens on the
// worker; this only rejects records that are visibly unclaimable so the
// caller gets a synchronous error instead of a silent no-op.
func (s *Service) Process(ctx context.Context, id uuid.UUID) error {
	state, _, err := s.store.GetState(ctx, id)
	if err != nil {
		return err
	}
	if !claimable(state) {
		return fmt.Errorf("record in state %s: %w", state, common.ErrClaimConflict)
	}
	return s.queue.Enqueue(ctx, orchestrate.Job{RecordID: id})
}

// Validate applies a reviewer's patch at the expected version and moves the
// record to VALIDATED. A lost version race surfaces as StaleWriteError with
// the current version; disallowed clear names surface as ErrClearNotAllowed.
func (s *Service) Validate(ctx context.Context, id uuid.UUID, expectedVersion int64, patch entity.Patch) (*entity.Record, error) {
	rec, err := s.store.CommitPatch(ctx, id, expectedVersion, store.Commit{
		Patch:      patch,
		ToState:    constants.StateValidated,
		FromStates: []constants.ProcessingState{constants.StateExtracted},
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("review.validated", "record_id", id, "version", rec.ReviewVersion)
	return rec, nil
}

// Reset clears the record for reprocessing.
func (s *Service) Reset(ctx context.Context, id uuid.UUID) error {
	return s.store.ResetForReprocessing(ctx, id)
}

// Retry re-enqueues a FAILED record.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) error {
	state, _, err := s.store.GetState(ctx, id)
	if err != nil {
		return err
	}
	if state != constants.StateFailed {
		return fmt.Errorf("record in state %s: %w", state, common.ErrInvalidState)
	}
	return s.queue.Enqueue(ctx, orchestrate.Job{RecordID: id})
}

func claimable(state constants.ProcessingState) bool {
	for _, st := range constants.ClaimFromStates {
		if st == state {
			return true
		}
	}
	return false
}
