package orchestrate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/constants"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/entity"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/extract"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/normalize"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/store"
)

// Processor runs the full extraction pass for one record: claim, OCR,
// normalize, orchestrate corrections, commit. The claim always precedes any
// external call, so two passes can never interleave on the same record.
type Processor struct {
	store  *store.Store
	ocr    extract.OCRExtractor
	norm   *normalize.Normalizer
	orch   *Orchestrator
	logger *slog.Logger
}

func NewProcessor(st *store.Store, ocr extract.OCRExtractor, norm *normalize.Normalizer, orch *Orchestrator, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: st, ocr: ocr, norm: norm, orch: orch, logger: logger}
}

// Process claims the record and runs one extraction pass over its stored
// document. On unrecoverable failure the record is committed FAILED; success
// commits the merged fields and transitions to EXTRACTED. Either commit is
// version-guarded, so a reset raced in during the pass makes the commit lose
// cleanly.
func (p *Processor) Process(ctx context.Context, id uuid.UUID) error {
	start := time.Now()

	if err := p.store.Claim(ctx, id); err != nil {
		return err
	}
	rec, err := p.store.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	p.logger.Info("process.start", "record_id", id, "version", rec.ReviewVersion)

	_, document, err := p.store.GetDocument(ctx, id)
	if err != nil {
		return p.fail(ctx, rec, common.WrapError(err, "load document"))
	}

	ocr, err := p.ocr.Extract(ctx, document)
	if err != nil {
		return p.fail(ctx, rec, common.WrapError(err, "ocr extraction"))
	}

	// First pass: normalized OCR output replaces whatever a previous failed
	// attempt left behind.
	working := *rec
	working.Fields = p.norm.Normalize(ocr.Fields)

	res, err := p.orch.Run(ctx, &working, ocr, document)
	if err != nil {
		return p.fail(ctx, rec, err)
	}
	if res.AllFailed() {
		return p.fail(ctx, rec, errors.New("every correction batch failed"))
	}

	merged := make(map[string]entity.FieldValue, len(working.Fields)+len(res.Updates))
	for k, v := range working.Fields {
		merged[k] = v
	}
	for k, v := range res.Updates {
		merged[k] = v
	}

	committed, err := p.store.CommitPatch(ctx, id, rec.ReviewVersion, store.Commit{
		Patch:      entity.Patch{Set: merged},
		ToState:    constants.StateExtracted,
		FromStates: []constants.ProcessingState{constants.StateProcessing},
	})
	if err != nil {
		p.logger.Error("process.commit_failed", "record_id", id, "error", err)
		return err
	}

	p.logger.Info("process.done",
		"record_id", id,
		"state", committed.State,
		"version", committed.ReviewVersion,
		"overall_confidence", committed.OverallConfidence,
		"failed_batches", res.FailedBatches,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// fail commits the FAILED transition and returns the original cause. A stale
// guard on the failure commit is reported but does not mask the cause.
// The pass context may already be expired (worker timeout), so the transition
// runs under a fresh deadline; otherwise the record would be stuck in
// PROCESSING with no legal way out.
func (p *Processor) fail(ctx context.Context, rec *entity.Record, cause error) error {
	p.logger.Error("process.failed", "record_id", rec.ID, "error", cause)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	_, err := p.store.CommitPatch(ctx, rec.ID, rec.ReviewVersion, store.Commit{
		ToState:    constants.StateFailed,
		FromStates: []constants.ProcessingState{constants.StateProcessing},
	})
	if err != nil {
		p.logger.Error("process.fail_commit_lost", "record_id", rec.ID, "error", err)
	}
	return cause
}
