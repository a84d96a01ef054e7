// Package orchestrate runs correction passes over extracted records: batch
// dispatch with bounded concurrency, vision-first routing for scanned
// documents, modality fallback, and merge of partial results.
package orchestrate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/correct"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/entity"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/extract"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/gate"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/score"
)

// Orchestrator drives one correction pass per record. Batch workers never
// touch shared state; each returns a typed result merged here.
type Orchestrator struct {
	cfg      common.PipelineConfig
	gate     *gate.Gate
	text     correct.Corrector
	vision   correct.Corrector
	renderer extract.PageRenderer
	logger   *slog.Logger
}

// New wires the orchestrator. text and vision may each be nil when the
// corresponding path is disabled; renderer may be nil when page rendering is
// unavailable, which disables the vision path for documents.
func New(cfg common.PipelineConfig, g *gate.Gate, text, vision correct.Corrector, renderer extract.PageRenderer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrentBatches <= 0 {
		cfg.MaxConcurrentBatches = 4
	}
	return &Orchestrator{
		cfg:      cfg,
		gate:     g,
		text:     text,
		vision:   vision,
		renderer: renderer,
		logger:   logger,
	}
}

// Result is the outcome of one pass. Updates holds accepted, scored field
// values; FailedBatches names batches whose fields keep their prior values.
type Result struct {
	Updates       map[string]entity.FieldValue
	BatchesTotal  int
	FailedBatches []string
}

// AllFailed reports whether correction was attempted and nothing succeeded.
func (r *Result) AllFailed() bool {
	return r.BatchesTotal > 0 && len(r.FailedBatches) == r.BatchesTotal
}

type batchResult struct {
	batch       gate.Batch
	suggestions map[string]correct.Suggestion
	err         error
}

// Scanned applies the scanned-document heuristic: a first page with less
// extractable text than the configured minimum routes the record
// vision-first.
func (o *Orchestrator) Scanned(ocr extract.OCRResult) bool {
	return len(strings.TrimSpace(ocr.FirstPageText)) < o.cfg.MinTextLength
}

// Run executes one correction pass over rec. The record itself is never
// mutated; accepted corrections come back in Result.Updates for the caller to
// commit. A non-nil error is returned only for whole-pass aborts such as
// context cancellation.
func (o *Orchestrator) Run(ctx context.Context, rec *entity.Record, ocr extract.OCRResult, document []byte) (*Result, error) {
	res := &Result{Updates: map[string]entity.FieldValue{}}

	batches := o.gate.Batches(rec)
	res.BatchesTotal = len(batches)
	if len(batches) == 0 {
		o.logger.Info("orchestrate.pass.no_low_confidence_fields", "record_id", rec.ID)
		return res, nil
	}

	visionFirst := o.Scanned(ocr) && o.vision != nil
	images := o.renderImages(ctx, rec, ocr, document, visionFirst)
	if len(images) == 0 {
		visionFirst = false
	}

	o.logger.Info("orchestrate.pass.start",
		"record_id", rec.ID,
		"batches", len(batches),
		"vision_first", visionFirst,
		"images", len(images),
	)

	results := make([]batchResult, len(batches))
	sem := make(chan struct{}, o.cfg.MaxConcurrentBatches)
	var wg sync.WaitGroup
	for i, b := range batches {
		wg.Add(1)
		go func(i int, b gate.Batch) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = o.runBatch(ctx, b, rec, ocr, images, visionFirst)
		}(i, b)
	}
	wg.Wait()

	for _, br := range results {
		if br.err != nil {
			res.FailedBatches = append(res.FailedBatches, br.batch.Name)
			o.logger.Warn("orchestrate.batch.failed",
				"record_id", rec.ID, "batch", br.batch.Name, "error", br.err)
			continue
		}
		o.mergeSuggestions(res.Updates, rec, br.suggestions)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.logger.Info("orchestrate.pass.done",
		"record_id", rec.ID,
		"updated_fields", len(res.Updates),
		"failed_batches", len(res.FailedBatches),
	)
	return res, nil
}

// renderImages renders page images when the vision path will be used. A
// render failure is classified and absorbed: the pass degrades to text.
func (o *Orchestrator) renderImages(ctx context.Context, rec *entity.Record, ocr extract.OCRResult, document []byte, wantVision bool) []extract.PageImage {
	if !wantVision || o.renderer == nil || len(document) == 0 {
		return nil
	}
	pages := extract.SelectPages(o.cfg.PageStrategy, ocr.Pages, o.cfg.MaxPages)
	images, err := o.renderer.RenderPages(ctx, document, pages)
	if err != nil {
		o.logger.Warn("orchestrate.render.failed",
			"record_id", rec.ID, "pages", pages,
			"error", fmt.Errorf("%v: %w", err, common.ErrRenderFailure))
		return nil
	}
	return images
}

// runBatch tries the batch against the preferred modality, falling back to
// the other one when the first fails after its own retries. Text-only batches
// never see the vision client. Context cancellation is not retried across
// modalities.
func (o *Orchestrator) runBatch(ctx context.Context, b gate.Batch, rec *entity.Record, ocr extract.OCRResult, images []extract.PageImage, visionFirst bool) batchResult {
	type attempt struct {
		c      correct.Corrector
		images []extract.PageImage
	}
	var attempts []attempt
	switch {
	case b.TextOnly:
		if o.text != nil {
			attempts = append(attempts, attempt{o.text, nil})
		}
	case visionFirst:
		if o.vision != nil {
			attempts = append(attempts, attempt{o.vision, images})
		}
		if o.text != nil {
			attempts = append(attempts, attempt{o.text, nil})
		}
	default:
		if o.text != nil {
			attempts = append(attempts, attempt{o.text, nil})
		}
		if o.vision != nil && len(images) > 0 {
			attempts = append(attempts, attempt{o.vision, images})
		}
	}
	if len(attempts) == 0 {
		return batchResult{batch: b, err: fmt.Errorf("no corrector available for batch %s", b.Name)}
	}

	var lastErr error
	for _, a := range attempts {
		req := correct.Request{
			Batch:       b,
			Current:     rec.Fields,
			TextContext: ocr.Text,
			Fingerprint: rec.Fingerprint,
			CreditNote:  rec.CreditNote,
			Images:      a.images,
		}
		suggestions, err := a.c.Correct(ctx, req)
		if err == nil {
			return batchResult{batch: b, suggestions: suggestions}
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
	}
	return batchResult{batch: b, err: lastErr}
}

// mergeSuggestions scores accepted suggestions against the record's prior
// values and writes them into updates.
func (o *Orchestrator) mergeSuggestions(updates map[string]entity.FieldValue, rec *entity.Record, suggestions map[string]correct.Suggestion) {
	for field, sug := range suggestions {
		prior, hadPrior := rec.Fields[field]
		var priorConf *float64
		if hadPrior {
			priorConf = prior.Confidence
		}

		var sctx score.Context
		var value any
		switch {
		case sug.Null:
			sctx = score.Nulled
			value = nil
		case !hadPrior || entity.IsBlank(prior.Value):
			sctx = score.BlankFill
			value = sug.Value
		case sameValue(prior.Value, sug.Value):
			sctx = score.Confirmed
			value = sug.Value
		default:
			sctx = score.Corrected
			value = sug.Value
		}

		conf := score.Field(sctx, field, priorConf)
		updates[field] = entity.FieldValue{Value: value, Confidence: entity.Conf(conf)}
	}
}

// sameValue compares a prior field value with a suggestion through their JSON
// forms, which handles maps and slices uniformly.
func sameValue(a, b any) bool {
	ab, aerr := json.Marshal(a)
	bb, berr := json.Marshal(b)
	if aerr != nil || berr != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
