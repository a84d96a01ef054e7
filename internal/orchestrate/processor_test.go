package orchestrate

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/constants"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/correct"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/entity"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/extract"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/gate"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/normalize"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/store"
)

type fakeOCR struct {
	fn func(ctx context.Context, document []byte) (extract.OCRResult, error)
}

func (f *fakeOCR) Extract(ctx context.Context, document []byte) (extract.OCRResult, error) {
	return f.fn(ctx, document)
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s := store.New(db, "sqlite", discardLogger())
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newTestProcessor(t *testing.T, st *store.Store, ocr extract.OCRExtractor, text correct.Corrector) *Processor {
	t.Helper()
	orch := New(testPipelineConfig(), gate.New(0.75), text, nil, nil, discardLogger())
	return NewProcessor(st, ocr, normalize.New(discardLogger()), orch, discardLogger())
}

func seedRecord(t *testing.T, st *store.Store) *entity.Record {
	t.Helper()
	ctx := context.Background()
	rec, err := st.CreateRecord(ctx, "fp", false)
	require.NoError(t, err)
	require.NoError(t, st.SaveDocument(ctx, rec.ID, "application/pdf", []byte("%PDF-1.7 test")))
	return rec
}

func TestProcessHappyPath(t *testing.T) {
	st := openTestStore(t)
	rec := seedRecord(t, st)
	ctx := context.Background()

	ocr := &fakeOCR{fn: func(_ context.Context, _ []byte) (extract.OCRResult, error) {
		return extract.OCRResult{
			Fields: extract.RawFieldMap{
				"invoice_number": {Kind: extract.KindScalar, Scalar: extract.RawScalar{Value: "INV-1", Confidence: entity.Conf(0.9)}},
				"total":          {Kind: extract.KindScalar, Scalar: extract.RawScalar{Value: "99.50", Confidence: entity.Conf(0.4)}},
			},
			Text:          "INVOICE INV-1 TOTAL 99.50",
			FirstPageText: "plenty of extractable text on the first page of this invoice",
			Pages:         1,
		}, nil
	}}
	text := &fakeCorrector{name: "text", fn: func(req correct.Request) (map[string]correct.Suggestion, error) {
		if req.Batch.Name == constants.BatchCore {
			return map[string]correct.Suggestion{
				constants.FieldTotalAmount: {Value: "99.50"},
			}, nil
		}
		return map[string]correct.Suggestion{}, nil
	}}

	p := newTestProcessor(t, st, ocr, text)
	require.NoError(t, p.Process(ctx, rec.ID))

	got, err := st.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StateExtracted, got.State)
	assert.Equal(t, int64(1), got.ReviewVersion)
	assert.Equal(t, "INV-1", got.Fields[constants.FieldInvoiceNumber].Value)
	// Confirmed against a weak prior: 0.75 + 0.05.
	assert.InDelta(t, 0.80, *got.Fields[constants.FieldTotalAmount].Confidence, 1e-9)
}

func TestProcessClaimPrecedesExternalCalls(t *testing.T) {
	st := openTestStore(t)
	rec := seedRecord(t, st)
	ctx := context.Background()

	ocr := &fakeOCR{fn: func(ctx context.Context, _ []byte) (extract.OCRResult, error) {
		state, _, err := st.GetState(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, constants.StateProcessing, state, "record must be claimed before OCR runs")
		return extract.OCRResult{FirstPageText: "enough text here to stay on the text path for sure, really"}, nil
	}}

	p := newTestProcessor(t, st, ocr, &fakeCorrector{name: "text"})
	require.NoError(t, p.Process(ctx, rec.ID))
}

func TestProcessSecondClaimConflicts(t *testing.T) {
	st := openTestStore(t)
	rec := seedRecord(t, st)
	ctx := context.Background()
	require.NoError(t, st.Claim(ctx, rec.ID))

	p := newTestProcessor(t, st, &fakeOCR{}, &fakeCorrector{name: "text"})
	err := p.Process(ctx, rec.ID)
	assert.True(t, errors.Is(err, common.ErrClaimConflict))
}

func TestProcessOCRFailureCommitsFailed(t *testing.T) {
	st := openTestStore(t)
	rec := seedRecord(t, st)
	ctx := context.Background()

	ocr := &fakeOCR{fn: func(_ context.Context, _ []byte) (extract.OCRResult, error) {
		return extract.OCRResult{}, errors.New("ocr backend unavailable")
	}}
	p := newTestProcessor(t, st, ocr, &fakeCorrector{name: "text"})

	err := p.Process(ctx, rec.ID)
	require.Error(t, err)

	state, version, err := st.GetState(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StateFailed, state)
	assert.Equal(t, int64(1), version, "the failure commit is itself an accepted write")
}

func TestProcessTimeoutStillCommitsFailed(t *testing.T) {
	st := openTestStore(t)
	rec := seedRecord(t, st)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The worker deadline expires mid-pass: OCR observes the dead context and
	// bails. The FAILED transition must still land so the record does not
	// wedge in PROCESSING, where neither reset nor claim can reach it.
	ocr := &fakeOCR{fn: func(ctx context.Context, _ []byte) (extract.OCRResult, error) {
		cancel()
		return extract.OCRResult{}, ctx.Err()
	}}
	p := newTestProcessor(t, st, ocr, &fakeCorrector{name: "text"})

	require.Error(t, p.Process(ctx, rec.ID))

	state, version, err := st.GetState(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StateFailed, state)
	assert.Equal(t, int64(1), version)
}

func TestProcessAllBatchesFailedCommitsFailed(t *testing.T) {
	st := openTestStore(t)
	rec := seedRecord(t, st)
	ctx := context.Background()

	ocr := &fakeOCR{fn: func(_ context.Context, _ []byte) (extract.OCRResult, error) {
		return extract.OCRResult{FirstPageText: "enough text to route this one through the text correction path"}, nil
	}}
	text := &fakeCorrector{name: "text", fn: func(correct.Request) (map[string]correct.Suggestion, error) {
		return nil, common.ErrTransientService
	}}
	p := newTestProcessor(t, st, ocr, text)

	err := p.Process(ctx, rec.ID)
	require.Error(t, err)

	state, _, err := st.GetState(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StateFailed, state)
}

func TestProcessFailedRecordRetryable(t *testing.T) {
	st := openTestStore(t)
	rec := seedRecord(t, st)
	ctx := context.Background()

	boom := &fakeOCR{fn: func(_ context.Context, _ []byte) (extract.OCRResult, error) {
		return extract.OCRResult{}, errors.New("transient ocr outage")
	}}
	p := newTestProcessor(t, st, boom, &fakeCorrector{name: "text"})
	require.Error(t, p.Process(ctx, rec.ID))

	ok := &fakeOCR{fn: func(_ context.Context, _ []byte) (extract.OCRResult, error) {
		return extract.OCRResult{
			Fields: extract.RawFieldMap{
				"invoice_number": {Kind: extract.KindScalar, Scalar: extract.RawScalar{Value: "INV-2", Confidence: entity.Conf(0.9)}},
			},
			FirstPageText: "enough text to keep the retry on the plain text correction path",
		}, nil
	}}
	p = newTestProcessor(t, st, ok, &fakeCorrector{name: "text"})
	require.NoError(t, p.Process(ctx, rec.ID))

	got, err := st.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StateExtracted, got.State)
	assert.Equal(t, "INV-2", got.Fields[constants.FieldInvoiceNumber].Value)
}
