package correct

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/constants"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/cache"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/entity"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/gate"
)

func chatReply(t *testing.T, content string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	require.NoError(t, err)
	return b
}

func coreRequest() Request {
	return Request{
		Batch: gate.Batch{
			Name:   constants.BatchCore,
			Fields: []string{constants.FieldInvoiceNumber, constants.FieldDueDate, constants.FieldTotalAmount},
		},
		Current: map[string]entity.FieldValue{
			constants.FieldInvoiceNumber: {Value: "INV-l", Confidence: entity.Conf(0.4)},
		},
		TextContext: "INVOICE INV-1 ... TOTAL 99.50",
		Fingerprint: "fp-1",
	}
}

func fastRetry() common.RetryOptions {
	return common.RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestCorrectAcceptsValidatesAndNulls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// invoice_number corrected, due_date explicitly nulled, total negative
		// (rejected), plus an out-of-batch key that must be dropped.
		_, _ = w.Write(chatReply(t, `{"invoice_number":"INV-1","due_date":null,"total_amount":"-3.00","bogus_field":"x"}`))
	}))
	defer srv.Close()

	c := NewTextClient(Config{BaseURL: srv.URL, APIKey: "k", Model: "m", Retry: fastRetry()}, nil, nil)
	got, err := c.Correct(context.Background(), coreRequest())
	require.NoError(t, err)

	require.Contains(t, got, constants.FieldInvoiceNumber)
	assert.Equal(t, "INV-1", got[constants.FieldInvoiceNumber].Value)

	require.Contains(t, got, constants.FieldDueDate)
	assert.True(t, got[constants.FieldDueDate].Null)

	assert.NotContains(t, got, constants.FieldTotalAmount, "rejected suggestion is discarded")
	assert.NotContains(t, got, "bogus_field")
}

func TestCorrectCacheShortCircuit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write(chatReply(t, `{"invoice_number":"INV-1"}`))
	}))
	defer srv.Close()

	rc := cache.New(time.Minute, 8)
	c := NewTextClient(Config{BaseURL: srv.URL, APIKey: "k", Model: "m", Retry: fastRetry()}, rc, nil)

	_, err := c.Correct(context.Background(), coreRequest())
	require.NoError(t, err)
	_, err = c.Correct(context.Background(), coreRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "identical request within TTL must not call the service again")

	// A different snapshot is a fresh miss.
	req := coreRequest()
	req.Current[constants.FieldInvoiceNumber] = entity.FieldValue{Value: "other"}
	_, err = c.Correct(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCorrectAuthErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewTextClient(Config{BaseURL: srv.URL, APIKey: "bad", Model: "m", Retry: fastRetry()}, nil, nil)
	_, err := c.Correct(context.Background(), coreRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrAuthOrRequest))
	assert.Equal(t, int32(1), calls.Load(), "auth errors are batch-local failures, never retried")
}

func TestCorrectRateLimitedRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write(chatReply(t, `{"invoice_number":"INV-1"}`))
	}))
	defer srv.Close()

	c := NewTextClient(Config{BaseURL: srv.URL, APIKey: "k", Model: "m", Retry: fastRetry()}, nil, nil)
	got, err := c.Correct(context.Background(), coreRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, got, constants.FieldInvoiceNumber)
}

func TestCorrectTransientExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewTextClient(Config{BaseURL: srv.URL, APIKey: "k", Model: "m", Retry: fastRetry()}, nil, nil)
	_, err := c.Correct(context.Background(), coreRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrTransientService))
	assert.Equal(t, int32(3), calls.Load())
}

func TestCorrectMalformedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(chatReply(t, "I cannot read this document."))
	}))
	defer srv.Close()

	c := NewTextClient(Config{BaseURL: srv.URL, APIKey: "k", Model: "m", Retry: fastRetry()}, nil, nil)
	_, err := c.Correct(context.Background(), coreRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrMalformedReply))
}

func TestClassifyStatusRetryAfterHint(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "7")
	err := classifyStatus(http.StatusTooManyRequests, h)
	require.Error(t, err)
	hint, ok := common.RetryHint(err)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, hint)
}
