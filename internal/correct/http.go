package correct

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
)

// sendJSON posts a JSON body and returns the raw response. Failures are
// classified into the taxonomy here, at the boundary, so callers branch on
// sentinel values instead of transport errors.
func sendJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}

	reqID := uuid.New().String()
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		return nil, common.WrapError(common.ErrAuthOrRequest, fmt.Sprintf("encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, common.WrapError(common.ErrAuthOrRequest, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logger.Info("correct.http.request", "req_id", reqID, "url", url, "content_length", len(bs))

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("correct.http.send_error", "req_id", reqID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, common.WrapError(common.ErrTransientService, err.Error())
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warn("correct.http.body_close_error", "req_id", reqID, "error", cerr)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)

	logger.Info("correct.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if err := classifyStatus(resp.StatusCode, resp.Header); err != nil {
		return raw, err
	}
	return raw, nil
}

// classifyStatus maps an HTTP status onto the failure taxonomy. 429 honors a
// server-supplied Retry-After hint when one is present.
func classifyStatus(status int, header http.Header) error {
	switch {
	case status/100 == 2:
		return nil
	case status == http.StatusTooManyRequests:
		return &common.RateLimitError{RetryAfter: parseRetryAfter(header.Get("Retry-After"))}
	case status == http.StatusBadRequest,
		status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusNotFound,
		status == http.StatusUnprocessableEntity:
		return common.WrapError(common.ErrAuthOrRequest, fmt.Sprintf("status %d", status))
	case status/100 == 5:
		return common.WrapError(common.ErrTransientService, fmt.Sprintf("status %d", status))
	default:
		return common.WrapError(common.ErrTransientService, fmt.Sprintf("unexpected status %d", status))
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
