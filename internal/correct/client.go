package correct

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/cache"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/entity"
)

// Config for a correction client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Retry   common.RetryOptions
}

// Client talks to an OpenAI-style chat/completions endpoint. The same
// implementation serves text and vision; the vision variant attaches rendered
// page images to the user message.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      *cache.ResponseCache
	logger     *slog.Logger
	vision     bool
}

// NewTextClient builds the text correction client.
func NewTextClient(cfg Config, c *cache.ResponseCache, logger *slog.Logger) *Client {
	return newClient(cfg, c, logger, false)
}

// NewVisionClient builds the vision correction client.
func NewVisionClient(cfg Config, c *cache.ResponseCache, logger *slog.Logger) *Client {
	return newClient(cfg, c, logger, true)
}

func newClient(cfg Config, c *cache.ResponseCache, logger *slog.Logger, vision bool) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      c,
		logger:     logger,
		vision:     vision,
	}
}

// Deployment identifies the backing model/endpoint for cache keying.
func (c *Client) Deployment() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "#" + c.cfg.Model
}

// Correct sends one batch for correction. The cache is consulted first; on a
// hit the external call is skipped entirely. Every suggested value is
// validated before acceptance; a rejected suggestion is dropped so the field
// keeps its prior value.
func (c *Client) Correct(ctx context.Context, req Request) (map[string]Suggestion, error) {
	rid := uuid.New().String()
	start := time.Now()

	key := cache.Key{
		Deployment:  c.Deployment(),
		Fields:      req.Batch.Fields,
		Fingerprint: req.Fingerprint,
		Snapshot:    snapshotValues(req.Batch.Fields, req.Current),
	}

	content, hit := "", false
	if c.cache != nil {
		content, hit = c.cache.Get(key)
	}

	c.logger.Info("correct.batch.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"batch", req.Batch.Name,
		"fields", len(req.Batch.Fields),
		"vision", c.vision,
		"images", len(req.Images),
		"cache_hit", hit,
	)

	if !hit {
		var err error
		content, err = c.call(ctx, req)
		if err != nil {
			c.logger.Error("correct.batch.call_failed",
				"req_id", rid, "batch", req.Batch.Name, "error", err,
				"elapsed_ms", time.Since(start).Milliseconds())
			return nil, err
		}
		if c.cache != nil {
			c.cache.Set(key, content)
		}
	}

	suggestions, err := c.acceptReply(rid, req, content)
	if err != nil {
		return nil, err
	}

	c.logger.Info("correct.batch.ok",
		"req_id", rid,
		"batch", req.Batch.Name,
		"accepted", len(suggestions),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return suggestions, nil
}

// call performs the external request under the shared retry envelope.
func (c *Client) call(ctx context.Context, req Request) (string, error) {
	body := map[string]any{
		"model": c.cfg.Model,
		// Pinned to minimum creativity: same batch + context should yield the
		// same answer.
		"temperature":     0,
		"response_format": map[string]any{"type": "json_object"},
		"messages":        c.buildMessages(req),
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	var content string
	err := common.WithRetry(ctx, c.logger, func() error {
		raw, err := sendJSON(ctx, c.httpClient, endpoint, body, headers, c.logger)
		if err != nil {
			return err
		}
		var cc struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.Unmarshal(raw, &cc); err != nil {
			return common.WrapError(common.ErrMalformedReply, fmt.Sprintf("decode envelope: %v", err))
		}
		if len(cc.Choices) == 0 {
			return common.WrapError(common.ErrMalformedReply, "no choices in reply")
		}
		content = strings.TrimSpace(cc.Choices[0].Message.Content)
		return nil
	}, c.cfg.Retry)
	if err != nil {
		return "", err
	}
	return content, nil
}

// acceptReply parses, shape-checks, and field-validates a reply. Keys outside
// the batch are dropped before validation; per-field rejections are absorbed
// and logged, never a batch failure.
func (c *Client) acceptReply(rid string, req Request, content string) (map[string]Suggestion, error) {
	parsed, err := parseReplyObject(content)
	if err != nil {
		c.logger.Error("correct.batch.malformed_reply", "req_id", rid, "batch", req.Batch.Name, "error", err)
		return nil, err
	}

	inBatch := make(map[string]struct{}, len(req.Batch.Fields))
	for _, f := range req.Batch.Fields {
		inBatch[f] = struct{}{}
	}
	for k := range parsed {
		if _, ok := inBatch[k]; !ok {
			c.logger.Warn("correct.batch.out_of_batch_key_dropped", "req_id", rid, "key", k)
			delete(parsed, k)
		}
	}

	schema := buildBatchSchema(req.Batch.Fields)
	if b, err := json.Marshal(parsed); err == nil {
		if verr := validateAgainstSchema(schema, b); verr != nil {
			c.logger.Error("correct.batch.schema_rejected", "req_id", rid, "batch", req.Batch.Name, "error", verr)
			return nil, verr
		}
	}

	suggestions := make(map[string]Suggestion, len(parsed))
	for field, raw := range parsed {
		if raw == nil {
			suggestions[field] = Suggestion{Null: true}
			continue
		}
		value, verr := validateFieldValue(field, raw, req.Current, req.CreditNote)
		if verr != nil {
			// Absorbed per field: the record keeps its prior value.
			c.logger.Warn("correct.batch.suggestion_rejected",
				"req_id", rid, "field", field, "error", verr)
			continue
		}
		suggestions[field] = Suggestion{Value: value}
	}
	return suggestions, nil
}

func (c *Client) buildMessages(req Request) []map[string]any {
	sys := buildSystemPrompt(req)
	user := buildUserPrompt(req)

	if !c.vision || len(req.Images) == 0 {
		return []map[string]any{
			{"role": "system", "content": sys},
			{"role": "user", "content": user},
		}
	}

	parts := []map[string]any{{"type": "text", "text": user}}
	for _, img := range req.Images {
		parts = append(parts, map[string]any{
			"type": "image_url",
			"image_url": map[string]any{
				"url": "data:" + img.MIME + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}
	return []map[string]any{
		{"role": "system", "content": sys},
		{"role": "user", "content": parts},
	}
}

// snapshotValues builds the sanitized value snapshot for cache keying:
// current values for the batch fields, confidences stripped.
func snapshotValues(fields []string, current map[string]entity.FieldValue) map[string]any {
	snap := make(map[string]any, len(fields))
	for _, f := range fields {
		if fv, ok := current[f]; ok && !entity.IsBlank(fv.Value) {
			snap[f] = fv.Value
		}
	}
	return snap
}
