package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
)

// ClientConfig configures the OCR collaborator client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Retry   common.RetryOptions
}

// Client talks to the OCR collaborator service over HTTP. It implements both
// OCRExtractor and PageRenderer. Only the reply shape is contractual; the
// collaborator's internals are its own business.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type extractReply struct {
	Fields        map[string]any `json:"fields"`
	Text          string         `json:"text"`
	FirstPageText string         `json:"first_page_text"`
	Pages         int            `json:"pages"`
}

// Extract submits the document for OCR and decodes the collaborator's
// loosely-shaped field map into the tagged union.
func (c *Client) Extract(ctx context.Context, document []byte) (OCRResult, error) {
	var reply extractReply
	err := common.WithRetry(ctx, c.logger, func() error {
		return c.post(ctx, "/v1/extract", map[string]any{
			"document_base64": base64.StdEncoding.EncodeToString(document),
		}, &reply)
	}, c.cfg.Retry)
	if err != nil {
		return OCRResult{}, err
	}

	fields := make(RawFieldMap, len(reply.Fields))
	for name, v := range reply.Fields {
		fields[name] = decodeRawField(v)
	}
	return OCRResult{
		Fields:        fields,
		Text:          reply.Text,
		FirstPageText: reply.FirstPageText,
		Pages:         reply.Pages,
	}, nil
}

type renderReply struct {
	Images []struct {
		DataBase64 string `json:"data_base64"`
		MIME       string `json:"mime"`
		Page       int    `json:"page"`
	} `json:"images"`
}

// RenderPages asks the collaborator for page images. Any failure is a render
// failure; the caller degrades to the text path.
func (c *Client) RenderPages(ctx context.Context, document []byte, pages []int) ([]PageImage, error) {
	var reply renderReply
	err := common.WithRetry(ctx, c.logger, func() error {
		return c.post(ctx, "/v1/render", map[string]any{
			"document_base64": base64.StdEncoding.EncodeToString(document),
			"pages":           pages,
		}, &reply)
	}, c.cfg.Retry)
	if err != nil {
		return nil, common.WrapError(common.ErrRenderFailure, err.Error())
	}

	images := make([]PageImage, 0, len(reply.Images))
	for _, img := range reply.Images {
		data, err := base64.StdEncoding.DecodeString(img.DataBase64)
		if err != nil {
			return nil, common.WrapError(common.ErrRenderFailure, "bad image encoding")
		}
		mime := img.MIME
		if mime == "" {
			mime = "image/png"
		}
		images = append(images, PageImage{Data: data, MIME: mime, Page: img.Page})
	}
	return images, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return common.WrapError(common.ErrAuthOrRequest, "encode request")
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return common.WrapError(common.ErrAuthOrRequest, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return common.WrapError(common.ErrTransientService, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return common.WrapError(common.ErrTransientService, err.Error())
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 500:
		return fmt.Errorf("ocr status %d: %w", resp.StatusCode, common.ErrTransientService)
	default:
		return fmt.Errorf("ocr status %d: %w", resp.StatusCode, common.ErrAuthOrRequest)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return common.WrapError(common.ErrMalformedReply, "decode ocr reply")
	}
	return nil
}

// decodeRawField maps the collaborator's JSON value onto the tagged union.
// Scalars with a {value, confidence} envelope keep their confidence; anything
// unrecognized degrades to a string.
func decodeRawField(v any) RawField {
	switch t := v.(type) {
	case string:
		return RawField{Kind: KindString, Str: t}
	case float64:
		return RawField{Kind: KindString, Str: strconv.FormatFloat(t, 'f', -1, 64)}
	case bool:
		return RawField{Kind: KindString, Str: strconv.FormatBool(t)}
	case map[string]any:
		if rawVal, ok := t["value"]; ok {
			scalar := RawScalar{Value: stringify(rawVal)}
			if cf, ok := t["confidence"].(float64); ok {
				scalar.Confidence = &cf
			}
			return RawField{Kind: KindScalar, Scalar: scalar}
		}
		m := make(map[string]RawField, len(t))
		for k, sub := range t {
			m[k] = decodeRawField(sub)
		}
		return RawField{Kind: KindMap, Map: m}
	case []any:
		list := make([]map[string]string, 0, len(t))
		for _, item := range t {
			entry, ok := item.(map[string]any)
			if !ok {
				list = append(list, map[string]string{"description": stringify(item)})
				continue
			}
			row := make(map[string]string, len(entry))
			for k, sub := range entry {
				row[k] = stringify(sub)
			}
			list = append(list, row)
		}
		return RawField{Kind: KindList, List: list}
	default:
		return RawField{Kind: KindString, Str: stringify(v)}
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
