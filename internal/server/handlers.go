// Package server is the HTTP review boundary: record creation, reads, and
// the reviewer write-back operations, mapped onto the error taxonomy with
// distinct status codes.
package server

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/entity"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/review"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/store"
)

const maxDocumentSize = 32 << 20 // 32 MiB

type Handler struct {
	svc    *review.Service
	db     *sql.DB
	logger *slog.Logger
}

func NewHandler(svc *review.Service, db *sql.DB, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, db: db, logger: logger}
}

// writeError maps taxonomy errors onto HTTP status codes. Stale writes carry
// the store's current version so the reviewer client can reload.
func writeError(c *gin.Context, err error) {
	var stale *common.StaleWriteError
	switch {
	case errors.As(err, &stale):
		c.JSON(http.StatusConflict, gin.H{
			"error":           "STALE_WRITE",
			"current_version": stale.CurrentVersion,
		})
	case errors.Is(err, common.ErrClearNotAllowed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "CLEAR_NOT_ALLOWED", "detail": err.Error()})
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND"})
	case errors.Is(err, common.ErrClaimConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "CLAIM_CONFLICT", "detail": err.Error()})
	case errors.Is(err, common.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "INVALID_STATE", "detail": err.Error()})
	case errors.Is(err, common.ErrAuthOrRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "detail": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL"})
	}
}

func recordID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "detail": "invalid record id"})
		return uuid.Nil, false
	}
	return id, true
}

type createRequest struct {
	DocumentBase64 string `json:"document_base64"`
	MIME           string `json:"mime"`
	CreditNote     bool   `json:"credit_note"`
}

// Create registers an invoice document, either as multipart form upload or a
// JSON body with base64 content.
func (h *Handler) Create(c *gin.Context) {
	document, mime, creditNote, err := readDocument(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "detail": err.Error()})
		return
	}

	rec, err := h.svc.Create(c.Request.Context(), document, mime, creditNote)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func readDocument(c *gin.Context) (document []byte, mime string, creditNote bool, err error) {
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			return nil, "", false, errors.New("no file provided")
		}
		defer file.Close()
		if header.Size > maxDocumentSize {
			return nil, "", false, errors.New("document too large")
		}
		document, err = io.ReadAll(io.LimitReader(file, maxDocumentSize))
		if err != nil {
			return nil, "", false, err
		}
		mime = header.Header.Get("Content-Type")
		if mime == "" || mime == "application/octet-stream" {
			mime = http.DetectContentType(document)
		}
		creditNote = c.PostForm("credit_note") == "true"
		return document, mime, creditNote, nil
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, "", false, err
	}
	document, err = base64.StdEncoding.DecodeString(req.DocumentBase64)
	if err != nil {
		return nil, "", false, errors.New("document_base64 is not valid base64")
	}
	mime = req.MIME
	if mime == "" {
		mime = "application/pdf"
	}
	return document, mime, req.CreditNote, nil
}

// Get returns one record.
func (h *Handler) Get(c *gin.Context) {
	id, ok := recordID(c)
	if !ok {
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Process enqueues an extraction pass.
func (h *Handler) Process(c *gin.Context) {
	id, ok := recordID(c)
	if !ok {
		return
	}
	if err := h.svc.Process(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

type validateRequest struct {
	ExpectedVersion int64                        `json:"expected_version"`
	Fields          map[string]entity.FieldValue `json:"fields"`
	ClearFields     []string                     `json:"clear_fields"`
}

// Validate applies a reviewer patch at the expected version.
func (h *Handler) Validate(c *gin.Context) {
	id, ok := recordID(c)
	if !ok {
		return
	}
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "detail": err.Error()})
		return
	}

	rec, err := h.svc.Validate(c.Request.Context(), id, req.ExpectedVersion, entity.Patch{
		Set:   req.Fields,
		Clear: req.ClearFields,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Reset clears the record for reprocessing.
func (h *Handler) Reset(c *gin.Context) {
	id, ok := recordID(c)
	if !ok {
		return
	}
	if err := h.svc.Reset(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Retry re-enqueues a failed record.
func (h *Handler) Retry(c *gin.Context) {
	id, ok := recordID(c)
	if !ok {
		return
	}
	if err := h.svc.Retry(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// Healthz pings the database.
func (h *Handler) Healthz(c *gin.Context) {
	if err := store.HealthCheck(c.Request.Context(), h.db, 2*time.Second); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
