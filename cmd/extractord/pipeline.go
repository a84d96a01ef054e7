package main

import (
	"log/slog"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/cache"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/correct"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/extract"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/gate"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/normalize"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/orchestrate"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/store"
)

// buildProcessor wires the extraction pipeline: OCR client, response cache,
// correction clients per enabled modality, orchestrator. Shared between the
// server and the one-shot process/retry subcommands.
func buildProcessor(cfg *common.Config, st *store.Store, logger *slog.Logger) *orchestrate.Processor {
	ocrClient := extract.NewClient(extract.ClientConfig{
		BaseURL: cfg.Extractor.BaseURL,
		Timeout: cfg.Extractor.Timeout,
		Retry: common.RetryOptions{
			MaxAttempts:  cfg.Extractor.MaxAttempts,
			InitialDelay: cfg.Extractor.InitialDelay,
			MaxDelay:     cfg.Extractor.MaxDelay,
		},
	}, logger)

	responseCache := cache.New(cfg.Correction.CacheTTL, cfg.Correction.CacheMaxSize)
	retry := common.RetryOptions{
		MaxAttempts:  cfg.Correction.MaxAttempts,
		InitialDelay: cfg.Correction.InitialDelay,
		MaxDelay:     cfg.Correction.MaxDelay,
	}

	var text, vision correct.Corrector
	if cfg.Pipeline.EnableText {
		text = correct.NewTextClient(correct.Config{
			BaseURL: cfg.Correction.BaseURL,
			APIKey:  cfg.Correction.APIKey,
			Model:   cfg.Correction.TextModel,
			Timeout: cfg.Correction.Timeout,
			Retry:   retry,
		}, responseCache, logger)
	}
	if cfg.Pipeline.EnableVision {
		vision = correct.NewVisionClient(correct.Config{
			BaseURL: cfg.Correction.BaseURL,
			APIKey:  cfg.Correction.APIKey,
			Model:   cfg.Correction.VisionModel,
			Timeout: cfg.Correction.Timeout,
			Retry:   retry,
		}, responseCache, logger)
	}

	orch := orchestrate.New(cfg.Pipeline, gate.New(cfg.Pipeline.ConfidenceThreshold), text, vision, ocrClient, logger)
	return orchestrate.NewProcessor(st, ocrClient, normalize.New(logger), orch, logger)
}
