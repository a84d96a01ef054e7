package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/orchestrate"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/review"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/server"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the extraction service",
		RunE:  runServe,
	}
	cmd.Flags().String("http-addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	_ = viper.BindPFlag("server.http_addr", cmd.Flags().Lookup("http-addr"))
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := common.LoadConfig()
	if addr := viper.GetString("server.http_addr"); addr != "" {
		cfg.Server.HTTPAddr = addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := common.SetupLogger(
		common.ParseLevel(viper.GetString("logging.level")),
		viper.GetString("logging.format"),
	)

	ctx := cmd.Context()
	db, closeDB, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer closeDB()

	st := store.New(db, cfg.Database.Driver, logger)
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	proc := buildProcessor(cfg, st, logger)
	queue := orchestrate.NewQueue(proc, logger,
		orchestrate.WithWorkers(cfg.Pipeline.Workers),
		orchestrate.WithQueueSize(cfg.Pipeline.QueueSize),
		orchestrate.WithProcessTimeout(cfg.Pipeline.ProcessTimeout),
	)

	svc := review.NewService(st, queue, logger)
	router := server.NewRouter(server.NewHandler(svc, db, logger), logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server.listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server.shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server.shutdown_failed", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	logger.Info("server.stopped")
	return nil
}
