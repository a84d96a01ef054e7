package main

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/constants"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/store"
)

// withStore loads configuration, opens the database and hands a ready store
// to fn. Shared plumbing for the single-record subcommands.
func withStore(cmd *cobra.Command, fn func(cfg *common.Config, st *store.Store, logger *slog.Logger) error) error {
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := common.SetupLogger(
		common.ParseLevel(viper.GetString("logging.level")),
		viper.GetString("logging.format"),
	)

	db, closeDB, err := store.Open(cmd.Context(), cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer closeDB()

	st := store.New(db, cfg.Database.Driver, logger)
	if err := st.Migrate(cmd.Context()); err != nil {
		return err
	}
	return fn(cfg, st, logger)
}

func recordIDArg(args []string) (uuid.UUID, error) {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("record id %q: %w", args[0], err)
	}
	return id, nil
}

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <record-id>",
		Short: "Run one extraction pass synchronously",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := recordIDArg(args)
			if err != nil {
				return err
			}
			return withStore(cmd, func(cfg *common.Config, st *store.Store, logger *slog.Logger) error {
				proc := buildProcessor(cfg, st, logger)
				if err := proc.Process(cmd.Context(), id); err != nil {
					return err
				}
				cmd.Printf("record %s extracted\n", id)
				return nil
			})
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <record-id>",
		Short: "Clear a record's fields and return it to PENDING",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := recordIDArg(args)
			if err != nil {
				return err
			}
			return withStore(cmd, func(_ *common.Config, st *store.Store, _ *slog.Logger) error {
				if err := st.ResetForReprocessing(cmd.Context(), id); err != nil {
					return err
				}
				cmd.Printf("record %s reset\n", id)
				return nil
			})
		},
	}
}

func retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <record-id>",
		Short: "Re-run extraction for a FAILED record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := recordIDArg(args)
			if err != nil {
				return err
			}
			return withStore(cmd, func(cfg *common.Config, st *store.Store, logger *slog.Logger) error {
				state, _, err := st.GetState(cmd.Context(), id)
				if err != nil {
					return err
				}
				if state != constants.StateFailed {
					return fmt.Errorf("record in state %s: %w", state, common.ErrInvalidState)
				}
				proc := buildProcessor(cfg, st, logger)
				if err := proc.Process(cmd.Context(), id); err != nil {
					return err
				}
				cmd.Printf("record %s extracted\n", id)
				return nil
			})
		},
	}
}
