package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/store"
)

func dbhealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dbhealth",
		Short: "Check database connectivity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := common.LoadConfig()
			logger := common.SetupLogger(
				common.ParseLevel(viper.GetString("logging.level")),
				viper.GetString("logging.format"),
			)

			db, closeDB, err := store.Open(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer closeDB()

			if err := store.HealthCheck(cmd.Context(), db, 5*time.Second); err != nil {
				return fmt.Errorf("database unhealthy: %w", err)
			}
			cmd.Println("database OK")
			return nil
		},
	}
}
