package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulseboard/pulseboard/internal/alerting"
	"github.com/pulseboard/pulseboard/internal/conf"
	"github.com/pulseboard/pulseboard/internal/datastore"
	"github.com/pulseboard/pulseboard/internal/datastore/repository"
	"github.com/pulseboard/pulseboard/internal/logger"
)

func seedCmd(configFile *string) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the built-in alert rules for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantID == "" {
				return fmt.Errorf("--tenant is required")
			}

			settings, err := conf.Load(*configFile)
			if err != nil {
				return err
			}
			log := logger.NewSlogLogger(os.Stdout, logger.ParseLevel(settings.Logging.Level), nil)

			db, err := datastore.Open(&settings.Database)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return alerting.SeedDefaultRules(ctx, repository.NewAlertRuleRepository(db), tenantID, log)
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant to seed rules for")
	return cmd
}
