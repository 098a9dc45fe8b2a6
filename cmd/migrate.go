package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/backstage/services/provenance/internal/database"
	"example.com/backstage/services/provenance/models"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	log.Info().Str("driver", cfg.Database.Driver).Msg("Running database migrations")

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := models.SetupModels(db); err != nil {
		return err
	}

	log.Info().Msg("Database migrations completed successfully")
	return nil
}
