package cmd

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/backstage/services/giftcard/config"
	"example.com/backstage/services/giftcard/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Database.Driver != config.DriverPostgres {
			return errors.New("migrations only apply to the postgres driver")
		}

		// Connect to database
		db, readOnly, err := database.Connect(cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close(db)
		if readOnly != db {
			defer database.Close(readOnly)
		}

		if err := database.Migrate(db); err != nil {
			return err
		}

		log.Info().Msg("Database migrations completed successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
