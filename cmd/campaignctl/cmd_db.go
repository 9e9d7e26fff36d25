package main

import (
	"github.com/spf13/cobra"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/db"
)

// migrateCmd applies the embedded schema migrations
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.New(db.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return err
		}
		defer database.Close()

		applied, err := database.Migrate(cmd.Context())
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			log.Info().Msg("schema is up to date")
			return nil
		}
		log.Info().Strs("applied", applied).Msg("migrations applied")
		return nil
	},
}
