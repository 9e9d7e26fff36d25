// campaignctl is the operator CLI for the campaign dispatch backend.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/app"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/config"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/logger"
)

var (
	cfg       *config.Config
	log       zerolog.Logger
	logLevel  string
	companyID string
)

var rootCmd = &cobra.Command{
	Use:   "campaignctl",
	Short: "Operate the campaign dispatch backend",
	Long: `campaignctl manages contact lists, previews templates, dispatches
campaigns and inspects campaign job records.

Connection settings come from the same environment variables as the API
server and worker (DB_*, QUEUE_*, EVENTS_*, PROVIDER_*, AUTH_*).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		log = logger.WithComponent(logger.New(logger.Config{
			Level:  cfg.Log.Level,
			Format: "console",
			Output: os.Stderr,
		}), "campaignctl")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&companyID, "company", "", "company that owns the lists and jobs")

	rootCmd.AddCommand(migrateCmd, contactsCmd, previewCmd, dispatchCmd, jobsCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp builds the application for the duration of fn
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func requireCompany() error {
	if companyID == "" {
		return fmt.Errorf("--company is required")
	}
	return nil
}

func decodeYAMLFile(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
