package cmd

import (
	"log/slog"

	config "github.com/avataralabs/queuelabs-sub000/configs"
	"github.com/avataralabs/queuelabs-sub000/internal/app"
	"github.com/avataralabs/queuelabs-sub000/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "queuectl",
	Short: "queuectl operates the content scheduling and dispatch engine",
	Long: `queuectl is the operator tool for the auto-publish engine.

It reads the same environment as the server (POSTGRES_URI, REDIS_URI, R2_*,
SECRET_KEY, DISPATCH_*) and acts on the database directly.

Common workflows:

  Apply pending migrations:
    queuectl migrate

  Run one dispatch pass now:
    queuectl dispatch

  Free leases left behind by a crashed worker:
    queuectl release-stale

  Show the next free instants of a profile:
    queuectl plan --profile 3 --platform tiktok --count 5`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env") {
			return err
		}
		slog.SetDefault(logger.New(config.LoadConfig().LogLevel))
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// openApp connects with the current environment.
func openApp(cmd *cobra.Command) (*app.App, error) {
	return app.Open(cmd.Context(), config.LoadConfig())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load")
}
