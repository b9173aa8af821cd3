package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"estatecron/internal/app"
	"estatecron/internal/config"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

type rootFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "estatecron",
		Short:         "Scheduled lifecycle engine for the property marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(f.envFile); err != nil {
				return fmt.Errorf("load %s: %w", f.envFile, err)
			}
			if strings.TrimSpace(f.configPath) == "" {
				f.configPath = os.Getenv(config.EnvConfigPath)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "config file (JSON or YAML); defaults to $"+config.EnvConfigPath+" or built-in defaults")
	root.PersistentFlags().StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(newServeCmd(f))
	root.AddCommand(newRunCmd(f))
	root.AddCommand(newMigrateCmd(f))
	root.AddCommand(newExtensionCmd(f))
	root.AddCommand(newFixturesCmd(f))
	root.AddCommand(newVersionCmd())
	return root
}

// openApp builds the app for one-shot commands. The caller must Stop it.
func openApp(ctx context.Context, f *rootFlags) (*app.App, error) {
	return app.New(ctx, f.configPath, app.Options{})
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
