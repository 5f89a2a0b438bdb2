package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/messageai/tacsync/internal/config"
	"github.com/messageai/tacsync/internal/daemon"
	"github.com/messageai/tacsync/internal/logging"
	"github.com/messageai/tacsync/internal/profile"
)

var (
	profileFlag string
	devFlag     bool
	debugFlag   bool
)

var rootCmd = &cobra.Command{
	Use:           "tacsyncd",
	Short:         "Offline-first message sync daemon",
	Long:          "Runs the sync core for one profile: local cache, live listeners, and the outbound queue.",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		layout := profile.DefaultLayout()
		name := layout.Resolve(profileFlag)
		if err := profile.ValidateName(name); err != nil {
			return err
		}

		cfg, err := config.LoadProfile(layout.ProfileConfigPath(name))
		if err != nil {
			return err
		}
		cfg.ApplyEnv()

		app := fx.New(
			daemon.Module(daemon.Params{
				Profile: name,
				Layout:  layout,
				Config:  cfg,
				Dev:     devFlag,
				Log:     logging.Options{Debug: debugFlag},
			}),
			fx.NopLogger,
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&profileFlag, "profile", "", "profile name (overrides config default)")
	rootCmd.Flags().BoolVar(&devFlag, "dev", false, "use the in-memory feed instead of the configured remote")
	rootCmd.Flags().BoolVar(&debugFlag, "debug", false, "log at debug level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
