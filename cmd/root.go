// File: cmd/root.go

// Package cmd wires the deskpilot CLI: configuration loading, logger
// bootstrap, and the run/serve/version subcommands.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vistral/deskpilot/internal/config"
	"github.com/vistral/deskpilot/internal/observability"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "deskpilot",
	Short: "Drive a desktop with a vision-language model",
	Long: `deskpilot turns natural-language instructions into desktop actions.

It captures the screen, asks a vision-language model what to do next, and
injects the predicted action as real mouse and keyboard input. Run a full
multi-step task with "run", or expose the capabilities as JSON-RPC tools
with "serve".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		config.SetDefaults(v)

		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
		} else {
			v.SetConfigName("deskpilot")
			v.SetConfigType("yaml")
			v.AddConfigPath(".")
			if home, err := os.UserHomeDir(); err == nil {
				v.AddConfigPath(home + "/.config/deskpilot")
			}
		}

		v.SetEnvPrefix("DESKPILOT")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		if err := v.ReadInConfig(); err != nil {
			_, notFound := err.(viper.ConfigFileNotFoundError)
			if cfgFile != "" || !notFound {
				return fmt.Errorf("read config: %w", err)
			}
			// No config file is fine; defaults and env cover everything.
		}

		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			v.Set("logger.level", lvl)
		}

		var err error
		cfg, err = config.NewFromViper(v)
		if err != nil {
			return err
		}

		observability.InitializeLogger(cfg.Logger)
		return nil
	},
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./deskpilot.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override log level (debug, info, warn, error)")
}
