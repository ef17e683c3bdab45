package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dudu/facemesh/internal/config"
	"github.com/dudu/facemesh/internal/log"
)

// Version is the application version.
const Version = "0.1.0"

var (
	// cfg is the configuration shared by all subcommands
	cfg     = config.Default()
	envFile string
)

var rootCmd = &cobra.Command{
	Use:          "facemesh",
	Short:        "Face mesh landmark overlay renderer",
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		// flags given on the command line win over the environment
		if err := cfg.ApplyEnv(cmd.Flags(), nil); err != nil {
			return fmt.Errorf("invalid environment: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		log.Setup(log.Options{Level: cfg.LogLevel, File: cfg.LogFile, NoColor: cfg.NoColor})
		log.WithRun().WithField("command", cmd.Name()).Info("facemesh starting")
		return nil
	},
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "file of FACEMESH_* variables to load if present")
	cfg.BindFlags(rootCmd.PersistentFlags())
}
