package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"MarketStructure/internal/config"
)

const defaultConfigPath = "configs/config.yaml"

// app carries what every subcommand shares once the root pre-run has loaded the config.
type app struct {
	configPath string
	cfg        *config.Config
}

func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "mstruct",
		Short:         "Market structure analysis: volume profile, zones, opening range, fair value gaps",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := setupLogging(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format); err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	path := defaultConfigPath
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", path, "config file")
	root.AddCommand(newServeCmd(a), newAnalyzeCmd(a))
	return root
}

func setupLogging(out io.Writer, level, format string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	if format == "json" {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out})
	}
	return nil
}
