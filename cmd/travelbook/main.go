package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const flagLogLevel = "log-level"

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "travelbook: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "travelbook",
		Short:         "Reserve travel offers settled on the TravelAgency ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	registerRuntimeFlags(cmd.PersistentFlags())
	cmd.PersistentFlags().String(flagLogLevel, "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCommand(),
		newOffersCommand(),
		newReserveCommand(),
		newReservationsCommand(),
		newReviewCommand(),
		newReviewsCommand(),
		newAttemptsCommand(),
	)
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("zap init: %w", err)
	}
	return logger, nil
}
