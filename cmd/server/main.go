package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/upb/tutoring-platform/backend/config"
	"github.com/upb/tutoring-platform/backend/internal/observability"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "security-log",
		Short: "Security event audit log service",
		Long: `security-log ingests security events (sign-ins, access decisions,
validation failures, CRUD operations) reported by other services and
stores them as append-only audit records.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newEventsCmd(),
		newEmitCmd(),
	)
	return root
}

// initLogger builds the process logger from the loaded observability config
func initLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	return observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
}
