package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/upb/tutoring-platform/backend/config"
	"github.com/upb/tutoring-platform/backend/models"
	"github.com/upb/tutoring-platform/backend/pkg/client"
)

func newEmitCmd() *cobra.Command {
	var (
		server   string
		secret   string
		header   string
		event    client.Event
		metadata map[string]string
	)

	cmd := &cobra.Command{
		Use:   "emit <event> <outcome>",
		Short: "Submit one security event to a running server",
		Example: `  security-log emit auth.signin success --user-id u1 --email a@b.co
  security-log emit access.denied failure --resource /admin --metadata reason=missing-role`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			event.Event = models.SecurityEvent(args[0])
			event.Outcome = models.Outcome(args[1])

			if !models.IsKnownEvent(event.Event) {
				return fmt.Errorf("unknown event %q (see the events command)", args[0])
			}
			if !models.IsValidOutcome(event.Outcome) {
				return fmt.Errorf("invalid outcome %q (must be success or failure)", args[1])
			}

			if len(metadata) > 0 {
				event.Metadata = make(map[string]interface{}, len(metadata))
				for k, v := range metadata {
					event.Metadata[k] = v
				}
			}

			cli := client.New(server, client.WithCredential(secret), client.WithHeader(header))
			if err := cli.Submit(cmd.Context(), event); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "recorded %s (%s)\n", event.Event, event.Outcome)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Base URL of the security log server")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("SECURITY_LOG_SECRET"), "Shared ingestion credential")
	cmd.Flags().StringVar(&header, "header", config.DefaultSecurityLogHeader, "Header carrying the credential")
	cmd.Flags().StringVar(&event.UserID, "user-id", "", "Acting user identifier")
	cmd.Flags().StringVar(&event.Email, "email", "", "Acting user email")
	cmd.Flags().StringVar(&event.Resource, "resource", "", "Resource the event concerns")
	cmd.Flags().StringVar(&event.Message, "message", "", "Free-form message")
	cmd.Flags().StringToStringVar(&metadata, "metadata", nil, "Additional key=value context")

	return cmd
}
