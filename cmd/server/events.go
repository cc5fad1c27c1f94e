package main

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/upb/tutoring-platform/backend/models"
	"github.com/upb/tutoring-platform/backend/pkg/client"
)

func newEventsCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List the recognised security events",
		Long: `Lists the event catalogue. Without --server the catalogue compiled
into this binary is printed; with --server it is fetched from a running instance.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalogue := &client.Catalogue{
				Events:   models.Catalogue(),
				Outcomes: models.Outcomes(),
			}

			if server != "" {
				remote, err := client.New(server).Events(cmd.Context())
				if err != nil {
					return err
				}
				catalogue = remote
			}

			renderCatalogue(cmd.OutOrStdout(), catalogue)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Base URL of a running security log server")
	return cmd
}

func renderCatalogue(out io.Writer, catalogue *client.Catalogue) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Event", "Category"})
	for _, entry := range catalogue.Events {
		t.AppendRow(table.Row{entry.Event, entry.Category})
	}

	outcomes := make([]string, 0, len(catalogue.Outcomes))
	for _, o := range catalogue.Outcomes {
		outcomes = append(outcomes, string(o))
	}
	t.AppendFooter(table.Row{"Outcomes", strings.Join(outcomes, ", ")})

	t.SetStyle(table.StyleLight)
	t.Render()
}
