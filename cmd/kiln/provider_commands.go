package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kiln/internal/ipc"
)

func newProvidersCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List registered providers (* marks the default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Providers()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Providers)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					leftColumns("ID", "Name", "Source", "Version", "Media", "Actors"),
					buildProviderRows(resp.Providers),
				))
				return nil
			})
		},
	}
	providersCmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	providersCmd.AddCommand(&cobra.Command{
		Use:   "reload",
		Short: "Rediscover plugin manifests in the plugin directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				report, err := client.ProvidersReload()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Loaded %d plugins\n", len(report.Loaded))
				for _, id := range report.Loaded {
					fmt.Fprintf(out, "  %s\n", id)
				}
				if len(report.Rejected) > 0 {
					fmt.Fprintf(out, "Rejected %d manifests\n", len(report.Rejected))
					for _, rejected := range report.Rejected {
						fmt.Fprintf(out, "  %s: %s\n", rejected.Path, rejected.Error)
					}
				}
				return nil
			})
		},
	})

	return providersCmd
}
