package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"screen-relay-server/internal/capture"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify that ssh and ffmpeg are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			statuses := capture.CheckBinaries(capture.Requirements(cfg.Capture))
			fmt.Fprintln(cmd.OutOrStdout(), renderBinaryTable(statuses))
			return capture.MissingBinaries(statuses)
		},
	}
}

func renderBinaryTable(statuses []capture.BinaryStatus) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Binary", "Status", "Location", "Purpose"})
	for _, s := range statuses {
		state, location := "ok", s.Path
		if !s.Available {
			state, location = "missing", s.Detail
		}
		tw.AppendRow(table.Row{s.Name, state, location, s.Description})
	}
	return tw.Render()
}
