package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/heaven-console/tui/internal/console"
)

func newAbortCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "abort <label>",
		Short: "Abort the job running on a port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), e.cfg.Refresh.RequestTimeout)
			defer cancel()

			d := console.NewDashboard(c, e.consoleOptions())
			if err := d.AbortJob(ctx, args[0]); err != nil {
				return err
			}
			cmd.Printf("aborted %s\n", args[0])
			return nil
		},
	}
}
