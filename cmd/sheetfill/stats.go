package main

import (
	"github.com/spf13/cobra"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats FILE",
		Short: "Show overall and per-column completeness",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, id, err := opts.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			info, err := svc.Session(id)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), info.Name, info.Stats)
			return nil
		},
	}
}
