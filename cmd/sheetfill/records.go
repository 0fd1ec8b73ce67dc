package main

import (
	"github.com/spf13/cobra"
)

func newRecordsCmd(opts *rootOptions) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "records FILE",
		Short: "List records with their missing fields",
		Long: `List every record with its title, completeness status and missing
fields. --search keeps records whose title or any value contains the term,
ignoring case.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, id, err := opts.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			records, err := svc.Records(id, search)
			if err != nil {
				return err
			}
			printRecords(cmd.OutOrStdout(), records)
			return nil
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "only show records matching this term")
	return cmd
}
