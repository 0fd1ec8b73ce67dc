package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newFillCmd(opts *rootOptions) *cobra.Command {
	var (
		recordID int
		sets     []string
	)
	eo := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "fill FILE",
		Short: "Fill missing fields of one record, then export",
		Long: `Fill applies Header=Value pairs to the missing fields of one record and
exports the result. Fields that already hold a value are never overwritten.
Record ids are 0-based, as listed by the records command.`,
		Example: `  sheetfill fill people.xlsx --record 1 --set Age=25 --set City=Paris --mode missing`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(sets)
			if err != nil {
				return err
			}

			svc, id, err := opts.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out, err := svc.Reconcile(cmd.Context(), id, recordID, values)
			if err != nil {
				return userError(err)
			}

			w := cmd.OutOrStdout()
			for _, ch := range out.Result.Applied {
				fmt.Fprintf(w, "Filled %s = %q\n", ch.Column, ch.NewValue)
			}
			if !out.Result.Changed() {
				fmt.Fprintln(w, "No fields filled")
			}
			if len(out.Result.Skipped) > 0 {
				fmt.Fprintf(w, "Skipped: %s\n", strings.Join(out.Result.Skipped, ", "))
			}
			fmt.Fprintf(w, "Incomplete rows: %d of %d (%d%% complete)\n",
				out.Stats.MissingRows, out.Stats.TotalRows, out.Stats.CompletePercent)

			return eo.write(cmd.Context(), w, svc, id)
		},
	}

	cmd.Flags().IntVarP(&recordID, "record", "r", -1, "record id to fill")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Header=Value to fill (repeatable)")
	_ = cmd.MarkFlagRequired("record")
	_ = cmd.MarkFlagRequired("set")
	eo.addFlags(cmd)
	return cmd
}

// parseAssignments splits Header=Value pairs. The value may contain '='.
func parseAssignments(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		col, val, ok := strings.Cut(pair, "=")
		col = strings.TrimSpace(col)
		if !ok || col == "" {
			return nil, fmt.Errorf("invalid --set %q: want Header=Value", pair)
		}
		values[col] = val
	}
	return values, nil
}
