package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetfill/internal/core"
	"github.com/JonMunkholm/sheetfill/internal/sheet"
)

type exportOptions struct {
	mode   string
	format string
	outDir string
}

func (o *exportOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.mode, "mode", "m", "all", "rows to export: all or missing")
	cmd.Flags().StringVarP(&o.format, "format", "f", sheet.FormatXLSX, "output format: xlsx or csv")
	cmd.Flags().StringVar(&o.outDir, "out", ".", "directory to write the export to")
}

// write exports session id and reports the written path on w.
func (o *exportOptions) write(ctx context.Context, w io.Writer, svc *core.Service, id string) error {
	mode, err := core.ParseExportMode(o.mode)
	if err != nil {
		return userError(err)
	}
	format, err := sheet.ParseFormat(o.format)
	if err != nil {
		return userError(err)
	}

	file, err := svc.Export(ctx, id, mode, format)
	if err != nil {
		return userError(err)
	}

	if err := os.MkdirAll(o.outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(o.outDir, file.Name)
	if err := os.WriteFile(path, file.Data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}

	fmt.Fprintf(w, "Wrote %d rows to %s\n", file.Rows, path)
	return nil
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	eo := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Export all rows or only incomplete rows",
		Long: `Export writes <name>_all.<ext> or <name>_missing.<ext> to the output
directory. Nothing is written when the selection is empty.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, id, err := opts.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return eo.write(cmd.Context(), cmd.OutOrStdout(), svc, id)
		},
	}

	eo.addFlags(cmd)
	return cmd
}
