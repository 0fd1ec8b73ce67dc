package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetfill/internal/core"
	"github.com/JonMunkholm/sheetfill/internal/logging"
	"github.com/JonMunkholm/sheetfill/internal/sheet"
)

type rootOptions struct {
	logLevel    string
	maxFileSize int64
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "sheetfill",
		Short: "Find and fill gaps in spreadsheets",
		Long: `sheetfill loads the first sheet of an .xlsx or .csv file, treats the
first row as the header and reports which cells are missing.

Missing cells can be filled record by record and the result exported as
xlsx or csv, either in full or only the rows that are still incomplete.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			_ = godotenv.Load()
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), opts.logLevel, "text"))
		},
	}

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	root.PersistentFlags().Int64Var(&opts.maxFileSize, "max-size", sheet.DefaultMaxFileSize, "maximum input file size in bytes")

	root.AddCommand(
		newStatsCmd(opts),
		newRecordsCmd(opts),
		newExportCmd(opts),
		newFillCmd(opts),
	)
	return root
}

// open loads path into a fresh in-process session.
func (o *rootOptions) open(ctx context.Context, path string) (*core.Service, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	svc := core.NewService(sheet.New(o.maxFileSize), nil, nil, core.Options{MaxConcurrentDecodes: 1})
	info, err := svc.Load(ctx, path, f)
	if err != nil {
		return nil, "", userError(err)
	}
	return svc, info.ID, nil
}

// userError prefixes errors that have a user message with that message.
func userError(err error) error {
	if !core.IsUserFacing(err) {
		return err
	}
	return fmt.Errorf("%s\n%w", core.FormatUserError(err), err)
}
