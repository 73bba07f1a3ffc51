package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"pilotage/internal/exporter"
	"pilotage/internal/importer"
	"pilotage/internal/logging"
	"pilotage/internal/model"
	"pilotage/internal/normalize"
)

// normalizeOutput normalize 命令的 JSON 输出
type normalizeOutput struct {
	Report *model.LoadReport `json:"report"`
	Tables []*model.Table    `json:"tables"`
}

func newNormalizeCmd(configPath *string) *cobra.Command {
	var (
		out     string
		key     string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "normalize <file.xlsx|file.csv|dir>",
		Short: "Clean a workbook or a directory of flat tables and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			logger := logging.Discard()
			if verbose {
				logger = logging.NewWithWriter(cfg.Logging, cmd.ErrOrStderr())
			}

			var only model.LogicalKey
			if key != "" {
				k, ok := model.ParseLogicalKey(key)
				if !ok {
					return fmt.Errorf("unknown table key %q", key)
				}
				only = k
			}

			coordinator := importer.NewCoordinator(normalize.New(cfg.Normalize.Options()), importer.WithLogger(logger))
			res, err := coordinator.Load(cmd.Context(), importer.LoadOptions{Path: args[0]})
			if err != nil {
				return err
			}

			if out != "" {
				if err := exporter.NewExporter(exporter.LogProgress(logger, slog.LevelInfo)).ExportFile(res.Tables, out); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "cleaned workbook written to %s\n", out)
			}
			return writeJSON(cmd.OutOrStdout(), res, only)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "also write the cleaned tables to this .xlsx file")
	cmd.Flags().StringVar(&key, "key", "", "print a single table (YTD, RECRUT, ABS, ABS_MOTIF, ABS_SERVICE, SOURCE, PLAN)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")
	return cmd
}

func writeJSON(w io.Writer, res *importer.LoadResult, only model.LogicalKey) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if only != "" {
		t, ok := res.Table(only)
		if !ok {
			name, _ := model.SheetNameOf(only)
			return fmt.Errorf("%w: sheet %s not in source", importer.ErrTableAbsent, name)
		}
		return enc.Encode(t)
	}

	output := normalizeOutput{Report: res.Report, Tables: make([]*model.Table, 0, len(res.Tables))}
	for _, b := range model.SheetBindings {
		if t, ok := res.Table(b.Key); ok {
			output.Tables = append(output.Tables, t)
		}
	}
	return enc.Encode(output)
}

