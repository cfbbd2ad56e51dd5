package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/clubportal/generic"
	"github.com/warp/clubportal/importer"
)

var exportOutput string

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import a CSV backup or legacy spreadsheet",
	Long: `Each row is matched to a schema by its columns: member backup,
legacy member, legacy credit or log backup. Rows that fit none are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var exportCmd = &cobra.Command{
	Use:       "export members|logs",
	Short:     "Write a backup CSV",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"members", "logs"},
	RunE:      runExport,
}

var clearLegacyCmd = &cobra.Command{
	Use:   "clear-legacy",
	Short: "Delete every legacy member with their logs",
	Args:  cobra.NoArgs,
	RunE:  runClearLegacy,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, store, err := setup(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	im := importer.New(store, generic.SystemClock{}, cfg.Import.ChunkSize)
	res, err := im.ImportCSV(ctx, f)
	if res != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d, %d batches\n", res.Imported, res.Skipped, res.Batches)
		for schema, n := range res.BySchema {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-14s %d\n", schema, n)
		}
		for _, s := range res.Skips {
			slog.Debug("row skipped", "row", s.Row, "schema", s.Schema, "reason", s.Reason)
		}
	}
	return err
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, store, err := setup(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var w io.Writer = cmd.OutOrStdout()
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	ex := importer.NewExporter(store)
	var n int
	switch args[0] {
	case "members":
		n, err = ex.ExportMembers(ctx, w)
	case "logs":
		n, err = ex.ExportLogs(ctx, w)
	}
	if err != nil {
		return err
	}
	slog.Info("export written", "kind", args[0], "rows", n)
	return nil
}

func runClearLegacy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, store, err := setup(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := importer.New(store, generic.SystemClock{}, cfg.Import.ChunkSize).ClearLegacy(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d legacy members\n", n)
	return nil
}
