package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/campaign-insights/backend/internal/models"
)

// mergeCmd concatenates local files into the persisted dataset
var mergeCmd = &cobra.Command{
	Use:   "merge [files...]",
	Short: "Concatenate local campaign exports into the dataset",
	Long: `Validates and concatenates the given CSV/XLSX/XLS files exactly like
POST /upload/, overwriting the persisted dataset. The input files are
copied first and left untouched.

Example:
  campaign-insights merge jan.csv feb.xlsx mar.xls`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMerge,
}

func runMerge(cmd *cobra.Command, args []string) error {
	if len(args) > cfg.Upload.MaxFiles {
		return fmt.Errorf("You can upload a maximum of %d files.", cfg.Upload.MaxFiles)
	}

	a, err := newApp(cmd.Context(), cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	files := make([]*models.FileInfo, 0, len(args))
	for _, path := range args {
		info, err := copyIntoStore(a, path)
		if err != nil {
			for _, f := range files {
				_ = a.store.Delete(f.ID)
			}
			return err
		}
		files = append(files, info)
	}

	batch, result, err := a.uploads.Process(cmd.Context(), files)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Files concatenated successfully\n")
	fmt.Fprintf(out, "  batch:   %s\n", batch.ID)
	fmt.Fprintf(out, "  output:  %s\n", result.OutputFile)
	fmt.Fprintf(out, "  rows:    %d\n", result.Dataset.RowCount())
	fmt.Fprintf(out, "  columns: %d\n", len(result.Dataset.Columns))
	for _, name := range result.Skipped {
		fmt.Fprintf(out, "  skipped: %s\n", name)
	}
	return nil
}

func copyIntoStore(a *app, path string) (*models.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return a.store.Save(filepath.Base(path), f)
}
