package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/faceid/internal/extractor"
	"github.com/andresmejia3/faceid/internal/store"
	"github.com/andresmejia3/faceid/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract <folder>",
	Short: "Encode every face image in a folder and rewrite the store",
	Long:  "Encodes each file in the folder (non-recursive) and replaces the store with one row per image, keyed by file name. Images without a face are skipped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runExtract(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

func runExtract(ctx context.Context, folder string) error {
	entries, err := os.ReadDir(folder)
	if err != nil {
		utils.ShowError("Unable to read image folder", err, nil)
		return err
	}

	w, err := startEngine(ctx)
	if err != nil {
		utils.ShowError("Failed to start AI worker", err, nil)
		return err
	}
	defer w.Close()

	bar := progressbar.NewOptions(len(entries),
		progressbar.OptionSetDescription("🧬 Encoding faces"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	var skipped []string
	table, err := store.ExtractAll(ctx, folder, w, store.ExtractOptions{
		Progress: func(string) { bar.Add(1) },
		Skipped: func(name string, err error) {
			if errors.Is(err, extractor.ErrNoFaceDetected) {
				skipped = append(skipped, fmt.Sprintf("No face detected in %s", name))
			} else {
				skipped = append(skipped, fmt.Sprintf("Skipped %s: %v", name, err))
			}
		},
		Log: &log,
	})
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "👋 Extraction cancelled, store left untouched.")
			return nil
		}
		dieEngine("Extraction failed", err, w)
	}
	for _, msg := range skipped {
		fmt.Fprintf(os.Stderr, "⚠️  %s\n", msg)
	}

	s := openStore()
	if err := s.WriteAll(table); err != nil {
		utils.ShowError("Failed to write store", err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "✅ Wrote %d encodings to %s (%d skipped)\n", len(table), s.Path(), len(skipped))
	return nil
}
