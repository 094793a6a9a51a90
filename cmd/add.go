package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/faceid/internal/extractor"
	"github.com/andresmejia3/faceid/internal/frame"
	"github.com/andresmejia3/faceid/internal/pgstore"
	"github.com/andresmejia3/faceid/internal/store"
	"github.com/andresmejia3/faceid/internal/types"
	"github.com/andresmejia3/faceid/internal/utils"
	"github.com/spf13/cobra"
)

var (
	addName   string
	addMirror bool
)

var addCmd = &cobra.Command{
	Use:   "add <image>",
	Short: "Encode one image and append it to an existing store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runAdd(cmd.Context(), args[0])
	},
}

func init() {
	addCmd.Flags().StringVarP(&addName, "name", "n", "", "Row name (default: the image file name)")
	addCmd.Flags().BoolVar(&addMirror, "mirror", false, "Also append the encoding to the Postgres mirror (see --db)")
	rootCmd.AddCommand(addCmd)
}

func runAdd(ctx context.Context, imagePath string) error {
	s := openStore()
	// Appending never creates the store; fail before paying for the worker
	if !s.Exists() {
		err := fmt.Errorf("%w: %s", store.ErrStoreNotFound, s.Path())
		utils.ShowError("Store does not exist, run 'faceid extract' first", err, nil)
		return err
	}

	data, err := frame.ReadFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}

	w, err := startEngine(ctx)
	if err != nil {
		utils.ShowError("Failed to start AI worker", err, nil)
		return err
	}
	defer w.Close()

	fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
	vec, err := w.Encode(ctx, data)
	if errors.Is(err, extractor.ErrNoFaceDetected) {
		fmt.Fprintf(os.Stderr, "❌ No face detected in %s\n", imagePath)
		return err
	}
	if err != nil {
		dieEngine("AI processing failed", err, w)
	}

	name := addName
	if name == "" {
		name = filepath.Base(imagePath)
	}
	return appendEncoding(ctx, s, name, vec, addMirror)
}

// appendEncoding adds one row to the CSV store and, when mirror is set, to
// the Postgres mirror as well. The CSV stays the source of truth, so it is
// written first.
func appendEncoding(ctx context.Context, s *store.Store, name string, vec types.Encoding, mirror bool) error {
	if err := s.Append(name, vec); err != nil {
		utils.ShowError("Failed to append encoding", err, nil)
		return err
	}
	fmt.Printf("Encoding added to %s\n", s.Path())
	if !mirror {
		return nil
	}

	db, err := pgstore.New(ctx, cfg.DB)
	if err != nil {
		utils.ShowError("Failed to connect to database", err, nil)
		return err
	}
	defer db.Close(context.Background())

	if err := db.Append(ctx, name, vec); err != nil {
		utils.ShowError("Failed to append encoding to database", err, nil)
		return err
	}
	fmt.Fprintln(os.Stderr, "🗄️  Encoding mirrored to database")
	return nil
}
