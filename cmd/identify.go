package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/faceid/internal/extractor"
	"github.com/andresmejia3/faceid/internal/frame"
	"github.com/andresmejia3/faceid/internal/index"
	"github.com/andresmejia3/faceid/internal/pgstore"
	"github.com/andresmejia3/faceid/internal/types"
	"github.com/andresmejia3/faceid/internal/utils"
	"github.com/spf13/cobra"
)

var (
	identifyExact bool
	identifyDB    bool
	identifyTop   int
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image>",
	Short: "Find the stored identity closest to the face in an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runIdentify(cmd.Context(), args[0])
	},
}

func init() {
	identifyCmd.Flags().BoolVar(&identifyExact, "exact", false, "Scan every row instead of using the HNSW index")
	identifyCmd.Flags().BoolVar(&identifyDB, "from-db", false, "Search the PostgreSQL mirror instead of the CSV store")
	identifyCmd.Flags().IntVarP(&identifyTop, "top", "k", 1, "Number of candidates to list (index search only)")
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(ctx context.Context, imagePath string) error {
	data, err := frame.ReadFile(imagePath)
	if err != nil {
		utils.ShowError("Input file does not exist", err, nil)
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
		fmt.Println("❌ No faces detected in the provided image.")
		return exitError{code: 2}
	}
	if err != nil {
		dieEngine("AI processing failed", err, w)
	}

	if identifyDB {
		return identifyFromDB(ctx, vec)
	}

	table, err := openStore().Load()
	if err != nil {
		utils.ShowError("Failed to load store", err, nil)
		return err
	}

	if identifyExact {
		name, res, ok := newEngine(nil).Best(vec, table)
		if !ok {
			fmt.Println("❌ No match found in store.")
			return exitError{code: 1}
		}
		fmt.Printf("✅ Found Match: %s (distance %.4f)\n", name, res.Distance)
		return nil
	}

	idx := index.Build(table)
	if idx.Skipped() > 0 {
		log.Warn().Int("skipped", idx.Skipped()).Int("dims", idx.Dims()).Msg("rows with a different dimension were not indexed")
	}
	hits := idx.Search(vec, max(identifyTop, 1))
	if len(hits) == 0 || hits[0].Distance > cfg.Threshold {
		fmt.Println("❌ No match found in store.")
		return exitError{code: 1}
	}
	best, _ := idx.Nearest(vec, cfg.Threshold)
	fmt.Printf("✅ Found Match: %s (distance %.4f)\n", best.Name, best.Distance)

	if identifyTop > 1 {
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(tw, "\nNAME\tDISTANCE\tMATCH")
		fmt.Fprintln(tw, "----\t--------\t-----")
		for _, h := range hits {
			fmt.Fprintf(tw, "%s\t%.4f\t%v\n", h.Name, h.Distance, h.Distance <= cfg.Threshold)
		}
		tw.Flush()
	}
	return nil
}

func identifyFromDB(ctx context.Context, vec types.Encoding) error {
	fmt.Fprintln(os.Stderr, "🗄️  Searching database...")
	db, err := pgstore.New(ctx, cfg.DB)
	if err != nil {
		utils.ShowError("Failed to connect to database", err, nil)
		return err
	}
	defer db.Close(context.Background())

	m, ok, err := db.Nearest(ctx, vec, cfg.Threshold)
	if err != nil {
		utils.ShowError("Database search failed", err, nil)
		return err
	}
	if !ok {
		fmt.Println("❌ No match found in database.")
		return exitError{code: 1}
	}
	fmt.Printf("✅ Found Match: %s (ID: %d, distance %.4f)\n", m.Name, m.ID, m.Distance)
	return nil
}
