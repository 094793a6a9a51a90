package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/faceid/internal/pgstore"
	"github.com/andresmejia3/faceid/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	syncReset bool
	syncYes   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror the CSV store into PostgreSQL (pgvector)",
	Long:  "Replaces the face_encodings table with the current contents of the store, in file order. Use --reset to drop the table first.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runSync(cmd.Context())
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncReset, "reset", false, "Drop the mirror table before syncing")
	syncCmd.Flags().BoolVarP(&syncYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(syncCmd)
}

func runSync(ctx context.Context) {
	table, err := openStore().Load()
	if err != nil {
		utils.Die("Failed to load store", err, nil)
	}

	db, err := pgstore.New(ctx, cfg.DB)
	if err != nil {
		utils.Die("Failed to connect to database", err, nil)
	}
	// Background: ctx may already be cancelled by Ctrl+C
	defer func() { db.Close(context.Background()) }()

	if syncReset {
		if syncYes || confirm(bufio.NewReader(os.Stdin), os.Stdout, "⚠️  Are you sure you want to DROP the face_encodings table?") {
			fmt.Println("🗑️  Clearing Database...")
			if err := db.Reset(ctx); err != nil {
				utils.Die("Failed to reset database", err, nil)
			}
			db.Close(context.Background())
			// Reconnecting recreates the schema
			if db, err = pgstore.New(ctx, cfg.DB); err != nil {
				utils.Die("Failed to reconnect to database", err, nil)
			}
		}
	}

	bar := progressbar.NewOptions(len(table),
		progressbar.OptionSetDescription("🗄️  Syncing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	if err := db.Replace(ctx, table, func() { bar.Add(1) }); err != nil {
		utils.Die("Failed to sync store", err, nil)
	}
	bar.Finish()

	n, err := db.Count(ctx)
	if err != nil {
		utils.Die("Failed to count mirrored rows", err, nil)
	}
	fmt.Fprintf(os.Stderr, "\n✅ Mirrored %d encodings to PostgreSQL\n", n)
}
