package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresmejia3/faceid/internal/codec"
	"github.com/andresmejia3/faceid/internal/pgstore"
	"github.com/andresmejia3/faceid/internal/store"
	"github.com/andresmejia3/faceid/internal/types"
	"github.com/andresmejia3/faceid/internal/utils"
	"github.com/spf13/cobra"
)

var lookupFromDB bool

var lookupCmd = &cobra.Command{
	Use:   "lookup <name>",
	Short: "Print the stored encoding for an image name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runLookup(cmd.Context(), args[0], lookupFromDB)
	},
}

func init() {
	lookupCmd.Flags().BoolVar(&lookupFromDB, "from-db", false, "Read from the Postgres mirror instead of the CSV store")
	rootCmd.AddCommand(lookupCmd)
}

func runLookup(ctx context.Context, name string, fromDB bool) error {
	var (
		vec types.Encoding
		err error
	)
	if fromDB {
		vec, err = lookupInDB(ctx, name)
	} else {
		vec, err = openStore().Lookup(name)
	}

	switch {
	case errors.Is(err, store.ErrStoreNotFound):
		utils.ShowError("Store does not exist", err, nil)
		return err
	case errors.Is(err, store.ErrNotFound):
		fmt.Printf("❌ No encoding stored for %s\n", name)
		return exitError{code: 1}
	case err != nil:
		utils.ShowError("Failed to read store", err, nil)
		return err
	}
	fmt.Println(codec.Encode(vec))
	return nil
}

// lookupInDB resolves name against the mirror; like the CSV store, the
// oldest row wins.
func lookupInDB(ctx context.Context, name string) (types.Encoding, error) {
	db, err := pgstore.New(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close(context.Background())
	return db.Lookup(ctx, name)
}
