package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/faceid/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all names in the encoding store",
	Run: func(cmd *cobra.Command, args []string) {
		runList()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList() {
	table, err := openStore().Load()
	if err != nil {
		utils.Die("Failed to load store", err, nil)
	}

	if len(table) == 0 {
		fmt.Println("No encodings found in store.")
		return
	}

	// Duplicates are listed; only the first row is used for matching
	seen := make(map[string]bool, len(table))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ROW\tNAME\tDIM\tNOTE")
	fmt.Fprintln(w, "---\t----\t---\t----")

	for i, rec := range table {
		note := ""
		if seen[rec.Name] {
			note = "shadowed"
		}
		seen[rec.Name] = true
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", i+1, rec.Name, len(rec.Encoding), note)
	}
	w.Flush()
}
