package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/faceid/internal/codec"
	"github.com/andresmejia3/faceid/internal/extractor"
	"github.com/andresmejia3/faceid/internal/match"
	"github.com/andresmejia3/faceid/internal/store"
	"github.com/andresmejia3/faceid/internal/utils"
	"github.com/spf13/cobra"
)

var compareName string

var compareCmd = &cobra.Command{
	Use:   "compare (<known-image> | --name <stored-name>) <unknown-image>",
	Short: "Decide whether two faces belong to the same person",
	Long: "Prints true, false or indeterminate. The exit code is 0 for a match, 1 for no match " +
		"and 2 when no decision could be made (missing files, no face, unknown name).",
	Args: func(cmd *cobra.Command, args []string) error {
		if compareName != "" {
			return cobra.ExactArgs(1)(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runCompare(cmd.Context(), args)
	},
}

func init() {
	compareCmd.Flags().StringVarP(&compareName, "name", "n", "", "Compare against the stored encoding with this name instead of a known image")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(ctx context.Context, args []string) error {
	w, err := startEngine(ctx)
	if err != nil {
		// no engine means no decision, never "false"
		utils.ShowError("Failed to start AI worker", err, nil)
		fmt.Println("indeterminate")
		return exitError{code: 2}
	}
	defer w.Close()

	return compareWith(ctx, newEngine(w), w.Cmd(), compareName, args)
}

// compareWith runs one comparison and prints its outcome. Every failure to
// obtain an encoding ends as indeterminate; broken workers additionally get
// an error box with the captured Python logs.
func compareWith(ctx context.Context, e *match.Engine, sc *utils.SafeCommand, name string, args []string) error {
	var (
		res match.Result
		err error
	)
	if name != "" {
		res, err = e.MatchByName(ctx, name, args[0], cfg.Store)
	} else {
		res, err = e.MatchByPath(ctx, args[0], args[1])
	}

	if err != nil && !isDecisionError(err) && ctx.Err() == nil {
		utils.ShowError("Comparison failed", err, sc)
	}

	out, diag, code := compareOutcome(res, err, name != "")
	if diag != "" {
		fmt.Fprintln(os.Stderr, diag)
	}
	fmt.Println(out)
	log.Debug().Float64("distance", res.Distance).Str("decision", res.Decision.String()).Msg("compared")
	if code != 0 {
		return exitError{code: code}
	}
	return nil
}

// isDecisionError reports errors that make a comparison indeterminate
// rather than broken.
func isDecisionError(err error) bool {
	return errors.Is(err, match.ErrFileNotFound) ||
		errors.Is(err, extractor.ErrNoFaceDetected) ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, codec.ErrMalformedEncoding)
}

// compareOutcome maps a comparison to its printed result, an optional
// diagnostic and the exit code. Anything short of a decision is
// indeterminate (exit 2), whatever the cause.
func compareOutcome(res match.Result, err error, byName bool) (string, string, int) {
	switch res.Decision {
	case match.Match:
		return "true", "", 0
	case match.NoMatch:
		return "false", "", 1
	}

	var diag string
	switch {
	case errors.Is(err, match.ErrFileNotFound) && byName:
		diag = "Error: Image file or CSV file does not exist."
	case errors.Is(err, match.ErrFileNotFound):
		diag = "Error: One or both image files do not exist."
	case errors.Is(err, extractor.ErrNoFaceDetected):
		diag = "No faces detected in one of the images."
	case isDecisionError(err):
		diag = fmt.Sprintf("Error: %v", err)
	}
	return "indeterminate", diag, 2
}
