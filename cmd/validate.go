package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/faceid/internal/frame"
	"github.com/andresmejia3/faceid/internal/gate"
	"github.com/andresmejia3/faceid/internal/utils"
	"github.com/spf13/cobra"
)

var validateEyesAtLeast bool

var validateCmd = &cobra.Command{
	Use:   "validate <image>...",
	Short: "Run the capture checks on existing photos without saving anything",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runValidate(cmd.Context(), args)
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateEyesAtLeast, "eyes-at-least", false, "Accept at least, rather than exactly, the required eye count")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(ctx context.Context, paths []string) error {
	w, err := startEngine(ctx)
	if err != nil {
		utils.ShowError("Failed to start AI worker", err, nil)
		return err
	}
	defer w.Close()

	req := cfg.Requirements()
	if validateEyesAtLeast {
		req.EyeRule = gate.AtLeast
	}
	g, cleanup, err := newGate(ctx, w, req)
	if err != nil {
		utils.ShowError(detectorContext("Failed to load detectors", err), err, w.Cmd())
		return err
	}
	defer cleanup()

	rejected := 0
	for _, path := range paths {
		img, _, err := frame.Open(path)
		if err != nil {
			fmt.Printf("❌ %s: %v\n", path, err)
			rejected++
			continue
		}
		ev, err := g.Evaluate(ctx, img)
		if err != nil {
			dieEngine(detectorContext(fmt.Sprintf("Detection failed on %s", path), err), err, w)
		}
		if ev.State != gate.Accepted {
			fmt.Printf("❌ %s: %s\n", path, ev.Reason)
			rejected++
			continue
		}
		f := ev.Features
		fmt.Printf("✅ %s (eyes %d, nose %d, mouth %d)\n", path, f.Eyes, f.Noses, f.Mouths)
	}

	if rejected > 0 {
		fmt.Fprintf(os.Stderr, "⚠️  %d of %d images rejected\n", rejected, len(paths))
		return exitError{code: 1}
	}
	return nil
}
