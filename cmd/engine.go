package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/faceid/internal/extractor"
	"github.com/andresmejia3/faceid/internal/gate"
	"github.com/andresmejia3/faceid/internal/match"
	"github.com/andresmejia3/faceid/internal/store"
	"github.com/andresmejia3/faceid/internal/utils"
)

// startEngine launches the Python worker used for encodings and, unless
// native cascades are compiled in, for detection as well.
func startEngine(ctx context.Context) (*extractor.Worker, error) {
	fmt.Fprintln(os.Stderr, "🚀 Starting AI Engine...")
	w, err := extractor.NewWorker(ctx, cfg.PythonWorker(), extractor.WithMaxSide(cfg.Worker.MaxSide))
	if err != nil {
		return nil, err
	}
	log.Debug().Str("script", cfg.Worker.Script).Msg("worker started")
	return w, nil
}

// newGate builds a capture gate on top of the running engine. The returned
// cleanup releases any extra detector resources.
func newGate(ctx context.Context, w *extractor.Worker, req gate.Requirements) (*gate.Gate, func(), error) {
	faces, features, cleanup, err := detectors(ctx, w)
	if err != nil {
		return nil, nil, err
	}
	return gate.New(faces, features, req), cleanup, nil
}

func openStore() *store.Store {
	return store.New(cfg.Store, store.WithLogger(log))
}

func newEngine(enc extractor.Encoder) *match.Engine {
	return match.New(enc, match.WithThreshold(cfg.Threshold), match.WithLogger(log))
}

// dieEngine reports a worker failure together with the captured Python logs.
func dieEngine(context string, err error, w *extractor.Worker) {
	var sc *utils.SafeCommand
	if w != nil {
		sc = w.Cmd()
	}
	utils.Die(context, err, sc)
}

// detectorContext picks the headline for a detection failure. Cascade load
// failures get their own so a missing model file is not mistaken for a
// crashed engine.
func detectorContext(context string, err error) string {
	if errors.Is(err, gate.ErrCascadeLoad) {
		return "One or more cascade files failed to load."
	}
	return context
}

func confirm(r *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
