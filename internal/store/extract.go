package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/faceid/internal/extractor"
	"github.com/rs/zerolog"
)

// ExtractOptions tunes ExtractAll.
type ExtractOptions struct {
	// Progress, when set, is called once per directory entry processed.
	Progress func(name string)
	// Skipped, when set, is called for every file left out of the result.
	Skipped func(name string, err error)
	Log     *zerolog.Logger
}

// ExtractAll encodes every file in folder (non-recursive, name order).
// Files without a detectable face, or that the extractor cannot read, are
// skipped with a warning. Records are keyed by the file's base name.
func ExtractAll(ctx context.Context, folder string, enc extractor.Encoder, opts ExtractOptions) (Table, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("read image folder: %w", err)
	}

	log := zerolog.Nop()
	if opts.Log != nil {
		log = *opts.Log
	}

	skip := func(name string, err error) {
		if errors.Is(err, extractor.ErrNoFaceDetected) {
			log.Warn().Str("file", name).Msg("no face detected")
		} else {
			log.Warn().Err(err).Str("file", name).Msg("skipping file")
		}
		if opts.Skipped != nil {
			opts.Skipped(name, err)
		}
	}

	var table Table
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return table, err
		}
		name := entry.Name()
		if opts.Progress != nil {
			opts.Progress(name)
		}
		if entry.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(folder, name))
		if err != nil {
			skip(name, err)
			continue
		}

		vec, err := enc.Encode(ctx, data)
		if err == nil && len(vec) == 0 {
			err = extractor.ErrNoFaceDetected
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return table, ctxErr
			}
			skip(name, err)
			continue
		}

		table = append(table, Record{Name: name, Encoding: vec})
		log.Debug().Str("file", name).Int("dim", len(vec)).Msg("encoded")
	}
	return table, nil
}
