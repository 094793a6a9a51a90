//go:build gocv

package cmd

import (
	"context"

	"github.com/andresmejia3/faceid/internal/extractor"
	"github.com/andresmejia3/faceid/internal/gate"
)

// detectors runs the Haar cascades in-process when a cascade directory is
// configured, and falls back to the worker otherwise.
func detectors(ctx context.Context, w *extractor.Worker) (gate.FaceDetector, gate.FeatureDetector, func(), error) {
	if cfg.Worker.CascadeDir == "" {
		if err := w.LoadCascades(ctx); err != nil {
			return nil, nil, nil, err
		}
		return w, w, func() {}, nil
	}
	c, err := extractor.NewCascade(cfg.Worker.CascadeDir, extractor.CascadeFiles{
		Face:  cfg.Cascades.Face,
		Eye:   cfg.Cascades.Eye,
		Nose:  cfg.Cascades.Nose,
		Mouth: cfg.Cascades.Mouth,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	log.Debug().Str("dir", cfg.Worker.CascadeDir).Msg("using native cascades")
	return c, c, func() { c.Close() }, nil
}
