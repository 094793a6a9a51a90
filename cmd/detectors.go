//go:build !gocv

package cmd

import (
	"context"

	"github.com/andresmejia3/faceid/internal/extractor"
	"github.com/andresmejia3/faceid/internal/gate"
)

// detectors uses the Python worker's cascades for every check.
func detectors(ctx context.Context, w *extractor.Worker) (gate.FaceDetector, gate.FeatureDetector, func(), error) {
	if err := w.LoadCascades(ctx); err != nil {
		return nil, nil, nil, err
	}
	return w, w, func() {}, nil
}
