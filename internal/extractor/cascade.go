//go:build gocv

package extractor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/andresmejia3/faceid/internal/gate"
	"github.com/andresmejia3/faceid/internal/types"
	"gocv.io/x/gocv"
)

// CascadeFiles names the Haar cascade XML files inside the cascade directory.
type CascadeFiles struct {
	Face  string
	Eye   string
	Nose  string
	Mouth string
}

// Cascade detects faces and sub-features natively with OpenCV Haar cascades.
// It has no encoder; pair it with a Worker for encodings.
type Cascade struct {
	mu       sync.Mutex
	face     gocv.CascadeClassifier
	features map[types.Feature]*gocv.CascadeClassifier
	all      []*gocv.CascadeClassifier
}

// NewCascade loads all four cascades from dir. It fails with gate.ErrCascadeLoad
// if any of them cannot be loaded.
func NewCascade(dir string, files CascadeFiles) (*Cascade, error) {
	c := &Cascade{features: make(map[types.Feature]*gocv.CascadeClassifier)}

	load := func(name string) (*gocv.CascadeClassifier, error) {
		cl := gocv.NewCascadeClassifier()
		path := filepath.Join(dir, name)
		if !cl.Load(path) {
			cl.Close()
			return nil, fmt.Errorf("%w: %s", gate.ErrCascadeLoad, path)
		}
		c.all = append(c.all, &cl)
		return &cl, nil
	}

	face, err := load(files.Face)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.face = *face

	for kind, name := range map[types.Feature]string{types.Eye: files.Eye, types.Nose: files.Nose, types.Mouth: files.Mouth} {
		cl, err := load(name)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.features[kind] = cl
	}
	return c, nil
}

func (c *Cascade) DetectFaces(ctx context.Context, gray *image.Gray) ([]types.Box, error) {
	mat, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	// scaleFactor 1.3, minNeighbors 5: the values the reference photos were tuned with.
	rects := c.face.DetectMultiScaleWithParams(mat, 1.3, 5, 0, image.Point{}, image.Point{})
	return toBoxes(rects), ctx.Err()
}

func (c *Cascade) DetectFeature(ctx context.Context, kind types.Feature, region *image.Gray) ([]types.Box, error) {
	cl, ok := c.features[kind]
	if !ok {
		return nil, errors.New("no cascade for " + kind.String())
	}
	mat, err := gocv.ImageGrayToMatGray(region)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	return toBoxes(cl.DetectMultiScale(mat)), ctx.Err()
}

func (c *Cascade) Close() error {
	for _, cl := range c.all {
		cl.Close()
	}
	c.all = nil
	return nil
}

func toBoxes(rects []image.Rectangle) []types.Box {
	boxes := make([]types.Box, len(rects))
	for i, r := range rects {
		boxes[i] = types.Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
	}
	return boxes
}
