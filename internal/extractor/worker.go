package extractor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/andresmejia3/faceid/internal/frame"
	"github.com/andresmejia3/faceid/internal/gate"
	"github.com/andresmejia3/faceid/internal/types"
	"github.com/andresmejia3/faceid/internal/utils"
	"github.com/andresmejia3/faceid/internal/worker"
)

// client is the slice of *worker.PythonWorker the adapter needs.
type client interface {
	Encode(img []byte) (types.Encoding, error)
	DetectFaces(png []byte) ([]types.Box, error)
	DetectFeature(kind types.Feature, png []byte) ([]types.Box, error)
	LoadCascades() error
	Close()
}

// Worker adapts a Python worker process to the Extractor interface. Calls are
// serialized because the worker handles one request at a time.
type Worker struct {
	mu      sync.Mutex
	w       client
	cmd     *utils.SafeCommand
	maxSide int
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithMaxSide downscales frames so their longest side is at most n pixels
// before face detection. Boxes are mapped back to full-size coordinates.
func WithMaxSide(n int) WorkerOption {
	return func(w *Worker) { w.maxSide = n }
}

// NewWorker starts the Python worker process.
func NewWorker(ctx context.Context, cfg worker.Config, opts ...WorkerOption) (*Worker, error) {
	pw, err := worker.NewPythonWorker(ctx, 0, cfg)
	if err != nil {
		return nil, err
	}
	w := &Worker{w: pw, cmd: pw.Cmd}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Cmd exposes the underlying process so callers can dump its stderr on failure.
func (w *Worker) Cmd() *utils.SafeCommand {
	return w.cmd
}

func (w *Worker) Encode(ctx context.Context, img []byte) (types.Encoding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	vec, err := w.w.Encode(img)
	if errors.Is(err, worker.ErrNoFace) || (err == nil && len(vec) == 0) {
		return nil, ErrNoFaceDetected
	}
	return vec, err
}

func (w *Worker) DetectFaces(ctx context.Context, gray *image.Gray) ([]types.Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		src   image.Image = gray
		scale             = 1.0
	)
	if w.maxSide > 0 {
		src, scale = frame.Downscale(gray, w.maxSide)
	}
	png, err := frame.EncodePNG(src)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	w.mu.Lock()
	boxes, err := w.w.DetectFaces(png)
	w.mu.Unlock()
	if err != nil || scale == 1 {
		return boxes, cascadeErr(err)
	}

	for i, b := range boxes {
		boxes[i] = types.Box{
			X: int(math.Round(float64(b.X) / scale)),
			Y: int(math.Round(float64(b.Y) / scale)),
			W: int(math.Round(float64(b.W) / scale)),
			H: int(math.Round(float64(b.H) / scale)),
		}
	}
	return boxes, nil
}

func (w *Worker) DetectFeature(ctx context.Context, kind types.Feature, region *image.Gray) ([]types.Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	png, err := frame.EncodePNG(region)
	if err != nil {
		return nil, fmt.Errorf("encode region: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	boxes, err := w.w.DetectFeature(kind, png)
	return boxes, cascadeErr(err)
}

// LoadCascades checks that the worker can load every detector it will be
// asked to run. Failures match gate.ErrCascadeLoad.
func (w *Worker) LoadCascades(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return cascadeErr(w.w.LoadCascades())
}

func cascadeErr(err error) error {
	if errors.Is(err, worker.ErrCascadeLoad) {
		return fmt.Errorf("%w: %w", gate.ErrCascadeLoad, err)
	}
	return err
}

func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.w.Close()
	return nil
}
