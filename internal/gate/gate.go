// Package gate decides whether a still frame is good enough to become a
// reference photo: exactly one face, and inside it the required eyes, one nose
// and one mouth.
package gate

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/andresmejia3/faceid/internal/frame"
	"github.com/andresmejia3/faceid/internal/types"
)

var (
	// ErrCascadeLoad is matched by detector errors when a model file fails to load.
	// Capture gives up on it instead of trying the next frame.
	ErrCascadeLoad = errors.New("cascade failed to load")
	// ErrSessionClosed is returned when a frame is offered after one was accepted.
	ErrSessionClosed = errors.New("capture session already accepted a frame")
	// ErrSourceExhausted is returned when the frame source ends before acceptance.
	ErrSourceExhausted = errors.New("frame source exhausted")
)

// FaceDetector finds face regions in a grayscale frame.
type FaceDetector interface {
	DetectFaces(ctx context.Context, gray *image.Gray) ([]types.Box, error)
}

// FeatureDetector finds one kind of sub-feature inside a face region.
type FeatureDetector interface {
	DetectFeature(ctx context.Context, kind types.Feature, region *image.Gray) ([]types.Box, error)
}

// State is a step of the per-frame evaluation.
type State int

const (
	Scanning State = iota
	FaceFound
	FeaturesChecked
	Accepted
	Rejected
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case FaceFound:
		return "face-found"
	case FeaturesChecked:
		return "features-checked"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EyeRule selects how the eye count is compared against Requirements.Eyes.
type EyeRule int

const (
	// Exactly requires the eye count to equal Requirements.Eyes.
	Exactly EyeRule = iota
	// AtLeast accepts any count >= Requirements.Eyes.
	AtLeast
)

// Requirements are the feature counts a frame must show.
type Requirements struct {
	Eyes    int
	EyeRule EyeRule
	Noses   int
	Mouths  int
}

// DefaultRequirements: one face with exactly two eyes, one nose and one mouth.
func DefaultRequirements() Requirements {
	return Requirements{Eyes: 2, EyeRule: Exactly, Noses: 1, Mouths: 1}
}

func (r Requirements) eyesOK(n int) bool {
	if r.EyeRule == AtLeast {
		return n >= r.Eyes
	}
	return n == r.Eyes
}

// FeatureSet holds the counts observed in one frame.
type FeatureSet struct {
	Faces  int
	Eyes   int
	Noses  int
	Mouths int
}

// Evaluation is the outcome of a single pass over one frame.
type Evaluation struct {
	State    State
	Features FeatureSet
	Face     types.Box
	Reason   string
}

// Gate runs the face/eyes/nose/mouth checks with injected detectors.
type Gate struct {
	faces    FaceDetector
	features FeatureDetector
	req      Requirements
}

// New creates a gate. Detectors are typically a single extractor implementing both interfaces.
func New(faces FaceDetector, features FeatureDetector, req Requirements) *Gate {
	return &Gate{faces: faces, features: features, req: req}
}

// Requirements returns the counts this gate enforces.
func (g *Gate) Requirements() Requirements {
	return g.req
}

// Evaluate inspects one frame. A detector error aborts the pass; the
// returned evaluation is then Rejected with the partial counts seen so far.
func (g *Gate) Evaluate(ctx context.Context, img image.Image) (Evaluation, error) {
	ev := Evaluation{State: Scanning}
	gray := frame.Gray(img)

	faces, err := g.faces.DetectFaces(ctx, gray)
	if err != nil {
		return reject(ev, "face detection failed"), fmt.Errorf("detect faces: %w", err)
	}
	ev.Features.Faces = len(faces)
	if len(faces) != 1 {
		return reject(ev, fmt.Sprintf("expected exactly 1 face, found %d", len(faces))), nil
	}
	ev.State = FaceFound
	ev.Face = faces[0]

	roi := frame.Crop(gray, ev.Face)
	if roi.Bounds().Empty() {
		return reject(ev, fmt.Sprintf("face box %v lies outside the frame", ev.Face.Rect())), nil
	}

	eyes, err := g.features.DetectFeature(ctx, types.Eye, roi)
	if err != nil {
		return reject(ev, "eye detection failed"), fmt.Errorf("detect eyes: %w", err)
	}
	ev.Features.Eyes = len(eyes)
	if !g.req.eyesOK(len(eyes)) {
		return reject(ev, fmt.Sprintf("eye count %d does not satisfy requirement %d", len(eyes), g.req.Eyes)), nil
	}
	ev.State = FeaturesChecked

	noses, err := g.features.DetectFeature(ctx, types.Nose, roi)
	if err != nil {
		return reject(ev, "nose detection failed"), fmt.Errorf("detect nose: %w", err)
	}
	ev.Features.Noses = len(noses)
	if len(noses) != g.req.Noses {
		return reject(ev, fmt.Sprintf("expected %d nose, found %d", g.req.Noses, len(noses))), nil
	}

	mouths, err := g.features.DetectFeature(ctx, types.Mouth, roi)
	if err != nil {
		return reject(ev, "mouth detection failed"), fmt.Errorf("detect mouth: %w", err)
	}
	ev.Features.Mouths = len(mouths)
	if len(mouths) != g.req.Mouths {
		return reject(ev, fmt.Sprintf("expected %d mouth, found %d", g.req.Mouths, len(mouths))), nil
	}

	ev.State = Accepted
	return ev, nil
}

func reject(ev Evaluation, reason string) Evaluation {
	ev.State = Rejected
	ev.Reason = reason
	return ev
}

// Validate runs the same checks on an image file without ever writing a photo.
// A missing or undecodable file yields false with the error.
func (g *Gate) Validate(ctx context.Context, path string) (bool, error) {
	img, _, err := frame.Open(path)
	if err != nil {
		return false, err
	}
	ev, err := g.Evaluate(ctx, img)
	if err != nil {
		return false, err
	}
	return ev.State == Accepted, nil
}
