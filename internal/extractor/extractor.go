// Package extractor is the boundary to the face feature extractor: the
// component that turns images into encodings and finds face, eye, nose and
// mouth regions.
package extractor

import (
	"context"
	"errors"

	"github.com/andresmejia3/faceid/internal/gate"
	"github.com/andresmejia3/faceid/internal/types"
)

// ErrNoFaceDetected is returned by Encode when the image contains no face.
var ErrNoFaceDetected = errors.New("no face detected")

// Encoder turns an encoded image (jpeg, png, ...) into the encoding of its
// first detected face. Additional faces are ignored.
type Encoder interface {
	Encode(ctx context.Context, image []byte) (types.Encoding, error)
}

// Extractor is the full capability set used by the CLI.
type Extractor interface {
	Encoder
	gate.FaceDetector
	gate.FeatureDetector
	Close() error
}
