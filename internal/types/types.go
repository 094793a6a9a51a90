package types

import "image"

// Encoding is a face signature produced by the extractor (128-d for dlib models).
type Encoding []float64

// Float32 converts the encoding for libraries that index float32 vectors.
func (e Encoding) Float32() []float32 {
	out := make([]float32, len(e))
	for i, v := range e {
		out[i] = float32(v)
	}
	return out
}

// Box is a detection bounding box in pixel coordinates of the image it was found in.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Area returns the box area in pixels.
func (b Box) Area() int {
	return b.W * b.H
}

// Feature identifies which sub-feature detector to run inside a face region.
type Feature byte

const (
	Eye Feature = iota + 1
	Nose
	Mouth
)

func (f Feature) String() string {
	switch f {
	case Eye:
		return "eye"
	case Nose:
		return "nose"
	case Mouth:
		return "mouth"
	default:
		return "unknown"
	}
}
