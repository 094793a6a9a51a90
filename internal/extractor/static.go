package extractor

import (
	"context"
	"image"
	"sync"

	"github.com/andresmejia3/faceid/internal/types"
)

// Static is a deterministic in-memory extractor. Encodings are looked up by
// the raw image content; unknown content has no face. Detection returns the
// configured boxes regardless of input.
type Static struct {
	Encodings map[string]types.Encoding
	Faces     []types.Box
	Features  map[types.Feature]int

	mu      sync.Mutex
	encodes int
}

func (s *Static) Encode(ctx context.Context, img []byte) (types.Encoding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.encodes++
	s.mu.Unlock()

	vec, ok := s.Encodings[string(img)]
	if !ok || len(vec) == 0 {
		return nil, ErrNoFaceDetected
	}
	return append(types.Encoding(nil), vec...), nil
}

// Encodes reports how many times Encode was called.
func (s *Static) Encodes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encodes
}

func (s *Static) DetectFaces(ctx context.Context, gray *image.Gray) ([]types.Box, error) {
	return append([]types.Box(nil), s.Faces...), ctx.Err()
}

func (s *Static) DetectFeature(ctx context.Context, kind types.Feature, region *image.Gray) ([]types.Box, error) {
	return make([]types.Box, s.Features[kind]), ctx.Err()
}

func (s *Static) Close() error { return nil }
