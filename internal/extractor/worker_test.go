package extractor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/andresmejia3/faceid/internal/gate"
	"github.com/andresmejia3/faceid/internal/types"
	"github.com/andresmejia3/faceid/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	vec        types.Encoding
	err        error
	faces      []types.Box
	cascadeErr error
	closed     bool
	facePNGs   [][]byte
}

func (f *fakeClient) Encode(img []byte) (types.Encoding, error) { return f.vec, f.err }

func (f *fakeClient) DetectFaces(png []byte) ([]types.Box, error) {
	f.facePNGs = append(f.facePNGs, png)
	return append([]types.Box(nil), f.faces...), nil
}

func (f *fakeClient) DetectFeature(kind types.Feature, png []byte) ([]types.Box, error) {
	if f.cascadeErr != nil {
		return nil, f.cascadeErr
	}
	return make([]types.Box, int(kind)), nil
}

func (f *fakeClient) LoadCascades() error { return f.cascadeErr }

func (f *fakeClient) Close() { f.closed = true }

func TestWorkerEncodeMapsNoFace(t *testing.T) {
	w := &Worker{w: &fakeClient{err: worker.ErrNoFace}}
	_, err := w.Encode(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, ErrNoFaceDetected)

	w = &Worker{w: &fakeClient{vec: types.Encoding{}}}
	_, err = w.Encode(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, ErrNoFaceDetected)

	boom := errors.New("pipe closed")
	w = &Worker{w: &fakeClient{err: boom}}
	_, err = w.Encode(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, boom)
}

func TestWorkerDetectFacesRescales(t *testing.T) {
	fc := &fakeClient{faces: []types.Box{{X: 10, Y: 5, W: 20, H: 20}}}
	w := &Worker{w: fc}
	WithMaxSide(100)(w)

	boxes, err := w.DetectFaces(context.Background(), image.NewGray(image.Rect(0, 0, 400, 200)))
	require.NoError(t, err)
	require.Len(t, fc.facePNGs, 1)
	assert.Equal(t, []types.Box{{X: 40, Y: 20, W: 80, H: 80}}, boxes)
}

func TestWorkerDetectFeatureAndClose(t *testing.T) {
	fc := &fakeClient{}
	w := &Worker{w: fc}

	boxes, err := w.DetectFeature(context.Background(), types.Nose, image.NewGray(image.Rect(0, 0, 8, 8)))
	require.NoError(t, err)
	assert.Len(t, boxes, int(types.Nose))

	require.NoError(t, w.Close())
	assert.True(t, fc.closed)
}

func TestWorkerCascadeLoadFailure(t *testing.T) {
	cause := fmt.Errorf("%w: failed to load cascade haarcascade_mcs_mouth.xml", worker.ErrCascadeLoad)
	w := &Worker{w: &fakeClient{cascadeErr: cause}}

	err := w.LoadCascades(context.Background())
	assert.ErrorIs(t, err, gate.ErrCascadeLoad)
	assert.ErrorIs(t, err, worker.ErrCascadeLoad)
	assert.Contains(t, err.Error(), "haarcascade_mcs_mouth.xml")

	_, err = w.DetectFeature(context.Background(), types.Mouth, image.NewGray(image.Rect(0, 0, 8, 8)))
	assert.ErrorIs(t, err, gate.ErrCascadeLoad)

	require.NoError(t, (&Worker{w: &fakeClient{}}).LoadCascades(context.Background()))
}

func TestStatic(t *testing.T) {
	s := &Static{Encodings: map[string]types.Encoding{"a": {1, 2}}}

	vec, err := s.Encode(context.Background(), []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, types.Encoding{1, 2}, vec)

	_, err = s.Encode(context.Background(), []byte("cat"))
	assert.ErrorIs(t, err, ErrNoFaceDetected)
	assert.Equal(t, 2, s.Encodes())
}
