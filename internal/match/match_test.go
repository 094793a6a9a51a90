package match

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/faceid/internal/extractor"
	"github.com/andresmejia3/faceid/internal/store"
	"github.com/andresmejia3/faceid/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(n int, v float64) types.Encoding {
	vec := make(types.Encoding, n)
	for i := range vec {
		vec[i] = v
	}
	return vec
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b types.Encoding
		want float64
	}{
		{"identical", types.Encoding{0.1, 0.2}, types.Encoding{0.1, 0.2}, 0},
		{"3-4-5", types.Encoding{0, 0}, types.Encoding{3, 4}, 5},
		{"length mismatch", types.Encoding{1}, types.Encoding{1, 2}, math.Inf(1)},
		{"empty", types.Encoding{}, types.Encoding{}, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if math.IsInf(tt.want, 1) {
				assert.True(t, math.IsInf(got, 1))
				return
			}
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestMatchThresholdBoundary(t *testing.T) {
	e := New(nil)

	v := filled(128, 0.05)
	assert.Equal(t, Match, e.Match(v, v))

	assert.Equal(t, NoMatch, e.Match(filled(128, 0), filled(128, 10)))

	// distance exactly at the threshold is still a match
	assert.Equal(t, Match, e.Match(types.Encoding{0}, types.Encoding{DefaultThreshold}))
	assert.Equal(t, NoMatch, e.Match(types.Encoding{0}, types.Encoding{DefaultThreshold + 1e-9}))
}

func TestMatchSymmetry(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	e := New(nil, WithThreshold(0.4))
	for i := 0; i < 200; i++ {
		a, b := make(types.Encoding, 8), make(types.Encoding, 8)
		for j := range a {
			a[j] = r.Float64() * 0.3
			b[j] = r.Float64() * 0.3
		}
		require.Equal(t, e.Match(a, b), e.Match(b, a))
	}
}

func TestWithThreshold(t *testing.T) {
	assert.Equal(t, 0.5, New(nil, WithThreshold(0.5)).Threshold())
	assert.Equal(t, DefaultThreshold, New(nil, WithThreshold(0)).Threshold())
}

// fixture writes image files whose content is the Static encoder key.
func fixture(t *testing.T) (string, *extractor.Static) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{
		"ouail.jpg":  "ouail",
		"ouail2.jpg": "ouail-again",
		"messi.jpg":  "messi",
		"cat.jpg":    "cat",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir, &extractor.Static{Encodings: map[string]types.Encoding{
		"ouail":       filled(128, 0.10),
		"ouail-again": filled(128, 0.11),
		"messi":       filled(128, 0.30),
	}}
}

func TestMatchByPath(t *testing.T) {
	dir, enc := fixture(t)
	e := New(enc)
	ctx := context.Background()
	p := func(name string) string { return filepath.Join(dir, name) }

	res, err := e.MatchByPath(ctx, p("ouail.jpg"), p("ouail2.jpg"))
	require.NoError(t, err)
	assert.Equal(t, Match, res.Decision)

	res, err = e.MatchByPath(ctx, p("ouail.jpg"), p("messi.jpg"))
	require.NoError(t, err)
	assert.Equal(t, NoMatch, res.Decision)

	res, err = e.MatchByPath(ctx, p("missing.jpg"), p("messi.jpg"))
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.Equal(t, Indeterminate, res.Decision)
	assert.Equal(t, 4, enc.Encodes(), "missing files must be detected before any extraction")

	res, err = e.MatchByPath(ctx, p("cat.jpg"), p("messi.jpg"))
	assert.ErrorIs(t, err, extractor.ErrNoFaceDetected)
	assert.Equal(t, Indeterminate, res.Decision)
}

func TestMatchByName(t *testing.T) {
	dir, enc := fixture(t)
	storePath := filepath.Join(dir, "encodings.csv")
	require.NoError(t, store.New(storePath).WriteAll(store.Table{
		{Name: "ouail.jpg", Encoding: filled(128, 0.10)},
		{Name: "messi.jpg", Encoding: filled(128, 0.30)},
	}))

	e := New(enc)
	ctx := context.Background()
	unknown := filepath.Join(dir, "ouail2.jpg")

	res, err := e.MatchByName(ctx, "ouail.jpg", unknown, storePath)
	require.NoError(t, err)
	assert.Equal(t, Match, res.Decision)

	res, err = e.MatchByName(ctx, "messi.jpg", unknown, storePath)
	require.NoError(t, err)
	assert.Equal(t, NoMatch, res.Decision)

	res, err = e.MatchByName(ctx, "nobody.jpg", unknown, storePath)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, Indeterminate, res.Decision)

	res, err = e.MatchByName(ctx, "ouail.jpg", unknown, filepath.Join(dir, "missing.csv"))
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.Equal(t, Indeterminate, res.Decision)

	res, err = e.MatchByName(ctx, "ouail.jpg", filepath.Join(dir, "cat.jpg"), storePath)
	assert.ErrorIs(t, err, extractor.ErrNoFaceDetected)
	assert.Equal(t, Indeterminate, res.Decision)
}

func TestBest(t *testing.T) {
	e := New(nil)
	table := store.Table{
		{Name: "far", Encoding: filled(4, 5)},
		{Name: "near", Encoding: filled(4, 0.1)},
		{Name: "near-dup", Encoding: filled(4, 0.1)},
	}

	name, res, ok := e.Best(filled(4, 0.12), table)
	assert.True(t, ok)
	assert.Equal(t, "near", name)
	assert.Equal(t, Match, res.Decision)

	_, res, ok = e.Best(filled(4, -3), table)
	assert.False(t, ok)
	assert.Equal(t, NoMatch, res.Decision)

	_, _, ok = e.Best(filled(4, 0), nil)
	assert.False(t, ok)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "match", Match.String())
	assert.Equal(t, "no-match", NoMatch.String())
	assert.Equal(t, "indeterminate", Indeterminate.String())
}
