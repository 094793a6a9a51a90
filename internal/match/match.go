// Package match decides whether two face encodings belong to the same person.
package match

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/andresmejia3/faceid/internal/extractor"
	"github.com/andresmejia3/faceid/internal/frame"
	"github.com/andresmejia3/faceid/internal/store"
	"github.com/andresmejia3/faceid/internal/types"
	"github.com/rs/zerolog"
)

// DefaultThreshold is the recommended tolerance for dlib 128-d encodings.
const DefaultThreshold = 0.6

// ErrFileNotFound is returned when a compared image or the store file is missing.
var ErrFileNotFound = frame.ErrFileNotFound

// Decision is the outcome of a comparison.
type Decision int

const (
	Indeterminate Decision = iota
	Match
	NoMatch
)

func (d Decision) String() string {
	switch d {
	case Match:
		return "match"
	case NoMatch:
		return "no-match"
	default:
		return "indeterminate"
	}
}

// Result carries the decision and, when one was computed, the distance.
type Result struct {
	Decision Decision
	Distance float64
}

// Engine compares encodings against a fixed threshold.
type Engine struct {
	enc       extractor.Encoder
	threshold float64
	log       zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold overrides DefaultThreshold. Non-positive values are ignored.
func WithThreshold(t float64) Option {
	return func(e *Engine) {
		if t > 0 {
			e.threshold = t
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an engine. enc may be nil when only Match/Compare are used.
func New(enc extractor.Encoder, opts ...Option) *Engine {
	e := &Engine{enc: enc, threshold: DefaultThreshold, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the configured maximum distance for a match.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Distance is the Euclidean distance between two encodings. Encodings of
// different length, or empty ones, are infinitely far apart.
func Distance(a, b types.Encoding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Compare returns Match when the distance is within the threshold.
func (e *Engine) Compare(a, b types.Encoding) Result {
	d := Distance(a, b)
	if d <= e.threshold {
		return Result{Decision: Match, Distance: d}
	}
	return Result{Decision: NoMatch, Distance: d}
}

// Match is Compare without the distance.
func (e *Engine) Match(a, b types.Encoding) Decision {
	return e.Compare(a, b).Decision
}

// MatchByName compares the stored encoding for name against the face in unknownPath.
// Any failure to obtain either encoding yields Indeterminate with the cause.
func (e *Engine) MatchByName(ctx context.Context, name, unknownPath, storePath string) (Result, error) {
	if !exists(unknownPath) || !exists(storePath) {
		return indeterminate(fmt.Errorf("%w: image file or store file missing (%s, %s)", ErrFileNotFound, unknownPath, storePath))
	}

	known, err := store.New(storePath, store.WithLogger(e.log)).Lookup(name)
	if err != nil {
		return indeterminate(err)
	}
	unknown, err := e.encodeFile(ctx, unknownPath)
	if err != nil {
		return indeterminate(err)
	}
	return e.Compare(known, unknown), nil
}

// MatchByPath extracts both encodings directly from image files and compares them.
func (e *Engine) MatchByPath(ctx context.Context, knownPath, unknownPath string) (Result, error) {
	if !exists(knownPath) || !exists(unknownPath) {
		return indeterminate(fmt.Errorf("%w: one or both image files missing (%s, %s)", ErrFileNotFound, knownPath, unknownPath))
	}

	known, err := e.encodeFile(ctx, knownPath)
	if err != nil {
		return indeterminate(err)
	}
	unknown, err := e.encodeFile(ctx, unknownPath)
	if err != nil {
		return indeterminate(err)
	}
	return e.Compare(known, unknown), nil
}

// Best returns the nearest record of table within the threshold. Ties keep
// the earliest record, consistent with first-match lookups.
func (e *Engine) Best(query types.Encoding, table store.Table) (string, Result, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, rec := range table {
		if d := Distance(query, rec.Encoding); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best == -1 || bestDist > e.threshold {
		return "", Result{Decision: NoMatch, Distance: bestDist}, false
	}
	return table[best].Name, Result{Decision: Match, Distance: bestDist}, true
}

func (e *Engine) encodeFile(ctx context.Context, path string) (types.Encoding, error) {
	if e.enc == nil {
		return nil, errors.New("match engine has no encoder")
	}
	data, err := frame.ReadFile(path)
	if err != nil {
		return nil, err
	}
	vec, err := e.enc.Encode(ctx, data)
	if err != nil {
		e.log.Debug().Err(err).Str("image", path).Msg("encoding failed")
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vec, nil
}

func indeterminate(err error) (Result, error) {
	return Result{Decision: Indeterminate, Distance: math.NaN()}, err
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
