// Package codec converts face encodings to and from the bracketed text form
// stored in the encodings CSV, e.g. "[-0.0912 0.1204 0.0311 ...]".
package codec

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/andresmejia3/faceid/internal/types"
)

// ErrMalformedEncoding is returned when text cannot be parsed back into an encoding.
var ErrMalformedEncoding = errors.New("malformed encoding")

// Encode formats a vector as "[v0 v1 ... vn]". The shortest representation that
// parses back to the same float64 is used, so Decode(Encode(v)) is exact.
func Encode(vec types.Encoding) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// Decode parses the bracketed form back into a vector. Brackets anywhere in the
// text are dropped and tokens may be separated by any whitespace, which also
// covers the multi-line output numpy produces for long arrays.
func Decode(s string) (types.Encoding, error) {
	s = strings.NewReplacer("[", " ", "]", " ").Replace(s)
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no values", ErrMalformedEncoding)
	}

	vec := make(types.Encoding, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: token %d %q", ErrMalformedEncoding, i, f)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: token %d is not finite", ErrMalformedEncoding, i)
		}
		vec[i] = v
	}
	return vec, nil
}
