// Package store keeps face encodings in a flat CSV file with the header
// "Image Name,encodings" and one "<image name>,[v0 v1 ...]" row per face.
//
// The store does not enforce unique names. Appending a name that already
// exists is allowed, but Lookup and Table.Get always resolve to the first row.
// There is no locking: callers must serialize writers themselves.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/faceid/internal/codec"
	"github.com/andresmejia3/faceid/internal/types"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned by Lookup when no row has the requested name.
	ErrNotFound = errors.New("encoding not found")
	// ErrStoreNotFound is returned when the store file does not exist. It also matches ErrNotFound.
	ErrStoreNotFound error = &storeNotFoundError{}
)

type storeNotFoundError struct{}

func (*storeNotFoundError) Error() string        { return "encoding store does not exist" }
func (*storeNotFoundError) Is(target error) bool { return target == ErrNotFound }

// Header is the first row of every store file.
var Header = []string{"Image Name", "encodings"}

// Record is one row of the store.
type Record struct {
	Name     string
	Encoding types.Encoding
}

// Table is an ordered set of records, in file or insertion order.
type Table []Record

// Get returns the encoding of the first record named name.
func (t Table) Get(name string) (types.Encoding, bool) {
	for _, r := range t {
		if r.Name == name {
			return r.Encoding, true
		}
	}
	return nil, false
}

// Names returns the record names in order, duplicates included.
func (t Table) Names() []string {
	names := make([]string, len(t))
	for i, r := range t {
		names[i] = r.Name
	}
	return names
}

// Store is a CSV-backed encoding table at a fixed path.
type Store struct {
	path string
	log  zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report skipped rows.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New returns a store for path. The file is not touched until an operation runs.
func New(path string, opts ...Option) *Store {
	s := &Store{path: path, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the backing file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *Store) open() (*os.File, *csv.Reader, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s", ErrStoreNotFound, s.path)
	}
	if err != nil {
		return nil, nil, err
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // bad rows are skipped, not fatal
	r.ReuseRecord = true

	// Skip the header row. An empty file simply has no rows.
	if _, err := r.Read(); err != nil && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, nil, fmt.Errorf("read header of %s: %w", s.path, err)
	}
	return f, r, nil
}

// Load reads every data row. Malformed rows are logged and skipped.
func (s *Store) Load() (Table, error) {
	f, r, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var table Table
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			s.log.Warn().Err(err).Str("store", s.path).Int("line", pe.Line).Msg("skipping unreadable row")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.path, err)
		}
		line, _ := r.FieldPos(0)
		if len(row) != 2 {
			s.log.Warn().Str("store", s.path).Int("line", line).Int("fields", len(row)).Msg("skipping row with wrong column count")
			continue
		}
		vec, err := codec.Decode(row[1])
		if err != nil {
			s.log.Warn().Err(err).Str("store", s.path).Int("line", line).Str("name", row[0]).Msg("skipping malformed encoding")
			continue
		}
		table = append(table, Record{Name: row[0], Encoding: vec})
	}

	s.log.Debug().Str("store", s.path).Int("rows", len(table)).Msg("store loaded")
	return table, nil
}

// Lookup streams the file and returns the encoding of the first row named name.
func (s *Store) Lookup(name string) (types.Encoding, error) {
	f, r, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %q in %s", ErrNotFound, name, s.path)
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.path, err)
		}
		if len(row) < 2 || row[0] != name {
			continue
		}
		vec, err := codec.Decode(row[1])
		if err != nil {
			return nil, fmt.Errorf("row %q in %s: %w", name, s.path, err)
		}
		return vec, nil
	}
}

// WriteAll replaces the file with the header and one row per record, in order.
func (s *Store) WriteAll(records Table) error {
	f, err := os.Create(s.path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		f.Close()
		return err
	}
	for _, rec := range records {
		if err := w.Write([]string{rec.Name, codec.Encode(rec.Encoding)}); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Append adds one row at the end of an existing store. It never creates the
// file: a missing store is a configuration error, use WriteAll first.
func (s *Store) Append(name string, vec types.Encoding) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrStoreNotFound, s.path)
	}
	if err != nil {
		return err
	}

	// Files edited by hand may lack the final newline.
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err == nil && last[0] != '\n' {
			if _, err := f.Write([]byte{'\n'}); err != nil {
				f.Close()
				return err
			}
		}
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{name, codec.Encode(vec)}); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
