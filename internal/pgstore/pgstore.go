// Package pgstore mirrors the CSV encoding store into PostgreSQL with pgvector.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresmejia3/faceid/internal/store"
	"github.com/andresmejia3/faceid/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Store manages the PostgreSQL connection and pgvector operations.
type Store struct {
	conn *pgx.Conn
}

// Match is a row returned by Nearest.
type Match struct {
	ID       int64
	Name     string
	Distance float64
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	// The vector type only exists once the extension is created.
	if err := pgxvec.RegisterTypes(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to register vector type: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the encodings table and vector extension if they don't exist.
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS face_encodings (
			id BIGSERIAL PRIMARY KEY,
			image_name TEXT NOT NULL,
			embedding VECTOR NOT NULL,
			synced_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS face_encodings_image_name_idx ON face_encodings (image_name);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// Replace swaps the whole table for the given records in one transaction,
// keeping their order so that ids follow file order.
func (s *Store) Replace(ctx context.Context, table store.Table, progress func()) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE face_encodings RESTART IDENTITY"); err != nil {
		return err
	}
	for _, rec := range table {
		if _, err := tx.Exec(ctx,
			"INSERT INTO face_encodings (image_name, embedding) VALUES ($1, $2)",
			rec.Name, pgvector.NewVector(rec.Encoding.Float32()),
		); err != nil {
			return fmt.Errorf("insert %q: %w", rec.Name, err)
		}
		if progress != nil {
			progress()
		}
	}
	return tx.Commit(ctx)
}

// Append inserts a single row. Duplicate names are allowed.
func (s *Store) Append(ctx context.Context, name string, vec types.Encoding) error {
	_, err := s.conn.Exec(ctx,
		"INSERT INTO face_encodings (image_name, embedding) VALUES ($1, $2)",
		name, pgvector.NewVector(vec.Float32()),
	)
	return err
}

// Lookup returns the embedding of the oldest row named name.
func (s *Store) Lookup(ctx context.Context, name string) (types.Encoding, error) {
	var v pgvector.Vector
	err := s.conn.QueryRow(ctx,
		"SELECT embedding FROM face_encodings WHERE image_name = $1 ORDER BY id LIMIT 1", name,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return fromFloat32(v.Slice()), nil
}

// Nearest searches for the closest row by Euclidean distance (pgvector <->).
// Rows of a different dimension are ignored. ok is false when nothing lies
// within threshold.
func (s *Store) Nearest(ctx context.Context, vec types.Encoding, threshold float64) (Match, bool, error) {
	q := pgvector.NewVector(vec.Float32())
	query := `
		SELECT id, image_name, embedding <-> $1 AS dist
		FROM face_encodings
		WHERE vector_dims(embedding) = $2
		ORDER BY dist ASC, id ASC
		LIMIT 1`

	var m Match
	err := s.conn.QueryRow(ctx, query, q, len(vec)).Scan(&m.ID, &m.Name, &m.Distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Match{}, false, nil
	}
	if err != nil {
		return Match{}, false, err
	}
	if m.Distance > threshold {
		return m, false, nil
	}
	return m, true, nil
}

// Count returns the number of mirrored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.conn.QueryRow(ctx, "SELECT COUNT(*) FROM face_encodings").Scan(&n)
	return n, err
}

// Reset drops the encodings table. The next New recreates it.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, "DROP TABLE IF EXISTS face_encodings CASCADE")
	return err
}

func fromFloat32(v []float32) types.Encoding {
	out := make(types.Encoding, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
