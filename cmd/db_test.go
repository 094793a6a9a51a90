package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/andresmejia3/faceid/internal/config"
	"github.com/andresmejia3/faceid/internal/pgstore"
	"github.com/andresmejia3/faceid/internal/store"
	"github.com/andresmejia3/faceid/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestMirrorAddAndLookup appends through the add path with mirroring on and
// reads the rows back through lookup --from-db. It requires Docker.
func TestMirrorAddAndLookup(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// testcontainers panics when the Docker socket is missing
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("faceid_cmd_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(silentLogger{}),
	)
	require.NoError(t, err)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg = config.Defaults()
	cfg.DB = connStr
	cfg.Store = filepath.Join(t.TempDir(), "encodings.csv")
	s := store.New(cfg.Store)
	require.NoError(t, s.WriteAll(nil))

	first := types.Encoding{0.5, -1, 0.25}
	second := types.Encoding{9, 9, 9}
	_, err = captureStdout(t, func() error { return appendEncoding(ctx, s, "me.jpg", first, true) })
	require.NoError(t, err)
	_, err = captureStdout(t, func() error { return appendEncoding(ctx, s, "me.jpg", second, true) })
	require.NoError(t, err)
	_, err = captureStdout(t, func() error { return appendEncoding(ctx, s, "csv-only.jpg", second, false) })
	require.NoError(t, err)

	table, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, table, 3)

	db, err := pgstore.New(ctx, connStr)
	require.NoError(t, err)
	n, err := db.Count(ctx)
	db.Close(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "only mirrored appends reach the database")

	out, err := captureStdout(t, func() error { return runLookup(ctx, "me.jpg", true) })
	require.NoError(t, err)
	assert.Equal(t, "[0.5 -1 0.25]\n", out, "the oldest row wins, as in the CSV store")

	_, err = captureStdout(t, func() error { return runLookup(ctx, "csv-only.jpg", true) })
	var ee exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.code)
}

type silentLogger struct{}

func (silentLogger) Printf(format string, v ...interface{}) {}
