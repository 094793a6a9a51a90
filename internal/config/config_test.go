package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andresmejia3/faceid/internal/gate"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "encodings.csv", cfg.Store)
	assert.Equal(t, 0.6, cfg.Threshold)
	assert.Equal(t, gate.DefaultRequirements(), cfg.Requirements())
	assert.Equal(t, "python/worker.py", cfg.Worker.Script)
	assert.NoError(t, cfg.Validate())
}

func TestLoadLayering(t *testing.T) {
	t.Setenv("FACEID_GATE_EYES", "1")
	t.Setenv("FACEID_THRESHOLD", "0.5")
	t.Setenv("POSTGRES_HOST", "")

	file := filepath.Join(t.TempDir(), "faceid.yaml")
	require.NoError(t, os.WriteFile(file, []byte("threshold: 0.45\nstore: people.csv\ngate:\n  eyes_at_least: true\n"), 0644))

	v := viper.New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("store", "", "")
	require.NoError(t, flags.Parse([]string{"--store", "flag.csv"}))
	require.NoError(t, v.BindPFlag("store", flags.Lookup("store")))

	cfg, err := Load(v, file)
	require.NoError(t, err)

	assert.Equal(t, "flag.csv", cfg.Store, "flag beats file")
	assert.Equal(t, 0.5, cfg.Threshold, "env beats file")
	assert.Equal(t, 1, cfg.Gate.Eyes)
	assert.Equal(t, gate.AtLeast, cfg.Requirements().EyeRule)
	assert.Equal(t, 1, cfg.Gate.Mouths, "untouched keys keep defaults")
	assert.Equal(t, "postgres://localhost:5432/faceid", cfg.DB)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.Threshold = 0 }},
		{"no eyes", func(c *Config) { c.Gate.Eyes = 0 }},
		{"negative mouths", func(c *Config) { c.Gate.Mouths = -1 }},
		{"empty store", func(c *Config) { c.Store = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestPostgresURLFromEnv(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "u")
	t.Setenv("POSTGRES_PASSWORD", "p")
	t.Setenv("POSTGRES_DB", "faces")
	t.Setenv("POSTGRES_PORT", "")
	assert.Equal(t, "postgres://u:p@db:5432/faces", PostgresURLFromEnv())
}

func TestPythonWorker(t *testing.T) {
	cfg := Defaults()
	cfg.Worker.TimeoutSeconds = 3
	wc := cfg.PythonWorker()
	assert.Equal(t, "python3", wc.Python)
	assert.Equal(t, 3*time.Second, wc.ReadTimeout)
}

func TestWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Defaults().Write(&buf))

	var back Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, Defaults(), back)
}
