// Package config layers the built-in defaults, an optional YAML file and
// FACEID_* environment variables into one Config.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/andresmejia3/faceid/internal/gate"
	"github.com/andresmejia3/faceid/internal/worker"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// EnvPrefix prefixes every environment override, e.g. FACEID_GATE_EYES.
const EnvPrefix = "FACEID"

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Store     string  `yaml:"store" mapstructure:"store"`
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
	DB        string  `yaml:"db" mapstructure:"db"`

	Log      LogConfig     `yaml:"log" mapstructure:"log"`
	Gate     GateConfig    `yaml:"gate" mapstructure:"gate"`
	Worker   WorkerConfig  `yaml:"worker" mapstructure:"worker"`
	Cascades CascadeConfig `yaml:"cascades" mapstructure:"cascades"`
	Camera   CameraConfig  `yaml:"camera" mapstructure:"camera"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

type GateConfig struct {
	Eyes        int  `yaml:"eyes" mapstructure:"eyes"`
	EyesAtLeast bool `yaml:"eyes_at_least" mapstructure:"eyes_at_least"`
	Noses       int  `yaml:"noses" mapstructure:"noses"`
	Mouths      int  `yaml:"mouths" mapstructure:"mouths"`
}

type WorkerConfig struct {
	Python         string `yaml:"python" mapstructure:"python"`
	Script         string `yaml:"script" mapstructure:"script"`
	CascadeDir     string `yaml:"cascade_dir" mapstructure:"cascade_dir"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxSide        int    `yaml:"max_side" mapstructure:"max_side"`
}

// CascadeConfig names the Haar cascade files inside the cascade directory.
type CascadeConfig struct {
	Face  string `yaml:"face" mapstructure:"face"`
	Eye   string `yaml:"eye" mapstructure:"eye"`
	Nose  string `yaml:"nose" mapstructure:"nose"`
	Mouth string `yaml:"mouth" mapstructure:"mouth"`
}

type CameraConfig struct {
	Format string `yaml:"format" mapstructure:"format"`
	Device string `yaml:"device" mapstructure:"device"`
	FPS    int    `yaml:"fps" mapstructure:"fps"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load builds the effective configuration on v. Flags bound to v before the
// call take precedence over the environment, which beats file, which beats defaults.
// file may be empty.
func Load(v *viper.Viper, file string) (Config, error) {
	cfg := Defaults()

	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultsYAML)); err != nil {
		return cfg, fmt.Errorf("read defaults: %w", err)
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DB == "" {
		cfg.DB = PostgresURLFromEnv()
	}
	return cfg, cfg.Validate()
}

// PostgresURLFromEnv builds a connection string from POSTGRES_* variables,
// falling back to a local default.
func PostgresURLFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return "postgres://localhost:5432/faceid"
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

// Validate rejects values that would make matching or gating meaningless.
func (c Config) Validate() error {
	var errs []error
	if c.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("threshold must be positive, got %v", c.Threshold))
	}
	if c.Gate.Eyes < 1 {
		errs = append(errs, fmt.Errorf("gate.eyes must be at least 1, got %d", c.Gate.Eyes))
	}
	if c.Gate.Noses < 0 || c.Gate.Mouths < 0 {
		errs = append(errs, fmt.Errorf("gate.noses and gate.mouths cannot be negative"))
	}
	if c.Store == "" {
		errs = append(errs, errors.New("store path is empty"))
	}
	if c.Worker.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("worker.timeout_seconds cannot be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Requirements converts the gate section into detection requirements.
func (c Config) Requirements() gate.Requirements {
	req := gate.Requirements{
		Eyes:    c.Gate.Eyes,
		EyeRule: gate.Exactly,
		Noses:   c.Gate.Noses,
		Mouths:  c.Gate.Mouths,
	}
	if c.Gate.EyesAtLeast {
		req.EyeRule = gate.AtLeast
	}
	return req
}

// PythonWorker converts the worker section for worker.NewPythonWorker.
func (c Config) PythonWorker() worker.Config {
	return worker.Config{
		Python:      c.Worker.Python,
		Script:      c.Worker.Script,
		CascadeDir:  c.Worker.CascadeDir,
		ReadTimeout: time.Duration(c.Worker.TimeoutSeconds) * time.Second,
	}
}

// Write renders the configuration as YAML.
func (c Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
