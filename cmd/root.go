package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/faceid/internal/config"
	"github.com/andresmejia3/faceid/internal/logger"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// cfg is the effective configuration, loaded before every subcommand runs
	cfg config.Config
	// log is the library logger shared by subcommands
	log = zerolog.Nop()

	v       = viper.New()
	cfgFile string
	verbose bool
)

// Version is the application version.
const Version = "0.1.0"

// exitError carries a process exit code without printing anything else.
// compare uses it to report no-match (1) and indeterminate (2).
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

var rootCmd = &cobra.Command{
	Use:     "faceid",
	Short:   "Face capture, encoding store and matching",
	Version: Version,
	// Execute prints errors itself so that exit codes stay silent
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v, cfgFile)
		if err != nil {
			return err
		}

		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		log, err = logger.New(level, cfg.Log.Format, os.Stderr)
		if err != nil {
			return fmt.Errorf("configure logging: %w", err)
		}
		log.Debug().Str("store", cfg.Store).Float64("threshold", cfg.Threshold).Msg("configuration loaded")
		return nil
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			stop()
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// loadDotEnv reads a .env file from the working directory, if there is one.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to read .env: %v\n", err)
	}
}

func init() {
	cobra.OnInitialize(loadDotEnv)

	defaults := config.Defaults()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	flags.StringP("store", "s", defaults.Store, "Path to the encodings CSV store")
	flags.Float64P("threshold", "t", defaults.Threshold, "Maximum face distance considered a match (lower is stricter)")
	flags.String("db", "", "PostgreSQL connection string (default: built from POSTGRES_* or postgres://localhost:5432/faceid)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	for _, name := range []string{"store", "threshold", "db"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}
