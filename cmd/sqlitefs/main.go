// Command sqlitefs is the CLI entrypoint: init, config, server
// start|stop|restart|status, and diag. Bootstrap (JSON-formatted logrus,
// fail-fast config load) follows the teacher's main.go; the cobra/viper
// subcommand surface follows original_source/sqlitefs/sqlitefs.py's
// init/config/server group one-for-one, since neither example repo in the
// pack exercises cobra directly.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nas-ai/sqlitefs/internal/config"
)

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(envOr("NAS_SQLITEFS_LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadConfigOrFatal(logger *logrus.Logger) *config.Config {
	path, err := config.DefaultPath()
	if err != nil {
		logger.WithError(err).Fatal("failed to resolve config path")
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}
	return cfg
}

func main() {
	logger := newLogger()
	loadConfigOrFatal(logger)

	root := &cobra.Command{
		Use:   "sqlitefs",
		Short: "Encrypted, SQLite-backed user-space filesystem",
	}

	root.AddCommand(
		newInitCommand(logger),
		newConfigCommand(logger),
		newServerCommand(logger),
		newDiagCommand(logger),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
