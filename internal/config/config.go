// Package config loads and persists sqlitefs's INI configuration file
// (default ~/.sqlitefs/config.ini), one section per volume. Grounded on the
// teacher's orchestrator/config.go env-var loader for the fallback-default
// shape and on services/config/settings_service.go for the
// validate-then-persist pattern, adapted here from environment variables to
// an INI file via spf13/viper per spec.md §6.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Volume holds one volume's persisted mount configuration.
type Volume struct {
	Name  string
	Mount string
	Debug bool
	Size  int64 // bytes
}

// Config is the whole parsed config.ini: one Volume per section, plus
// global daemon settings consulted by cmd/sqlitefs.
type Config struct {
	Path              string
	Volumes           map[string]Volume
	LogLevel          string
	SchedulerInterval string
	StatusServerAddr  string
}

// DefaultPath returns ~/.sqlitefs/config.ini, honoring HOME per spec.md §6.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".sqlitefs", "config.ini"), nil
}

// Load reads path (creating an empty config file if absent) and returns the
// parsed Config.
func Load(path string) (*Config, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("config: create config directory: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			return nil, fmt.Errorf("config: create config file: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg := &Config{
		Path:              path,
		Volumes:           map[string]Volume{},
		LogLevel:          envOr("NAS_SQLITEFS_LOG_LEVEL", "info"),
		SchedulerInterval: "@every 30s",
		StatusServerAddr:  "127.0.0.1:0",
	}

	for _, section := range v.AllKeys() {
		parts := strings.SplitN(section, ".", 2)
		if len(parts) != 2 {
			continue
		}
		volName := parts[0]
		vol := cfg.Volumes[volName]
		vol.Name = volName
		switch strings.ToUpper(parts[1]) {
		case "MOUNT":
			vol.Mount = v.GetString(section)
		case "DEBUG":
			vol.Debug = v.GetBool(section)
		case "SIZE":
			vol.Size = v.GetInt64(section)
		}
		cfg.Volumes[volName] = vol
	}

	return cfg, nil
}

// Save writes cfg's volume sections back to its Path as INI.
func (c *Config) Save() error {
	v := viper.New()
	v.SetConfigFile(c.Path)
	v.SetConfigType("ini")
	for name, vol := range c.Volumes {
		v.Set(fmt.Sprintf("%s.MOUNT", name), vol.Mount)
		v.Set(fmt.Sprintf("%s.DEBUG", name), vol.Debug)
		v.Set(fmt.Sprintf("%s.SIZE", name), vol.Size)
	}
	if err := v.WriteConfigAs(c.Path); err != nil {
		return fmt.Errorf("config: write %s: %w", c.Path, err)
	}
	return nil
}

// PutVolume inserts or replaces a volume section.
func (c *Config) PutVolume(vol Volume) {
	if c.Volumes == nil {
		c.Volumes = map[string]Volume{}
	}
	c.Volumes[vol.Name] = vol
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
