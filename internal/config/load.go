package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/trackforge/internal/errs"
)

// FileName is the project-local config file looked up in the working
// directory.
const FileName = "trackforge.yaml"

// Load resolves settings from defaults, then the config file, then the flags
// that were set, and validates the result. flags may be nil.
//
// An explicit --config must exist. Without one the first existing file among
// SearchPaths is used, and having none is fine.
func Load(fs afero.Fs, flags *Flags) (*Config, error) {
	cfg := Default()

	path := flags.ConfigPath()
	if path == "" {
		path = findConfigFile(fs)
	}
	if path != "" {
		if err := Decode(fs, path, cfg); err != nil {
			return nil, err
		}
	}

	flags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SearchPaths lists the implicit config locations in lookup order.
func SearchPaths() []string {
	return []string{FileName, filepath.Join(ConfigDir(), "config.yaml")}
}

func findConfigFile(fs afero.Fs) string {
	path, _ := lo.Find(SearchPaths(), func(p string) bool {
		ok, err := afero.Exists(fs, p)
		return ok && err == nil
	})
	return path
}

// Decode merges the YAML file at path over cfg. Unknown keys are rejected so
// a misspelt setting does not silently keep its default. An empty file
// leaves cfg unchanged.
func Decode(fs afero.Fs, path string, cfg *Config) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return &errs.ConfigError{Source: path, Reason: "cannot read config file", Err: err}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return &errs.ConfigError{Source: path, Reason: "invalid config file", Err: err}
	}
	return nil
}

// ConfigDir returns the per-user config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Trackforge")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Trackforge")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "trackforge")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "trackforge")
	}
}
