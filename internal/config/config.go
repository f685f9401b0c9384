// Package config handles tool configuration loading and management.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/Faultbox/trackforge/internal/errs"
	"github.com/Faultbox/trackforge/pkg/encoding"
	"github.com/Faultbox/trackforge/pkg/formats"
)

// Config holds all tool settings.
type Config struct {
	Scene    SceneConfig    `yaml:"scene"`
	Export   ExportConfig   `yaml:"export"`
	AILine   AILineConfig   `yaml:"ai_line"`
	Surfaces SurfacesConfig `yaml:"surfaces"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SceneConfig holds scene loading settings.
type SceneConfig struct {
	Path     string `yaml:"path"`     // Scene description; usually given on the command line
	Encoding string `yaml:"encoding"` // Text encoding of OBJ/MTL names
}

// ExportConfig holds KN5 export settings.
type ExportConfig struct {
	TrackName            string  `yaml:"track_name"` // Root node name; scene name when empty
	KN5Version           int     `yaml:"kn5_version"`
	AllowScaled          bool    `yaml:"allow_scaled_transforms"` // Accept any det > 0 instead of det == 1
	DeterminantTolerance float64 `yaml:"determinant_tolerance"`
	MarkerBoxSize        float64 `yaml:"marker_box_size"`
	Workers              int     `yaml:"workers"`
}

// AILineConfig holds driving line settings.
type AILineConfig struct {
	RoadSurface     string  `yaml:"road_surface"`
	Spacing         float64 `yaml:"spacing"` // Meters between points; 0 keeps mesh resolution
	MaxSpeedKMH     float64 `yaml:"max_speed_kmh"`
	MinSpeedKMH     float64 `yaml:"min_speed_kmh"`
	SmoothingWindow int     `yaml:"smoothing_window"`
}

// SurfacesConfig points at an external surface table.
type SurfacesConfig struct {
	File string `yaml:"file"` // .yaml or .ini; built-in table when empty
}

// OutputConfig holds output locations.
type OutputConfig struct {
	Dir              string `yaml:"dir"`
	WriteSurfacesINI bool   `yaml:"write_surfaces_ini"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	Filter  string `yaml:"filter"` // zapfilter rules
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Scene: SceneConfig{
			Encoding: encoding.UTF8,
		},
		Export: ExportConfig{
			KN5Version:           formats.KN5VersionDefault,
			DeterminantTolerance: 1e-4,
			MarkerBoxSize:        0.5,
			Workers:              runtime.GOMAXPROCS(0),
		},
		AILine: AILineConfig{
			RoadSurface:     "ROAD",
			MaxSpeedKMH:     80,
			MinSpeedKMH:     40,
			SmoothingWindow: 15,
		},
		Output: OutputConfig{
			Dir:              "build",
			WriteSurfacesINI: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return &errs.ConfigError{Source: "settings", Reason: fmt.Sprintf(format, args...)}
	}

	if c.Export.KN5Version < formats.KN5VersionMin || c.Export.KN5Version > formats.KN5VersionMax {
		return bad("export.kn5_version %d not in [%d, %d]", c.Export.KN5Version, formats.KN5VersionMin, formats.KN5VersionMax)
	}
	if c.Export.DeterminantTolerance <= 0 {
		return bad("export.determinant_tolerance must be positive")
	}
	if c.Export.MarkerBoxSize <= 0 {
		return bad("export.marker_box_size must be positive")
	}
	if c.Export.Workers < 1 {
		return bad("export.workers must be at least 1")
	}
	if strings.TrimSpace(c.AILine.RoadSurface) == "" {
		return bad("ai_line.road_surface is empty")
	}
	if c.AILine.Spacing < 0 {
		return bad("ai_line.spacing must not be negative")
	}
	if c.AILine.MinSpeedKMH <= 0 || c.AILine.MaxSpeedKMH < c.AILine.MinSpeedKMH {
		return bad("ai_line speeds need 0 < min_speed_kmh <= max_speed_kmh")
	}
	if c.AILine.SmoothingWindow < 1 {
		return bad("ai_line.smoothing_window must be at least 1")
	}
	if _, ok := encoding.Decoder(c.Scene.Encoding); !ok {
		return bad("scene.encoding %q is not supported", c.Scene.Encoding)
	}
	if c.Output.Dir == "" {
		return bad("output.dir is empty")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return bad("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}
