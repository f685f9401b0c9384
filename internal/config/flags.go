package config

import "github.com/spf13/pflag"

// Flags holds command-line overrides bound to a pflag set.
type Flags struct {
	fs *pflag.FlagSet

	config        string
	logLevel      string
	logFile       string
	logFilter     string
	surfaces      string
	out           string
	trackName     string
	encoding      string
	spacing       float64
	allowScaled   bool
	workers       int
	noSurfacesINI bool
}

// BindFlags registers the override flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.config, "config", "", "Path to config file")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.logFile, "log-file", "", "Write logs to this file as well")
	fs.StringVar(&f.logFilter, "log-filter", "", "zapfilter rules, e.g. 'warn+:* debug:centerline'")
	fs.StringVar(&f.surfaces, "surfaces", "", "Surface table (.yaml or surfaces.ini)")
	fs.StringVarP(&f.out, "out", "o", "", "Output directory")
	fs.StringVar(&f.trackName, "track-name", "", "Track name used for the root node and KN5 file")
	fs.StringVar(&f.encoding, "encoding", "", "Text encoding of geometry files (utf-8, windows-1252)")
	fs.Float64Var(&f.spacing, "spacing", 0, "AI line point spacing in meters (0 keeps mesh resolution)")
	fs.BoolVar(&f.allowScaled, "allow-scaled", false, "Accept scaled node transforms (determinant > 0 instead of 1)")
	fs.IntVar(&f.workers, "workers", 0, "Parallel workers for per-mesh passes")
	fs.BoolVar(&f.noSurfacesINI, "no-surfaces-ini", false, "Do not write data/surfaces.ini")
	return f
}

// ConfigPath returns the explicit config path if provided via --config flag.
func (f *Flags) ConfigPath() string {
	if f == nil {
		return ""
	}
	return f.config
}

func (f *Flags) changed(name string) bool {
	return f.fs != nil && f.fs.Changed(name)
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	if f.changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if f.changed("log-file") {
		cfg.Logging.LogFile = f.logFile
	}
	if f.changed("log-filter") {
		cfg.Logging.Filter = f.logFilter
	}
	if f.changed("surfaces") {
		cfg.Surfaces.File = f.surfaces
	}
	if f.changed("out") {
		cfg.Output.Dir = f.out
	}
	if f.changed("track-name") {
		cfg.Export.TrackName = f.trackName
	}
	if f.changed("encoding") {
		cfg.Scene.Encoding = f.encoding
	}
	if f.changed("spacing") {
		cfg.AILine.Spacing = f.spacing
	}
	if f.changed("allow-scaled") {
		cfg.Export.AllowScaled = f.allowScaled
	}
	if f.changed("workers") {
		cfg.Export.Workers = f.workers
	}
	if f.changed("no-surfaces-ini") {
		cfg.Output.WriteSurfacesINI = !f.noSurfacesINI
	}
}
