// Package build runs the export pipeline: load the scene once, convert and
// classify it, then write the model, the AI line and the surface table.
package build

import (
	"bytes"
	"context"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/trackforge/internal/centerline"
	"github.com/Faultbox/trackforge/internal/config"
	"github.com/Faultbox/trackforge/internal/errs"
	"github.com/Faultbox/trackforge/internal/export"
	"github.com/Faultbox/trackforge/internal/fsutil"
	"github.com/Faultbox/trackforge/internal/logger"
	"github.com/Faultbox/trackforge/internal/scene"
	"github.com/Faultbox/trackforge/internal/surface"
	"github.com/Faultbox/trackforge/internal/transform"
	"github.com/Faultbox/trackforge/pkg/formats"
)

// Output locations below the output directory.
const (
	AILineFile      = "ai/fast_lane.ai"
	SurfacesINIFile = "data/surfaces.ini"
	ModelExt        = ".kn5"
)

const filePerm = 0o644

// Target selects pipeline outputs.
type Target uint8

const (
	TargetModel Target = 1 << iota
	TargetAILine
	TargetSurfaces

	TargetAll = TargetModel | TargetAILine | TargetSurfaces
)

// Pipeline loads Config.Scene.Path and writes the selected targets below
// Config.Output.Dir. Outputs are encoded in memory first; nothing is written
// unless every target succeeds.
type Pipeline struct {
	Fs      afero.Fs
	Config  *config.Config
	Log     *zap.Logger
	Targets Target // TargetAll when zero
}

// Result lists the files a run wrote.
type Result struct {
	Track  string
	Model  string
	AILine string
	INI    string
	Points int // Driving line samples
}

// Files returns the written paths in write order.
func (r *Result) Files() []string {
	var out []string
	for _, p := range []string{r.Model, r.AILine, r.INI} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Run executes the pipeline. The context is checked between stages.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	cfg := p.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := logger.OrNop(p.Log)
	targets := p.Targets
	if targets == 0 {
		targets = TargetAll
	}
	if !cfg.Output.WriteSurfacesINI {
		targets &^= TargetSurfaces
	}

	table, err := LoadTable(p.Fs, cfg.Surfaces.File)
	if err != nil {
		return nil, err
	}
	s, err := Prepare(p.Fs, cfg, table, log)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	track := cfg.Export.TrackName
	if track == "" {
		track = s.Name
	}
	res := &Result{Track: track}

	var model, ai, ini []byte
	g, gctx := errgroup.WithContext(ctx)
	if targets&TargetModel != 0 {
		g.Go(func() error {
			data, err := encodeModel(s, cfg, track, log)
			model = data
			return err
		})
	}
	if targets&TargetAILine != 0 {
		g.Go(func() error {
			line, err := centerline.Extract(s, AILineOptions(cfg, log))
			if err != nil {
				return err
			}
			res.Points = len(line.Points)
			ai, err = marshalAI(line)
			return err
		})
	}
	if targets&TargetSurfaces != 0 {
		g.Go(func() error {
			var buf bytes.Buffer
			if err := surface.WriteINI(table, &buf); err != nil {
				return err
			}
			ini = buf.Bytes()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := cfg.Output.Dir
	write := func(dst *string, rel string, data []byte) error {
		if data == nil {
			return nil
		}
		path := filepath.Join(out, rel)
		if err := fsutil.WriteFileAtomic(p.Fs, path, data, filePerm); err != nil {
			return err
		}
		*dst = path
		log.Info("Wrote output", zap.String("path", path), zap.Int("bytes", len(data)))
		return nil
	}
	if err := write(&res.Model, track+ModelExt, model); err != nil {
		return nil, err
	}
	if err := write(&res.AILine, AILineFile, ai); err != nil {
		return nil, err
	}
	if err := write(&res.INI, SurfacesINIFile, ini); err != nil {
		return nil, err
	}
	return res, nil
}

// Prepare checks the surface table, loads the scene and runs the transform
// and surface passes.
func Prepare(fs afero.Fs, cfg *config.Config, table surface.Table, log *zap.Logger) (*scene.Scene, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if cfg.Scene.Path == "" {
		return nil, &errs.ConfigError{Source: "settings", Reason: "no scene file given"}
	}
	s, err := scene.LoadFile(fs, cfg.Scene.Path, scene.LoadOptions{Encoding: cfg.Scene.Encoding, Log: log})
	if err != nil {
		return nil, err
	}
	err = transform.Apply(s, transform.Options{
		AllowScale: cfg.Export.AllowScaled,
		Tolerance:  cfg.Export.DeterminantTolerance,
		Log:        log,
	})
	if err != nil {
		return nil, err
	}
	surface.Apply(s, table, log)
	return s, nil
}

// LoadTable returns the surface table at path, or the built-in table when
// path is empty.
func LoadTable(fs afero.Fs, path string) (surface.Table, error) {
	if path == "" {
		return surface.Default(), nil
	}
	return surface.Load(fs, path)
}

// ExportOptions maps the export settings onto export.Options.
func ExportOptions(cfg *config.Config, track string, log *zap.Logger) export.Options {
	return export.Options{
		TrackName:     track,
		Version:       int32(cfg.Export.KN5Version),
		MarkerBoxSize: cfg.Export.MarkerBoxSize,
		Workers:       cfg.Export.Workers,
		Log:           log,
	}
}

// AILineOptions maps the ai_line settings onto centerline.Options.
func AILineOptions(cfg *config.Config, log *zap.Logger) centerline.Options {
	return centerline.Options{
		RoadSurface: cfg.AILine.RoadSurface,
		Spacing:     cfg.AILine.Spacing,
		Speed: centerline.SpeedOptions{
			MaxKMH: cfg.AILine.MaxSpeedKMH,
			MinKMH: cfg.AILine.MinSpeedKMH,
			Window: cfg.AILine.SmoothingWindow,
		},
		Log: log,
	}
}

// ExportModel loads the scene at scenePath from disk and returns the encoded
// KN5 model.
func ExportModel(scenePath string, table surface.Table) ([]byte, error) {
	cfg := config.Default()
	cfg.Scene.Path = scenePath
	s, err := Prepare(afero.NewOsFs(), cfg, table, logger.Named("build"))
	if err != nil {
		return nil, err
	}
	return encodeModel(s, cfg, s.Name, logger.Named("export"))
}

// ExtractAILine loads the scene at scenePath from disk and returns the
// encoded fast_lane.ai driving line.
func ExtractAILine(scenePath string, table surface.Table) ([]byte, error) {
	cfg := config.Default()
	cfg.Scene.Path = scenePath
	s, err := Prepare(afero.NewOsFs(), cfg, table, logger.Named("build"))
	if err != nil {
		return nil, err
	}
	return centerline.Encode(s, AILineOptions(cfg, logger.Named("centerline")))
}

// encodeModel rejects a scene whose road would not yield a driving line, then
// encodes the model.
func encodeModel(s *scene.Scene, cfg *config.Config, track string, log *zap.Logger) ([]byte, error) {
	if err := centerline.CheckRoad(s, cfg.AILine.RoadSurface); err != nil {
		return nil, err
	}
	return export.Encode(s, ExportOptions(cfg, track, log))
}

func marshalAI(line *centerline.Line) ([]byte, error) {
	return formats.MarshalAI(centerline.ToAILine(line))
}
