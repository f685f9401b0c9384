// Package surface assigns physics surfaces to meshes by name.
//
// A Table is an ordered rule list. Classification scans it in order and
// picks the first rule whose key occurs in the mesh name, so the result
// depends only on the name and the declared order.
package surface

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/trackforge/internal/errs"
	"github.com/Faultbox/trackforge/internal/logger"
	"github.com/Faultbox/trackforge/internal/scene"
)

// ID is the index of a rule in its table.
type ID int

// None marks a mesh without a physical surface.
const None ID = scene.NoSurface

// Friction bounds accepted by Validate.
const (
	MinFriction = 0
	MaxFriction = 2
)

// Properties are the physics values of one surface, as written to
// surfaces.ini.
type Properties struct {
	Friction        float64 `yaml:"friction"`
	Damping         float64 `yaml:"damping"`
	WavFile         string  `yaml:"wav"`
	WavPitch        float64 `yaml:"wav_pitch"`
	FFEffect        string  `yaml:"ff_effect"`
	DirtAdditive    float64 `yaml:"dirt_additive"`
	IsValidTrack    bool    `yaml:"is_valid_track"`
	IsPitlane       bool    `yaml:"is_pitlane"`
	BlackFlagTime   float64 `yaml:"black_flag_time"`
	SinHeight       float64 `yaml:"sin_height"`
	SinLength       float64 `yaml:"sin_length"`
	VibrationGain   float64 `yaml:"vibration_gain"`
	VibrationLength float64 `yaml:"vibration_length"`
}

// Rule binds a name substring to surface properties.
type Rule struct {
	Key   string
	Props Properties
}

// Table is an ordered rule list. Order decides ties.
type Table []Rule

// Default returns the built-in surface table.
func Default() Table {
	return Table{
		{Key: "ROAD", Props: Properties{
			Friction:     0.97,
			IsValidTrack: true,
		}},
		{Key: "KERB", Props: Properties{
			Friction:        0.93,
			WavFile:         "kerb",
			WavPitch:        1,
			FFEffect:        "KERB",
			IsValidTrack:    true,
			SinHeight:       0.005,
			SinLength:       0.15,
			VibrationGain:   0.5,
			VibrationLength: 0.15,
		}},
		{Key: "GRASS", Props: Properties{
			Friction:        0.60,
			Damping:         0.1,
			WavFile:         "grass",
			FFEffect:        "GRASS",
			DirtAdditive:    0.5,
			BlackFlagTime:   3,
			VibrationGain:   0.2,
			VibrationLength: 0.5,
		}},
		{Key: "WALL", Props: Properties{
			Friction:        0.365,
			VibrationGain:   0.05,
			VibrationLength: 0.05,
		}},
		{Key: "PIT", Props: Properties{
			Friction:     0.97,
			IsValidTrack: true,
			IsPitlane:    true,
		}},
		{Key: "GROUND", Props: Properties{
			Friction:        0.60,
			Damping:         0.15,
			WavFile:         "grass",
			FFEffect:        "GRASS",
			DirtAdditive:    0.5,
			BlackFlagTime:   3,
			VibrationGain:   0.3,
			VibrationLength: 0.5,
		}},
	}
}

// Validate rejects empty tables, empty or duplicate keys and friction
// outside [MinFriction, MaxFriction].
func (t Table) Validate() error {
	if len(t) == 0 {
		return &errs.ConfigError{Reason: "surface table is empty"}
	}
	seen := make(map[string]bool, len(t))
	for i, r := range t {
		if r.Key == "" {
			return &errs.ConfigError{Reason: fmt.Sprintf("surface %d has an empty key", i)}
		}
		if seen[r.Key] {
			return &errs.ConfigError{Reason: fmt.Sprintf("duplicate surface key %q", r.Key)}
		}
		seen[r.Key] = true
		if r.Props.Friction < MinFriction || r.Props.Friction > MaxFriction {
			return &errs.ConfigError{Reason: fmt.Sprintf("surface %q friction %g outside [%d, %d]", r.Key, r.Props.Friction, MinFriction, MaxFriction)}
		}
	}
	return nil
}

// Classify returns the first rule whose key is a substring of name.
// Matching is case-sensitive. ok is false and the ID is None when no rule
// matches.
func (t Table) Classify(name string) (ID, Rule, bool) {
	for i, r := range t {
		if strings.Contains(name, r.Key) {
			return ID(i), r, true
		}
	}
	return None, Rule{}, false
}

// Apply classifies every mesh in the scene. Unmatched meshes keep None and
// are logged as visual-only. It returns the number of matched meshes.
func Apply(s *scene.Scene, t Table, log *zap.Logger) int {
	log = logger.OrNop(log)
	matched := 0
	for _, mesh := range s.Meshes() {
		id, rule, ok := t.Classify(mesh.Name)
		if !ok {
			mesh.Surface = int(None)
			mesh.SurfaceKey = ""
			log.Warn("Mesh has no physical surface", zap.String("mesh", mesh.Name))
			continue
		}
		mesh.Surface = int(id)
		mesh.SurfaceKey = rule.Key
		matched++
	}
	return matched
}

// CanonicalName returns the mesh name the simulator expects for a physics
// mesh: <digits><KEY>... The name is returned unchanged when it already has
// that form; otherwise it is prefixed with "1<KEY>_".
func CanonicalName(name string, rule Rule) string {
	if rule.Key == "" {
		return name
	}
	rest := strings.TrimLeft(name, "0123456789")
	if len(rest) < len(name) && strings.HasPrefix(rest, rule.Key) {
		return name
	}
	return "1" + rule.Key + "_" + name
}
