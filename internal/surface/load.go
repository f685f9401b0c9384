package surface

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-ini/ini"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/trackforge/internal/errs"
)

// sectionPrefix names the surfaces.ini sections: SURFACE_0, SURFACE_1, ...
const sectionPrefix = "SURFACE_"

// ffNone is the force-feedback effect written for surfaces without one.
const ffNone = "NULL"

type yamlRule struct {
	Key        string `yaml:"key"`
	Properties `yaml:",inline"`
}

// Load reads a surface table, choosing the format by extension:
// .ini for surfaces.ini, anything else as YAML.
func Load(fs afero.Fs, path string) (Table, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, &errs.IOError{Op: "read", Path: path, Err: err}
	}

	var t Table
	if strings.EqualFold(filepath.Ext(path), ".ini") {
		t, err = LoadINI(data)
	} else {
		t, err = LoadYAML(bytes.NewReader(data))
	}
	if err != nil {
		if ce, ok := err.(*errs.ConfigError); ok && ce.Source == "" {
			ce.Source = path
		}
		return nil, err
	}
	return t, nil
}

// LoadYAML reads a table from a sequence of {key, friction, ...} entries or
// from a {KEY: {friction, ...}} mapping. Mapping order is kept.
func LoadYAML(r io.Reader) (Table, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, &errs.ConfigError{Reason: "surface table is empty"}
		}
		return nil, &errs.ConfigError{Reason: "malformed surface YAML", Err: err}
	}
	if len(doc.Content) == 0 {
		return nil, &errs.ConfigError{Reason: "surface table is empty"}
	}

	root := doc.Content[0]
	var t Table
	switch root.Kind {
	case yaml.SequenceNode:
		var entries []yamlRule
		if err := root.Decode(&entries); err != nil {
			return nil, &errs.ConfigError{Reason: "malformed surface YAML", Err: err}
		}
		for _, e := range entries {
			t = append(t, Rule{Key: e.Key, Props: e.Properties})
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			var props Properties
			if err := root.Content[i+1].Decode(&props); err != nil {
				return nil, &errs.ConfigError{Reason: fmt.Sprintf("malformed surface %q", root.Content[i].Value), Err: err}
			}
			t = append(t, Rule{Key: root.Content[i].Value, Props: props})
		}
	default:
		return nil, &errs.ConfigError{Reason: "surface YAML must be a sequence or a mapping"}
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadINI reads an Assetto Corsa surfaces.ini. Sections are ordered by
// their SURFACE_n index.
func LoadINI(data []byte) (Table, error) {
	f, err := ini.Load(data)
	if err != nil {
		return nil, &errs.ConfigError{Reason: "malformed surfaces.ini", Err: err}
	}

	type indexed struct {
		n    int
		rule Rule
	}
	var rules []indexed
	for _, sec := range f.Sections() {
		if !strings.HasPrefix(sec.Name(), sectionPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(sec.Name(), sectionPrefix))
		if err != nil {
			return nil, &errs.ConfigError{Reason: fmt.Sprintf("bad section name %q", sec.Name()), Err: err}
		}
		rule, err := readSection(sec)
		if err != nil {
			return nil, err
		}
		rules = append(rules, indexed{n: n, rule: rule})
	}
	slices.SortStableFunc(rules, func(a, b indexed) int { return a.n - b.n })

	t := make(Table, 0, len(rules))
	for _, r := range rules {
		t = append(t, r.rule)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func readSection(sec *ini.Section) (Rule, error) {
	var firstErr error
	num := func(name string) float64 {
		if !sec.HasKey(name) {
			return 0
		}
		v, err := sec.Key(name).Float64()
		if err != nil && firstErr == nil {
			firstErr = &errs.ConfigError{Reason: fmt.Sprintf("%s: bad %s", sec.Name(), name), Err: err}
		}
		return v
	}
	flag := func(name string) bool {
		return num(name) != 0
	}

	ff := sec.Key("FF_EFFECT").String()
	if ff == ffNone {
		ff = ""
	}
	rule := Rule{
		Key: sec.Key("KEY").String(),
		Props: Properties{
			Friction:        num("FRICTION"),
			Damping:         num("DAMPING"),
			WavFile:         sec.Key("WAV").String(),
			WavPitch:        num("WAV_PITCH"),
			FFEffect:        ff,
			DirtAdditive:    num("DIRT_ADDITIVE"),
			IsValidTrack:    flag("IS_VALID_TRACK"),
			IsPitlane:       flag("IS_PITLANE"),
			BlackFlagTime:   num("BLACK_FLAG_TIME"),
			SinHeight:       num("SIN_HEIGHT"),
			SinLength:       num("SIN_LENGTH"),
			VibrationGain:   num("VIBRATION_GAIN"),
			VibrationLength: num("VIBRATION_LENGTH"),
		},
	}
	return rule, firstErr
}

// WriteINI writes the table as surfaces.ini.
func WriteINI(t Table, w io.Writer) error {
	if err := t.Validate(); err != nil {
		return err
	}

	f := ini.Empty()
	for i, r := range t {
		sec, err := f.NewSection(fmt.Sprintf("%s%d", sectionPrefix, i))
		if err != nil {
			return err
		}
		p := r.Props
		ff := p.FFEffect
		if ff == "" {
			ff = ffNone
		}
		for _, kv := range [][2]string{
			{"KEY", r.Key},
			{"FRICTION", formatFloat(p.Friction)},
			{"DAMPING", formatFloat(p.Damping)},
			{"WAV", p.WavFile},
			{"WAV_PITCH", formatFloat(p.WavPitch)},
			{"FF_EFFECT", ff},
			{"DIRT_ADDITIVE", formatFloat(p.DirtAdditive)},
			{"IS_VALID_TRACK", formatBool(p.IsValidTrack)},
			{"IS_PITLANE", formatBool(p.IsPitlane)},
			{"BLACK_FLAG_TIME", formatFloat(p.BlackFlagTime)},
			{"SIN_HEIGHT", formatFloat(p.SinHeight)},
			{"SIN_LENGTH", formatFloat(p.SinLength)},
			{"VIBRATION_GAIN", formatFloat(p.VibrationGain)},
			{"VIBRATION_LENGTH", formatFloat(p.VibrationLength)},
		} {
			if _, err := sec.NewKey(kv[0], kv[1]); err != nil {
				return err
			}
		}
	}
	_, err := f.WriteTo(w)
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
