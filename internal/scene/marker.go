package scene

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/Faultbox/trackforge/pkg/math"
)

// Marker name prefixes recognised by the simulator.
const (
	MarkerPrefix      = "AC_"
	StartPrefix       = "AC_START_"
	PitPrefix         = "AC_PIT_"
	TimingPrefix      = "AC_TIME_"
	HotlapStartPrefix = "AC_HOTLAP_START_"
)

// MarkerKind classifies a marker by its name prefix.
type MarkerKind int

const (
	MarkerPlain  MarkerKind = iota // AC_ name without a recognised prefix
	MarkerStart                    // Grid start position
	MarkerPit                      // Pit box
	MarkerTiming                   // Timing gate
	MarkerHotlap                   // Hotlap start
)

// String returns a human-readable kind name.
func (k MarkerKind) String() string {
	switch k {
	case MarkerPlain:
		return "Plain"
	case MarkerStart:
		return "Start"
	case MarkerPit:
		return "Pit"
	case MarkerTiming:
		return "Timing"
	case MarkerHotlap:
		return "Hotlap"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// ClassifyMarker returns the kind for an exact prefix match.
func ClassifyMarker(name string) MarkerKind {
	switch {
	case strings.HasPrefix(name, StartPrefix):
		return MarkerStart
	case strings.HasPrefix(name, PitPrefix):
		return MarkerPit
	case strings.HasPrefix(name, TimingPrefix):
		return MarkerTiming
	case strings.HasPrefix(name, HotlapStartPrefix):
		return MarkerHotlap
	default:
		return MarkerPlain
	}
}

// Marker is a named non-rendered transform.
type Marker struct {
	Name  string
	Kind  MarkerKind
	World math.Mat4 // Authoring convention

	// Forward is the heading tangent on the authoring ground plane.
	// When HasForward is set the transform pass derives the rotation from it.
	Forward    math.Vec2
	HasForward bool

	// Set by the transform pass.
	Engine math.Mat4
}

// NewMarker returns a marker at location with its kind derived from name.
func NewMarker(name string, location math.Vec3) *Marker {
	return &Marker{
		Name:   name,
		Kind:   ClassifyMarker(name),
		World:  math.Translate(location.X, location.Y, location.Z),
		Engine: math.Identity(),
	}
}

// Location returns the marker position in authoring coordinates.
func (m *Marker) Location() math.Vec3 {
	return m.World.Translation()
}

// MarkersOf returns the markers of one kind in declaration order.
func (s *Scene) MarkersOf(kind MarkerKind) []*Marker {
	return lo.Filter(s.Markers, func(m *Marker, _ int) bool {
		return m.Kind == kind
	})
}

// StartMarker returns the designated start marker: the start marker with
// the lowest numeric suffix, so AC_START_0 when present.
func (s *Scene) StartMarker() (*Marker, bool) {
	starts := s.MarkersOf(MarkerStart)
	if len(starts) == 0 {
		return nil, false
	}
	slices.SortStableFunc(starts, func(a, b *Marker) int {
		ai, aok := startIndex(a.Name)
		bi, bok := startIndex(b.Name)
		switch {
		case aok && bok:
			return ai - bi
		case aok:
			return -1
		case bok:
			return 1
		default:
			return strings.Compare(a.Name, b.Name)
		}
	})
	return starts[0], true
}

func startIndex(name string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(name, StartPrefix))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
