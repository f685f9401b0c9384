// Package centerline derives the AI driving line from the road mesh.
//
// The road's two boundary loops (inner and outer edge) are oriented
// clockwise, aligned on the start marker, matched point by point and
// averaged into a centerline with per-point track widths.
package centerline

import (
	"fmt"
	stdmath "math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/Faultbox/trackforge/internal/errs"
	"github.com/Faultbox/trackforge/internal/logger"
	"github.com/Faultbox/trackforge/internal/scene"
	"github.com/Faultbox/trackforge/pkg/formats"
	"github.com/Faultbox/trackforge/pkg/math"
)

// DefaultRoadSurface is the surface key of road meshes.
const DefaultRoadSurface = "ROAD"

// Options controls extraction.
type Options struct {
	RoadSurface string  // Surface key selecting road meshes
	Spacing     float64 // Fixed point spacing in meters; 0 keeps the matched points
	Speed       SpeedOptions
	Log         *zap.Logger
}

// DefaultOptions returns the extraction defaults.
func DefaultOptions() Options {
	return Options{RoadSurface: DefaultRoadSurface, Speed: DefaultSpeedOptions()}
}

// Point is one centerline sample.
type Point struct {
	Position   math.Vec3
	LeftWidth  float64
	RightWidth float64
	Distance   float64 // Arc length from the first point
	Speed      float64 // m/s
	Gas        float64
	Brake      float64
}

// Line is a closed driving line in engine coordinates.
type Line struct {
	Points []Point
	Length float64 // Including the closing segment
}

// Extract builds the driving line of a converted and classified scene.
func Extract(s *scene.Scene, opts Options) (*Line, error) {
	log := logger.OrNop(opts.Log)
	if opts.RoadSurface == "" {
		opts.RoadSurface = DefaultRoadSurface
	}

	meshName, loops, err := roadLoops(s, opts.RoadSurface, log)
	if err != nil {
		return nil, err
	}

	start, ok := s.StartMarker()
	if !ok {
		return nil, &errs.ValidationError{Mesh: meshName, Loop: -1, Reason: "no start marker (" + scene.StartPrefix + "n)"}
	}
	startPos := engineLocation(start)

	for i := range loops {
		loops[i], err = OrientClockwise(loops[i])
		if err != nil {
			return nil, withLoop(err, meshName, i)
		}
		loops[i] = RotateToStart(loops[i], startPos)
	}

	if n0, n1 := len(loops[0]), len(loops[1]); n0 != n1 {
		n := max(n0, n1)
		log.Debug("Resampling boundary loops", zap.Int("inner", n0), zap.Int("outer", n1), zap.Int("count", n))
		for i := range loops {
			if loops[i], err = Resample(loops[i], n); err != nil {
				return nil, withLoop(err, meshName, i)
			}
		}
	}

	// The inner edge encloses the smaller area; driving clockwise it is on
	// the right.
	inner, outer := loops[0], loops[1]
	if stdmath.Abs(SignedArea(outer)) < stdmath.Abs(SignedArea(inner)) {
		inner, outer = outer, inner
	}
	points := Midpoints(inner, outer)

	if opts.Spacing > 0 {
		points = ResampleSpacing(points, opts.Spacing)
	}
	line := &Line{Points: points, Length: SetDistances(points)}
	SpeedProfile(line.Points, opts.Speed)

	log.Debug("Centerline extracted",
		zap.String("mesh", meshName),
		zap.Int("points", len(line.Points)),
		zap.Float64("length", line.Length))
	return line, nil
}

// CheckRoad returns a ValidationError unless the meshes classified as
// roadSurface are valid triangle lists that bound exactly two loops.
func CheckRoad(s *scene.Scene, roadSurface string) error {
	if roadSurface == "" {
		roadSurface = DefaultRoadSurface
	}
	_, _, err := roadLoops(s, roadSurface, nil)
	return err
}

// roadLoops returns the two boundary loops of the merged road meshes, in
// discovery order, and the first road mesh name for diagnostics.
func roadLoops(s *scene.Scene, key string, log *zap.Logger) (string, []Loop, error) {
	positions, indices, names, err := roadGeometry(s, key)
	if err != nil {
		return "", nil, err
	}
	if len(names) == 0 {
		return "", nil, errs.NewValidation("", fmt.Sprintf("no mesh with surface %q", key))
	}
	meshName := names[0]
	if len(names) > 1 {
		logger.OrNop(log).Info("Merging road meshes", zap.Strings("meshes", names))
	}

	loops, err := BoundaryLoops(positions, indices)
	if err != nil {
		return "", nil, withMesh(err, meshName)
	}
	if len(loops) != 2 {
		return "", nil, &errs.ValidationError{
			Mesh:   meshName,
			Loop:   -1,
			Reason: fmt.Sprintf("malformed road mesh: expected 2 boundary loops, got %d", len(loops)),
		}
	}
	return meshName, loops, nil
}

// roadGeometry merges every mesh with the road surface key into one
// triangle soup. Each mesh is validated first so no index can reach into
// another mesh's vertices.
func roadGeometry(s *scene.Scene, key string) (positions []math.Vec3, indices []uint32, names []string, err error) {
	for _, mesh := range s.Meshes() {
		if mesh.SurfaceKey != key {
			continue
		}
		if err := mesh.Validate(); err != nil {
			return nil, nil, nil, err
		}
		base := uint32(len(positions))
		for _, v := range mesh.Vertices {
			positions = append(positions, v.Position)
		}
		for _, idx := range mesh.Indices {
			indices = append(indices, base+idx)
		}
		names = append(names, mesh.Name)
	}
	return positions, indices, names, nil
}

// engineLocation returns the translation row of a converted marker matrix.
func engineLocation(m *scene.Marker) math.Vec3 {
	r := m.Engine.Rows()
	return math.Vec3{X: r[12], Y: r[13], Z: r[14]}
}

// Midpoints pairs the loops index by index. Widths are the distances from
// each midpoint to its inner (right) and outer (left) point.
func Midpoints(inner, outer Loop) []Point {
	points := make([]Point, len(inner))
	for i := range inner {
		mid := inner[i].Add(outer[i]).Scale(0.5)
		points[i] = Point{
			Position:   mid,
			RightWidth: mid.Distance(inner[i]),
			LeftWidth:  mid.Distance(outer[i]),
		}
	}
	return points
}

// ResampleSpacing resamples the closed line to n = max(3, round(L/spacing))
// points at arc lengths k*L/n, interpolating widths. A line that already has
// n evenly spaced points (within 1e-6*L) is returned unchanged.
func ResampleSpacing(points []Point, spacing float64) []Point {
	if spacing <= 0 || len(points) < 2 {
		return points
	}

	segs := segmentLengths(points)
	total := floats.Sum(segs)
	if total == 0 {
		return points
	}
	n := max(3, int(stdmath.Round(total/spacing)))

	if len(points) == n {
		step, tol := total/float64(n), 1e-6*total
		uniform := true
		for _, l := range segs {
			if stdmath.Abs(l-step) > tol {
				uniform = false
				break
			}
		}
		if uniform {
			return points
		}
	}

	out := make([]Point, 0, n)
	seg, segStart := 0, 0.0
	for k := 0; k < n; k++ {
		target := total * float64(k) / float64(n)
		for target > segStart+segs[seg] && seg < len(points)-1 {
			segStart += segs[seg]
			seg++
		}
		t := 0.0
		if segs[seg] > 0 {
			t = stdmath.Min(stdmath.Max((target-segStart)/segs[seg], 0), 1)
		}
		a, b := points[seg], points[(seg+1)%len(points)]
		out = append(out, Point{
			Position:   a.Position.Lerp(b.Position, t),
			LeftWidth:  a.LeftWidth + t*(b.LeftWidth-a.LeftWidth),
			RightWidth: a.RightWidth + t*(b.RightWidth-a.RightWidth),
		})
	}
	return out
}

// segmentLengths returns the distance from each point to the next, the
// last one closing the loop.
func segmentLengths(points []Point) []float64 {
	segs := make([]float64, len(points))
	for i, p := range points {
		segs[i] = p.Position.Distance(points[(i+1)%len(points)].Position)
	}
	return segs
}

// SetDistances fills cumulative arc lengths and returns the closed length.
func SetDistances(points []Point) float64 {
	if len(points) == 0 {
		return 0
	}
	segs := segmentLengths(points)
	cum := make([]float64, len(segs))
	floats.CumSum(cum, segs)
	points[0].Distance = 0
	for i := 1; i < len(points); i++ {
		points[i].Distance = cum[i-1]
	}
	return cum[len(cum)-1]
}

// ToAILine converts the line into a fast_lane.ai record set. Each extra's
// Length is the distance to the next point, which equals the configured
// spacing when the line was resampled by ResampleSpacing.
func ToAILine(line *Line) *formats.AILine {
	out := &formats.AILine{
		Version: formats.AIVersion,
		Points:  make([]formats.AIPoint, len(line.Points)),
		Extras:  make([]formats.AIExtra, len(line.Points)),
	}
	for i, p := range line.Points {
		next := line.Points[(i+1)%len(line.Points)]
		dir := next.Position.Sub(p.Position)
		out.Points[i] = formats.AIPoint{
			Position: p.Position.Float32(),
			Distance: float32(p.Distance),
			ID:       int32(i),
		}
		out.Extras[i] = formats.AIExtra{
			Speed:     float32(p.Speed),
			Gas:       float32(p.Gas),
			Brake:     float32(p.Brake),
			SideLeft:  float32(p.LeftWidth),
			SideRight: float32(p.RightWidth),
			Normal:    [3]float32{0, 1, 0},
			Length:    float32(dir.Length()),
			Forward:   dir.Normalize().Float32(),
		}
	}
	return out
}

// Encode extracts the driving line and serializes it as fast_lane.ai.
func Encode(s *scene.Scene, opts Options) ([]byte, error) {
	line, err := Extract(s, opts)
	if err != nil {
		return nil, err
	}
	return formats.MarshalAI(ToAILine(line))
}

func withMesh(err error, mesh string) error {
	if ve, ok := err.(*errs.ValidationError); ok && ve.Mesh == "" {
		ve.Mesh = mesh
	}
	return err
}

func withLoop(err error, mesh string, loop int) error {
	if ve, ok := err.(*errs.ValidationError); ok {
		ve.Mesh = mesh
		ve.Loop = loop
	}
	return err
}
