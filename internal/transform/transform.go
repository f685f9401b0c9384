// Package transform converts the scene from the authoring convention
// (right-handed, +Z up, column vectors) to the engine convention
// (+Y up, row-major DirectX matrices).
//
// Geometry is baked into world space during conversion, so grouping nodes
// carry an identity matrix in the model. Markers keep their own converted
// matrix because the simulator reads their placement from it.
package transform

import (
	"fmt"
	stdmath "math"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/trackforge/internal/errs"
	"github.com/Faultbox/trackforge/internal/logger"
	"github.com/Faultbox/trackforge/internal/scene"
	"github.com/Faultbox/trackforge/pkg/math"
)

// DefaultTolerance bounds |det - 1| for a rigid matrix.
const DefaultTolerance = 1e-4

// degenerateEpsilon bounds |det| for matrices treated as singular.
const degenerateEpsilon = 1e-9

// Options selects the determinant policy. The zero value requires every
// converted matrix to satisfy |det - 1| <= DefaultTolerance.
type Options struct {
	// AllowScale relaxes the check to det > 0 so scaled nodes pass.
	AllowScale bool
	Tolerance  float64
	Log        *zap.Logger
}

// basis maps authoring axes to engine axes: x stays, z becomes y, y becomes -z.
var basis = math.FromRows([16]float64{
	1, 0, 0, 0,
	0, 0, 1, 0,
	0, -1, 0, 0,
	0, 0, 0, 1,
})

// Position converts a point or direction: (x, y, z) -> (x, z, -y).
func Position(v math.Vec3) math.Vec3 {
	return math.Vec3{X: v.X, Y: v.Z, Z: -v.Y}
}

// Normal transforms n by the inverse-transpose of world, converts it and
// normalizes the result. A singular world leaves the direction untransformed.
func Normal(n math.Vec3, world math.Mat4) math.Vec3 {
	nm, _ := world.NormalMatrix()
	return Position(nm.TransformDirection(n)).Normalize()
}

// FlipV mirrors the V texture coordinate.
func FlipV(uv math.Vec2) math.Vec2 {
	return math.Vec2{X: uv.X, Y: 1 - uv.Y}
}

// ConvertMatrix returns transpose(C*m), the row-major engine matrix for an
// authoring matrix, and checks its determinant. The returned TransformError
// has no node name; callers fill it in.
func ConvertMatrix(m math.Mat4, opts Options) (math.Mat4, error) {
	out := basis.Mul(m).Transpose()
	det := out.Det()

	var err error
	switch {
	case stdmath.Abs(det) <= degenerateEpsilon:
		err = fmt.Errorf("degenerate matrix")
	case det < 0:
		err = fmt.Errorf("mirrored matrix")
	case !opts.AllowScale && stdmath.Abs(det-1) > tolerance(opts):
		err = fmt.Errorf("scaled matrix, tolerance %g", tolerance(opts))
	}
	if err != nil {
		return out, &errs.TransformError{Det: det, Err: err}
	}
	return out, nil
}

func tolerance(opts Options) float64 {
	if opts.Tolerance > 0 {
		return opts.Tolerance
	}
	return DefaultTolerance
}

// MarkerRotation returns the heading of an authoring-plane tangent and the
// XYZ Euler angles, in degrees, that orient a marker along it.
func MarkerRotation(forward math.Vec2) (heading float64, euler math.Vec3) {
	heading = stdmath.Atan2(forward.X, -forward.Y)
	return heading, math.Vec3{X: 90, Y: 0, Z: 180 - heading*180/stdmath.Pi}
}

// MarkerMatrix returns T(location) * Rz * Ry * Rx for the marker rotation of
// forward.
func MarkerMatrix(location math.Vec3, forward math.Vec2) math.Mat4 {
	_, e := MarkerRotation(forward)
	e = e.Scale(stdmath.Pi / 180)
	rot := math.QuatFromEulerXYZ(e.X, e.Y, e.Z).Normalize().ToMat4()
	return math.Translate(location.X, location.Y, location.Z).Mul(rot)
}

// Apply converts the scene in place. It bakes every mesh into engine world
// space, sets Node.Engine to identity and converts marker matrices. All
// determinant failures are reported together. Apply must run once per scene.
func Apply(s *scene.Scene, opts Options) error {
	log := logger.OrNop(opts.Log)
	if err := s.UpdateWorld(); err != nil {
		return err
	}

	var result error
	baked := 0
	walkErr := s.Walk(func(n, _ *scene.Node) error {
		n.Engine = math.Identity()
		if _, err := ConvertMatrix(n.World, opts); err != nil {
			result = multierr.Append(result, named(err, n.Name))
			return nil
		}
		for _, mesh := range n.Meshes {
			Bake(mesh, n.World)
			baked++
		}
		return nil
	})
	if walkErr != nil {
		return walkErr
	}

	for _, m := range s.Markers {
		if m.HasForward {
			m.World = MarkerMatrix(m.Location(), m.Forward)
		}
		engine, err := ConvertMatrix(m.World, opts)
		if err != nil {
			result = multierr.Append(result, named(err, m.Name))
			continue
		}
		m.Engine = engine
	}

	if result != nil {
		log.Warn("Transform check failed", zap.Int("errors", len(multierr.Errors(result))))
		return result
	}
	log.Debug("Scene converted",
		zap.Int("meshes", baked),
		zap.Int("markers", len(s.Markers)))
	return nil
}

// Bake moves mesh vertices from local space into engine world space.
func Bake(mesh *scene.Mesh, world math.Mat4) {
	nm, _ := world.NormalMatrix()
	for i := range mesh.Vertices {
		v := &mesh.Vertices[i]
		v.Position = Position(world.TransformPoint(v.Position))
		v.Normal = Position(nm.TransformDirection(v.Normal)).Normalize()
		v.UV = FlipV(v.UV)
	}
}

func named(err error, name string) error {
	if te, ok := err.(*errs.TransformError); ok {
		te.Node = name
	}
	return err
}
