package export

import (
	stdmath "math"
	"strconv"

	"github.com/Faultbox/trackforge/internal/scene"
	"github.com/Faultbox/trackforge/pkg/formats"
	"github.com/Faultbox/trackforge/pkg/math"
)

// BoundingSphere returns a sphere enclosing every position after float32
// encoding. The center is the float32 centroid; the radius is the largest
// float64 distance from it, rounded up to the next float32 when needed.
func BoundingSphere(positions [][3]float32) (center [3]float32, radius float32) {
	if len(positions) == 0 {
		return center, 0
	}

	var sum [3]float64
	for _, p := range positions {
		for i := range sum {
			sum[i] += float64(p[i])
		}
	}
	n := float64(len(positions))
	center = [3]float32{float32(sum[0] / n), float32(sum[1] / n), float32(sum[2] / n)}

	var maxDist float64
	for _, p := range positions {
		dx := float64(p[0]) - float64(center[0])
		dy := float64(p[1]) - float64(center[1])
		dz := float64(p[2]) - float64(center[2])
		if d := stdmath.Sqrt(dx*dx + dy*dy + dz*dz); d > maxDist {
			maxDist = d
		}
	}

	radius = float32(maxDist)
	if float64(radius) < maxDist {
		radius = stdmath.Nextafter32(radius, float32(stdmath.Inf(1)))
	}
	return center, radius
}

// Tangents computes per-vertex tangents from UV derivatives, accumulated
// over the triangles sharing a vertex and orthonormalized against the
// normal. Vertices without usable UVs get a stable perpendicular.
func Tangents(vertices []scene.Vertex, indices []uint32) []math.Vec3 {
	acc := make([]math.Vec3, len(vertices))
	for t := 0; t+2 < len(indices); t += 3 {
		i0, i1, i2 := indices[t], indices[t+1], indices[t+2]
		v0, v1, v2 := vertices[i0], vertices[i1], vertices[i2]

		e1 := v1.Position.Sub(v0.Position)
		e2 := v2.Position.Sub(v0.Position)
		d1 := v1.UV.Sub(v0.UV)
		d2 := v2.UV.Sub(v0.UV)

		r := d1.X*d2.Y - d2.X*d1.Y
		if stdmath.Abs(r) < 1e-12 {
			continue
		}
		tangent := e1.Scale(d2.Y).Sub(e2.Scale(d1.Y)).Scale(1 / r)
		for _, i := range [3]uint32{i0, i1, i2} {
			acc[i] = acc[i].Add(tangent)
		}
	}

	out := make([]math.Vec3, len(vertices))
	for i, v := range vertices {
		n := v.Normal
		t := acc[i].Sub(n.Scale(n.Dot(acc[i])))
		if t.Length() < 1e-9 {
			t = perpendicular(n)
		}
		out[i] = t.Normalize()
	}
	return out
}

// perpendicular returns a unit vector orthogonal to n, built from the axis
// least aligned with it.
func perpendicular(n math.Vec3) math.Vec3 {
	if n.Length() < 1e-9 {
		return math.Vec3{X: 1}
	}
	axis := math.Vec3{X: 1}
	if stdmath.Abs(n.Normalize().X) > 0.9 {
		axis = math.Vec3{Y: 1}
	}
	return n.Cross(axis).Normalize()
}

// part is one vertex-limited piece of a mesh.
type part struct {
	name     string
	source   *scene.Mesh
	vertices []scene.Vertex
	indices  []uint32
}

// split cuts a mesh into parts of at most limit vertices. Triangles keep
// their order; a new part starts when the next triangle would not fit.
// The first part keeps the mesh name, later ones get _1, _2, ...
func split(mesh *scene.Mesh, name string, limit int) []part {
	if len(mesh.Vertices) <= limit {
		return []part{{name: name, source: mesh, vertices: mesh.Vertices, indices: mesh.Indices}}
	}

	var parts []part
	cur := part{name: name, source: mesh}
	remap := make(map[uint32]uint32)
	for t := 0; t+2 < len(mesh.Indices); t += 3 {
		tri := mesh.Indices[t : t+3]
		added := 0
		for _, idx := range tri {
			if _, ok := remap[idx]; !ok {
				added++
			}
		}
		if len(cur.vertices)+added > limit {
			parts = append(parts, cur)
			cur = part{name: partName(name, len(parts)), source: mesh}
			remap = make(map[uint32]uint32)
		}
		for _, idx := range tri {
			local, ok := remap[idx]
			if !ok {
				local = uint32(len(cur.vertices))
				remap[idx] = local
				cur.vertices = append(cur.vertices, mesh.Vertices[idx])
			}
			cur.indices = append(cur.indices, local)
		}
	}
	if len(cur.indices) > 0 {
		parts = append(parts, cur)
	}
	return parts
}

func partName(name string, n int) string {
	if n == 0 {
		return name
	}
	return name + "_" + strconv.Itoa(n)
}

// boxFaces lists the six faces of the marker box as normal, tangent and
// corners in counter-clockwise order, for a unit half extent.
var boxFaces = [6]struct {
	normal, tangent [3]float32
	corners         [4][3]float32
}{
	{[3]float32{0, 1, 0}, [3]float32{1, 0, 0}, [4][3]float32{{-1, 1, -1}, {1, 1, -1}, {1, 1, 1}, {-1, 1, 1}}},
	{[3]float32{0, -1, 0}, [3]float32{1, 0, 0}, [4][3]float32{{-1, -1, 1}, {1, -1, 1}, {1, -1, -1}, {-1, -1, -1}}},
	{[3]float32{1, 0, 0}, [3]float32{0, 0, 1}, [4][3]float32{{1, -1, -1}, {1, -1, 1}, {1, 1, 1}, {1, 1, -1}}},
	{[3]float32{-1, 0, 0}, [3]float32{0, 0, -1}, [4][3]float32{{-1, -1, 1}, {-1, -1, -1}, {-1, 1, -1}, {-1, 1, 1}}},
	{[3]float32{0, 0, 1}, [3]float32{1, 0, 0}, [4][3]float32{{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1}}},
	{[3]float32{0, 0, -1}, [3]float32{-1, 0, 0}, [4][3]float32{{1, -1, -1}, {-1, -1, -1}, {-1, 1, -1}, {1, 1, -1}}},
}

var boxUVs = [4][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

// markerBox returns the placeholder mesh the simulator expects under every
// marker dummy: a cube of the given edge length with 24 vertices and 36
// indices, hidden and without shadows.
func markerBox(size float64) *formats.KN5Mesh {
	h := float32(size / 2)
	mesh := &formats.KN5Mesh{
		Vertices:   make([]formats.KN5Vertex, 0, 24),
		Indices:    make([]uint16, 0, 36),
		Renderable: true,
	}
	for _, f := range boxFaces {
		base := uint16(len(mesh.Vertices))
		for i, c := range f.corners {
			mesh.Vertices = append(mesh.Vertices, formats.KN5Vertex{
				Position: [3]float32{c[0] * h, c[1] * h, c[2] * h},
				Normal:   f.normal,
				UV:       boxUVs[i],
				Tangent:  f.tangent,
			})
		}
		mesh.Indices = append(mesh.Indices, base, base+1, base+2, base, base+2, base+3)
	}

	positions := make([][3]float32, len(mesh.Vertices))
	for i, v := range mesh.Vertices {
		positions[i] = v.Position
	}
	mesh.Center, mesh.Radius = BoundingSphere(positions)
	return mesh
}
