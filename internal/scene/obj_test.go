package scene

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/trackforge/internal/errs"
	"github.com/Faultbox/trackforge/pkg/math"
)

const quadOBJ = `# quad
o ROAD_main
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
usemtl asphalt
f 1/1/1 2/2/1 3/3/1 4/4/1
`

func TestReadOBJ_Quad(t *testing.T) {
	objects, err := ReadOBJ(strings.NewReader(quadOBJ), "quad.obj", "")
	require.NoError(t, err)
	require.Len(t, objects, 1)

	obj := objects[0]
	assert.Equal(t, "asphalt", obj.Material)
	assert.Equal(t, "ROAD_main", obj.Mesh.Name)
	assert.Len(t, obj.Mesh.Vertices, 4)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, obj.Mesh.Indices)
	assert.Equal(t, math.Vec2{X: 1, Y: 1}, obj.Mesh.Vertices[2].UV)
	assert.Equal(t, math.Vec3{Z: 1}, obj.Mesh.Vertices[0].Normal)
	assert.Equal(t, NoSurface, obj.Mesh.Surface)
	require.NoError(t, obj.Mesh.Validate())
}

func TestReadOBJ_NegativeIndicesAndComputedNormals(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 0 1 0
f -3 -2 -1
`
	objects, err := ReadOBJ(strings.NewReader(src), "tri.obj", "")
	require.NoError(t, err)
	require.Len(t, objects, 1)

	mesh := objects[0].Mesh
	assert.Equal(t, "default", mesh.Name)
	assert.Equal(t, []uint32{0, 1, 2}, mesh.Indices)
	for _, v := range mesh.Vertices {
		assert.InDelta(t, 1, v.Normal.Z, 1e-12)
	}
}

func TestReadOBJ_SharedVerticesAreDeduplicated(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
f 1 2 3
f 1 3 4
`
	objects, err := ReadOBJ(strings.NewReader(src), "quad.obj", "")
	require.NoError(t, err)
	assert.Len(t, objects[0].Mesh.Vertices, 4)
	assert.Equal(t, 2, objects[0].Mesh.TriangleCount())
}

func TestReadOBJ_GroupsAndMaterialSwitch(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 0 1 0
g 1WALL_a
usemtl concrete
f 1 2 3
usemtl paint
f 1 3 2
g 1KERB_b
f 1 2 3
`
	objects, err := ReadOBJ(strings.NewReader(src), "walls.obj", "")
	require.NoError(t, err)
	require.Len(t, objects, 3)

	assert.Equal(t, "1WALL_a", objects[0].Mesh.Name)
	assert.Equal(t, "concrete", objects[0].Material)
	assert.Equal(t, "1WALL_a_paint", objects[1].Mesh.Name)
	assert.Equal(t, "paint", objects[1].Material)
	assert.Equal(t, "1KERB_b", objects[2].Mesh.Name)
	assert.Empty(t, objects[2].Material)
}

func TestReadOBJ_DecodesLegacyNames(t *testing.T) {
	src := "o caf\xe9\nv 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"
	objects, err := ReadOBJ(strings.NewReader(src), "legacy.obj", "windows-1252")
	require.NoError(t, err)
	assert.Equal(t, "café", objects[0].Mesh.Name)
}

func TestReadOBJ_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"short vertex", "v 1 2\n"},
		{"bad float", "v 1 x 2\n"},
		{"two-vertex face", "v 0 0 0\nv 1 0 0\nf 1 2\n"},
		{"index out of range", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 4\n"},
		{"zero index", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n"},
		{"missing uv", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1/1 2/1 3/1\n"},
		{"bare group", "g\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadOBJ(strings.NewReader(tt.src), "bad.obj", "")
			require.Error(t, err)
			assert.True(t, errs.IsValidation(err), "got %T: %v", err, err)
			assert.Contains(t, err.Error(), "bad.obj:")
		})
	}
}
