package scene

import (
	"encoding/binary"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/trackforge/internal/errs"
	"github.com/Faultbox/trackforge/pkg/math"
)

const testScene = `name: testring
textures_dir: textures
materials:
  - name: asphalt
    texture: asphalt.dds
    diffuse: 0.9
  - name: grass
    shader: ksPerPixelNM
    texture: ./asphalt.dds
  - name: paint
nodes:
  - name: track
    location: [10, 0, 0]
    geometry: road.obj
    material: asphalt
  - name: barrier
    parent: track
    transform: [1,0,0,0, 0,1,0,0, 0,0,1,0, 0,5,0,1]
  - name: far
    rotation_euler: [0, 0, 90]
markers:
  - name: AC_START_0
    location: [1, 2, 3]
    forward: [0, 1]
  - name: AC_PIT_0
    transform: [1,0,0,0, 0,1,0,0, 0,0,1,0, 4,5,6,1]
`

const testRoad = `o 1ROAD
v 0 0 0
v 1 0 0
v 0 1 0
f 1 2 3
o 1KERB
v 2 0 0
usemtl paint
f 2 4 3
`

func ddsFixture(w, h uint32) []byte {
	data := make([]byte, 128)
	copy(data, "DDS ")
	binary.LittleEndian.PutUint32(data[4:], 124)
	binary.LittleEndian.PutUint32(data[12:], h)
	binary.LittleEndian.PutUint32(data[16:], w)
	return data
}

func writeTestScene(t *testing.T, scene string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/scene.yaml", []byte(scene), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/work/road.obj", []byte(testRoad), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/work/textures/asphalt.dds", ddsFixture(64, 32), 0o644))
	return fs
}

func TestLoadFile(t *testing.T) {
	fs := writeTestScene(t, testScene)

	s, err := LoadFile(fs, "/work/scene.yaml", LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "testring", s.Name)
	require.Len(t, s.Root.Children, 2)
	track := s.Root.Children[0]
	assert.Equal(t, "track", track.Name)
	assert.Equal(t, "far", s.Root.Children[1].Name)
	require.Len(t, track.Children, 1)

	barrier := track.Children[0]
	assert.Equal(t, math.Vec3{X: 10, Y: 5}, barrier.World.Translation())

	far := s.Root.Children[1]
	x := far.World.TransformDirection(math.Vec3{X: 1})
	assert.InDelta(t, 1, x.Y, 1e-12)

	// Both materials point at one file and share the texture.
	require.Len(t, s.Textures, 1)
	tex := s.Textures[0]
	assert.Equal(t, "asphalt.dds", tex.Name)
	assert.Equal(t, "dds", tex.Format)
	assert.Equal(t, 64, tex.Width)
	assert.Equal(t, 32, tex.Height)
	require.Len(t, s.Materials, 3)
	assert.Same(t, s.Materials[0].Texture, s.Materials[1].Texture)
	assert.InDelta(t, 0.9, s.Materials[0].Params.Diffuse, 0)
	assert.InDelta(t, DefaultAmbient, s.Materials[0].Params.Ambient, 0)
	assert.Equal(t, "ksPerPixelNM", s.Materials[1].Shader)
	assert.Nil(t, s.Materials[2].Texture)

	require.Len(t, track.Meshes, 2)
	assert.Equal(t, "1ROAD", track.Meshes[0].Name)
	assert.Same(t, s.Materials[0], track.Meshes[0].Material)
	assert.Equal(t, "1KERB", track.Meshes[1].Name)
	assert.Same(t, s.Materials[2], track.Meshes[1].Material)

	require.Len(t, s.Markers, 2)
	start := s.Markers[0]
	assert.Equal(t, MarkerStart, start.Kind)
	assert.True(t, start.HasForward)
	assert.Equal(t, math.Vec3{X: 1, Y: 2, Z: 3}, start.Location())
	pit := s.Markers[1]
	assert.Equal(t, MarkerPit, pit.Kind)
	assert.False(t, pit.HasForward)
	assert.Equal(t, math.Vec3{X: 4, Y: 5, Z: 6}, pit.Location())
}

func TestLoadFile_DefaultName(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/monza.yaml", []byte("nodes: []\n"), 0o644))

	s, err := LoadFile(fs, "/work/monza.yaml", LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "monza", s.Name)
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		scene string
		check func(error) bool
	}{
		{"self parent", "nodes:\n  - {name: a, parent: a}\n", errs.IsValidation},
		{"unknown parent", "nodes:\n  - {name: a, parent: b}\n", errs.IsValidation},
		{"duplicate node", "nodes:\n  - {name: a}\n  - {name: a}\n", errs.IsValidation},
		{"cycle", "nodes:\n  - {name: a, parent: b}\n  - {name: b, parent: a}\n", errs.IsValidation},
		{"bad transform", "nodes:\n  - {name: a, transform: [1, 2, 3]}\n", errs.IsValidation},
		{"bad location", "nodes:\n  - {name: a, location: [1, 2]}\n", errs.IsValidation},
		{"unknown material", "nodes:\n  - {name: a, geometry: road.obj, material: nope}\n", errs.IsValidation},
		{"unknown usemtl", "nodes:\n  - {name: a, geometry: road.obj}\n", errs.IsValidation},
		{"missing geometry", "nodes:\n  - {name: a, geometry: nope.obj}\n", errs.IsIO},
		{"missing texture", "materials:\n  - {name: m, texture: nope.dds}\n", errs.IsIO},
		{"marker prefix", "markers:\n  - {name: START_0, location: [0, 0, 0]}\n", errs.IsValidation},
		{"marker location", "markers:\n  - {name: AC_START_0}\n", errs.IsValidation},
		{"marker forward", "markers:\n  - {name: AC_START_0, location: [0, 0, 0], forward: [0, 0]}\n", errs.IsValidation},
		{"duplicate marker", "markers:\n  - {name: AC_PIT_0, location: [0, 0, 0]}\n  - {name: AC_PIT_0, location: [0, 0, 0]}\n", errs.IsValidation},
		{"malformed yaml", "nodes: [\n", errs.IsValidation},
		{"unknown encoding", "encoding: ebcdic\n", errs.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := writeTestScene(t, tt.scene)
			_, err := LoadFile(fs, "/work/scene.yaml", LoadOptions{})
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error type %T: %v", err, err)
		})
	}
}

func TestLoadFile_MissingScene(t *testing.T) {
	_, err := LoadFile(afero.NewMemMapFs(), "/nope.yaml", LoadOptions{})
	assert.True(t, errs.IsIO(err))
}

func TestSources(t *testing.T) {
	fs := writeTestScene(t, testScene)

	paths, err := Sources(fs, "/work/scene.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"/work/scene.yaml", "/work/road.obj", "/work/textures/asphalt.dds"}, paths)

	_, err = Sources(fs, "/work/none.yaml")
	assert.True(t, errs.IsIO(err))
}
