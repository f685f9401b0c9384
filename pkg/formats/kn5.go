// KN5 track model container reader and writer.
package formats

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// KN5 format errors.
var (
	ErrInvalidKN5Magic       = errors.New("invalid KN5 magic: expected 'sc6969'")
	ErrUnsupportedKN5Version = errors.New("unsupported KN5 version")
	ErrKN5TooManyVertices    = errors.New("KN5 mesh exceeds 65535 vertices")
	ErrKN5IndexOutOfRange    = errors.New("KN5 mesh index out of range")
	ErrUnknownKN5NodeKind    = errors.New("unknown KN5 node kind")
)

// KN5Magic is the file identifier at offset 0.
const KN5Magic = "sc6969"

// KN5 versions understood by this package.
const (
	KN5VersionMin     = 5
	KN5VersionMax     = 6
	KN5VersionDefault = 6
)

// MaxKN5Vertices is the vertex limit of a single mesh (16-bit indices).
const MaxKN5Vertices = 65535

// propertyPadding is the unused vector payload following each material property.
const propertyPadding = 36

// KN5Version is the container version.
type KN5Version int32

// AtLeast returns true if version is >= v.
func (v KN5Version) AtLeast(other int32) bool {
	return int32(v) >= other
}

// KN5NodeKind identifies a node record.
type KN5NodeKind int32

const (
	KN5NodeDummy KN5NodeKind = 1 // Transform only
	KN5NodeMesh  KN5NodeKind = 2 // Static mesh
)

// String returns a human-readable node kind name.
func (k KN5NodeKind) String() string {
	switch k {
	case KN5NodeDummy:
		return "Dummy"
	case KN5NodeMesh:
		return "Mesh"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(k))
	}
}

// KN5Texture is an embedded texture file.
type KN5Texture struct {
	Name string // File name referenced by samplers
	Data []byte // Encoded image bytes (DDS, PNG...)
}

// KN5Property is a named shader constant.
type KN5Property struct {
	Name  string
	Value float32
}

// KN5Sampler binds a texture to a shader slot.
type KN5Sampler struct {
	Name    string // Shader resource name, e.g. txDiffuse
	Slot    int32
	Texture string // KN5Texture.Name
}

// KN5Material is a shader with its constants and samplers.
type KN5Material struct {
	Name       string
	Shader     string
	Properties []KN5Property
	Samplers   []KN5Sampler
}

// KN5Vertex is one interleaved vertex record (44 bytes).
type KN5Vertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
	Tangent  [3]float32
}

// KN5Mesh holds the payload of a mesh node.
type KN5Mesh struct {
	CastShadows bool
	Visible     bool
	Transparent bool
	Vertices    []KN5Vertex
	Indices     []uint16
	MaterialID  int32
	Layer       int32
	LODIn       float32
	LODOut      float32
	Center      [3]float32 // Bounding sphere center
	Radius      float32    // Bounding sphere radius
	Renderable  bool
}

// KN5Node is a node of the scene tree.
// Matrix is row-major with the translation in the last row.
type KN5Node struct {
	Kind     KN5NodeKind
	Name     string
	Active   bool
	Matrix   [16]float32 // Dummy nodes only
	Children []*KN5Node  // Dummy nodes only
	Mesh     *KN5Mesh    // Mesh nodes only
}

// KN5 represents a complete KN5 container.
type KN5 struct {
	Version   KN5Version
	Textures  []KN5Texture
	Materials []KN5Material
	Root      *KN5Node
}

// IdentityMatrix returns a row-major identity matrix.
func IdentityMatrix() [16]float32 {
	return [16]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// WriteKN5 serializes m to w.
func WriteKN5(w io.Writer, m *KN5) error {
	if m.Version < KN5VersionMin || m.Version > KN5VersionMax {
		return fmt.Errorf("%w: %d", ErrUnsupportedKN5Version, m.Version)
	}
	if m.Root == nil {
		return errors.New("KN5 has no root node")
	}

	bw := &binWriter{w: w}
	bw.raw([]byte(KN5Magic))
	bw.i32(int32(m.Version))
	if m.Version.AtLeast(6) {
		bw.i32(0)
	}

	bw.i32(int32(len(m.Textures)))
	for _, tex := range m.Textures {
		bw.i32(1)
		bw.str(tex.Name)
		bw.i32(int32(len(tex.Data)))
		bw.raw(tex.Data)
	}

	bw.i32(int32(len(m.Materials)))
	for _, mat := range m.Materials {
		writeKN5Material(bw, m.Version, mat)
	}
	if bw.err != nil {
		return bw.err
	}

	if err := writeKN5Node(bw, m.Root); err != nil {
		return err
	}
	return bw.err
}

// MarshalKN5 serializes m into a new byte slice.
func MarshalKN5(m *KN5) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteKN5(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeKN5Material(bw *binWriter, version KN5Version, mat KN5Material) {
	bw.str(mat.Name)
	bw.str(mat.Shader)
	bw.write(int16(0)) // blend mode: opaque
	if version.AtLeast(5) {
		bw.i32(0) // depth mode
	}
	bw.i32(int32(len(mat.Properties)))
	var pad [propertyPadding]byte
	for _, p := range mat.Properties {
		bw.str(p.Name)
		bw.f32(p.Value)
		bw.raw(pad[:])
	}
	bw.i32(int32(len(mat.Samplers)))
	for _, s := range mat.Samplers {
		bw.str(s.Name)
		bw.i32(s.Slot)
		bw.str(s.Texture)
	}
}

func writeKN5Node(bw *binWriter, n *KN5Node) error {
	bw.i32(int32(n.Kind))
	bw.str(n.Name)

	switch n.Kind {
	case KN5NodeDummy:
		bw.i32(int32(len(n.Children)))
		bw.u8(n.Active)
		bw.write(n.Matrix)
		for _, child := range n.Children {
			if err := writeKN5Node(bw, child); err != nil {
				return err
			}
		}
	case KN5NodeMesh:
		mesh := n.Mesh
		if mesh == nil {
			return fmt.Errorf("mesh node %q has no mesh", n.Name)
		}
		if len(mesh.Vertices) > MaxKN5Vertices {
			return fmt.Errorf("%w: %q has %d", ErrKN5TooManyVertices, n.Name, len(mesh.Vertices))
		}
		for _, idx := range mesh.Indices {
			if int(idx) >= len(mesh.Vertices) {
				return fmt.Errorf("%w: %q index %d, %d vertices", ErrKN5IndexOutOfRange, n.Name, idx, len(mesh.Vertices))
			}
		}
		bw.i32(0) // mesh nodes have no children
		bw.u8(n.Active)
		bw.u8(mesh.CastShadows)
		bw.u8(mesh.Visible)
		bw.u8(mesh.Transparent)
		bw.i32(int32(len(mesh.Vertices)))
		bw.write(mesh.Vertices)
		bw.i32(int32(len(mesh.Indices)))
		bw.write(mesh.Indices)
		bw.i32(mesh.MaterialID)
		bw.i32(mesh.Layer)
		bw.f32(mesh.LODIn)
		bw.f32(mesh.LODOut)
		bw.write(mesh.Center)
		bw.f32(mesh.Radius)
		bw.u8(mesh.Renderable)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKN5NodeKind, n.Kind)
	}
	return bw.err
}

// ParseKN5 parses KN5 data from a byte slice.
func ParseKN5(data []byte) (*KN5, error) {
	if len(data) < len(KN5Magic)+4 {
		return nil, ErrTruncated
	}
	if string(data[:len(KN5Magic)]) != KN5Magic {
		return nil, ErrInvalidKN5Magic
	}

	br := newBinReader(data[len(KN5Magic):])
	m := &KN5{Version: KN5Version(br.i32())}
	if m.Version < KN5VersionMin || m.Version > KN5VersionMax {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedKN5Version, m.Version)
	}
	if m.Version.AtLeast(6) {
		br.i32()
	}

	texCount := br.count(12)
	m.Textures = make([]KN5Texture, 0, texCount)
	for i := 0; i < texCount && br.err == nil; i++ {
		br.i32() // texture type
		name := br.str()
		size := br.i32()
		m.Textures = append(m.Textures, KN5Texture{Name: name, Data: br.bytes(int(size))})
	}
	if br.err != nil {
		return nil, fmt.Errorf("parsing textures: %w", br.err)
	}

	matCount := br.count(18)
	m.Materials = make([]KN5Material, 0, matCount)
	for i := 0; i < matCount && br.err == nil; i++ {
		m.Materials = append(m.Materials, parseKN5Material(br, m.Version))
	}
	if br.err != nil {
		return nil, fmt.Errorf("parsing materials: %w", br.err)
	}

	root, err := parseKN5Node(br, 0)
	if err != nil {
		return nil, fmt.Errorf("parsing nodes: %w", err)
	}
	m.Root = root
	return m, nil
}

// ParseKN5File parses a KN5 file from disk.
func ParseKN5File(path string) (*KN5, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading KN5 file: %w", err)
	}
	return ParseKN5(data)
}

func parseKN5Material(br *binReader, version KN5Version) KN5Material {
	mat := KN5Material{Name: br.str(), Shader: br.str()}
	var blend int16
	br.read(&blend)
	if version.AtLeast(5) {
		br.i32()
	}
	propCount := br.count(8 + propertyPadding)
	for i := 0; i < propCount && br.err == nil; i++ {
		p := KN5Property{Name: br.str(), Value: br.f32()}
		br.skip(propertyPadding)
		mat.Properties = append(mat.Properties, p)
	}
	samplerCount := br.count(12)
	for i := 0; i < samplerCount && br.err == nil; i++ {
		mat.Samplers = append(mat.Samplers, KN5Sampler{Name: br.str(), Slot: br.i32(), Texture: br.str()})
	}
	return mat
}

// maxKN5Depth bounds node nesting when reading untrusted files.
const maxKN5Depth = 256

func parseKN5Node(br *binReader, depth int) (*KN5Node, error) {
	if depth > maxKN5Depth {
		return nil, errors.New("KN5 node tree too deep")
	}
	n := &KN5Node{Kind: KN5NodeKind(br.i32()), Name: br.str()}
	childCount := br.count(9)
	n.Active = br.u8()
	if br.err != nil {
		return nil, br.err
	}

	switch n.Kind {
	case KN5NodeDummy:
		br.read(&n.Matrix)
		for i := 0; i < childCount; i++ {
			child, err := parseKN5Node(br, depth+1)
			if err != nil {
				return nil, fmt.Errorf("child %d of %q: %w", i, n.Name, err)
			}
			n.Children = append(n.Children, child)
		}
	case KN5NodeMesh:
		mesh := &KN5Mesh{
			CastShadows: br.u8(),
			Visible:     br.u8(),
			Transparent: br.u8(),
		}
		mesh.Vertices = make([]KN5Vertex, br.count(44))
		br.read(mesh.Vertices)
		mesh.Indices = make([]uint16, br.count(2))
		br.read(mesh.Indices)
		mesh.MaterialID = br.i32()
		mesh.Layer = br.i32()
		mesh.LODIn = br.f32()
		mesh.LODOut = br.f32()
		br.read(&mesh.Center)
		mesh.Radius = br.f32()
		mesh.Renderable = br.u8()
		n.Mesh = mesh
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKN5NodeKind, n.Kind)
	}
	if br.err != nil {
		return nil, br.err
	}
	return n, nil
}

// Walk visits n and its descendants depth-first.
func (n *KN5Node) Walk(fn func(node *KN5Node, depth int)) {
	n.walk(fn, 0)
}

func (n *KN5Node) walk(fn func(*KN5Node, int), depth int) {
	fn(n, depth)
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// FindNode returns the first node with the given name, or nil.
func (m *KN5) FindNode(name string) *KN5Node {
	var found *KN5Node
	m.Root.Walk(func(n *KN5Node, _ int) {
		if found == nil && n.Name == name {
			found = n
		}
	})
	return found
}

// MeshCount returns the number of mesh nodes.
func (m *KN5) MeshCount() int {
	count := 0
	m.Root.Walk(func(n *KN5Node, _ int) {
		if n.Kind == KN5NodeMesh {
			count++
		}
	})
	return count
}

// TotalVertexCount returns the number of vertices across all meshes.
func (m *KN5) TotalVertexCount() int {
	total := 0
	m.Root.Walk(func(n *KN5Node, _ int) {
		if n.Mesh != nil {
			total += len(n.Mesh.Vertices)
		}
	})
	return total
}
