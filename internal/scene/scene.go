// Package scene holds the intermediate scene model: a snapshot of nodes,
// meshes, materials, textures and markers taken from the authoring files.
//
// The model is built once per run. The transform and surface passes decorate
// it in place; the exporter and the centerline extractor only read it.
package scene

import (
	"fmt"

	"github.com/Faultbox/trackforge/internal/errs"
	"github.com/Faultbox/trackforge/pkg/math"
)

// NoSurface marks a mesh without a physical surface (visual only).
const NoSurface = -1

// Default material values written as ksAmbient, ksDiffuse, ksSpecular and
// ksSpecularEXP.
const (
	DefaultShader   = "ksPerPixel"
	DefaultAmbient  = 0.5
	DefaultDiffuse  = 0.7
	DefaultSpecular = 0.2
	DefaultExponent = 15
)

// Vertex is one mesh vertex.
type Vertex struct {
	Position math.Vec3
	Normal   math.Vec3
	UV       math.Vec2
}

// Sphere is a bounding sphere.
type Sphere struct {
	Center math.Vec3
	Radius float64
}

// Params holds the numeric shader parameters of a material.
type Params struct {
	Ambient  float64
	Diffuse  float64
	Specular float64
	Exponent float64
}

// DefaultParams returns the parameters used when a material sets none.
func DefaultParams() Params {
	return Params{
		Ambient:  DefaultAmbient,
		Diffuse:  DefaultDiffuse,
		Specular: DefaultSpecular,
		Exponent: DefaultExponent,
	}
}

// Texture is an encoded image file embedded unchanged.
type Texture struct {
	Name   string // Base name written to the model
	Path   string // Normalized source path
	Data   []byte
	Width  int
	Height int
	Format string
}

// Material is a shader, its parameters and at most one texture.
type Material struct {
	Name    string
	Shader  string
	Params  Params
	Texture *Texture
}

// DefaultMaterial returns the material used by meshes that have none.
func DefaultMaterial() *Material {
	return &Material{Name: "default", Shader: DefaultShader, Params: DefaultParams()}
}

// Mesh is an indexed triangle list.
type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
	Material *Material

	// Set by the surface pass.
	Surface    int
	SurfaceKey string

	// Set by the exporter.
	Bounds Sphere
}

// NewMesh returns an empty mesh with no surface assigned.
func NewMesh(name string) *Mesh {
	return &Mesh{Name: name, Surface: NoSurface}
}

// Validate checks that indices form a triangle list within the vertex buffer.
func (m *Mesh) Validate() error {
	if len(m.Indices)%3 != 0 {
		return errs.NewValidation(m.Name, fmt.Sprintf("index count %d is not a multiple of 3", len(m.Indices)))
	}
	for i, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			return errs.NewValidation(m.Name, fmt.Sprintf("index %d at position %d out of range for %d vertices", idx, i, len(m.Vertices)))
		}
	}
	return nil
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Node is a transform in the scene tree. Children are owned by their parent.
type Node struct {
	Name     string
	Local    math.Mat4 // Relative to parent, authoring convention
	Children []*Node
	Meshes   []*Mesh

	// Set by the transform pass.
	World  math.Mat4 // Authoring convention
	Engine math.Mat4 // Matrix written to the model
}

// NewNode returns a node with identity transforms.
func NewNode(name string) *Node {
	return &Node{Name: name, Local: math.Identity(), World: math.Identity(), Engine: math.Identity()}
}

// AddChild appends child and returns it.
func (n *Node) AddChild(child *Node) *Node {
	n.Children = append(n.Children, child)
	return child
}

// Scene is the root of the intermediate model.
type Scene struct {
	Name      string
	Root      *Node
	Materials []*Material
	Textures  []*Texture
	Markers   []*Marker
}

// New returns an empty scene with a root node.
func New(name string) *Scene {
	return &Scene{Name: name, Root: NewNode(name)}
}

// Walk visits every node depth-first in child order.
// It returns a ValidationError if a node is reachable twice, which covers
// cycles and shared subtrees.
func (s *Scene) Walk(fn func(n *Node, parent *Node) error) error {
	if s.Root == nil {
		return nil
	}
	visited := make(map[*Node]bool)
	return walk(s.Root, nil, visited, fn)
}

func walk(n, parent *Node, visited map[*Node]bool, fn func(*Node, *Node) error) error {
	// Prevent infinite recursion
	if visited[n] {
		return errs.NewValidation("", fmt.Sprintf("node %q appears twice in the scene tree", n.Name))
	}
	visited[n] = true

	if err := fn(n, parent); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := walk(c, n, visited, fn); err != nil {
			return err
		}
	}
	return nil
}

// Meshes returns every mesh in depth-first node order.
func (s *Scene) Meshes() []*Mesh {
	var meshes []*Mesh
	_ = s.Walk(func(n, _ *Node) error {
		meshes = append(meshes, n.Meshes...)
		return nil
	})
	return meshes
}

// UpdateWorld computes World = parent.World * Local for every node.
func (s *Scene) UpdateWorld() error {
	return s.Walk(func(n, parent *Node) error {
		if parent == nil {
			n.World = n.Local
			return nil
		}
		n.World = parent.World.Mul(n.Local)
		return nil
	})
}
