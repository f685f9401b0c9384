// Package export builds the KN5 track model from a converted scene.
//
// Build expects a scene that went through transform.Apply and surface.Apply.
// Output depends only on the scene: no timestamps, paths or map order reach
// the encoded bytes.
package export

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/trackforge/internal/errs"
	"github.com/Faultbox/trackforge/internal/logger"
	"github.com/Faultbox/trackforge/internal/scene"
	"github.com/Faultbox/trackforge/internal/surface"
	"github.com/Faultbox/trackforge/pkg/formats"
	"github.com/Faultbox/trackforge/pkg/math"
)

// Material property and sampler names read by the ksPerPixel family.
const (
	PropAmbient     = "ksAmbient"
	PropDiffuse     = "ksDiffuse"
	PropSpecular    = "ksSpecular"
	PropSpecularExp = "ksSpecularEXP"
	SamplerDiffuse  = "txDiffuse"
)

// DefaultMarkerBox is the edge length of marker boxes in meters.
const DefaultMarkerBox = 0.5

const (
	markerBoxSuffix   = "_box"
	markerBoxMaterial = 0
	defaultTrackName  = "track"
)

// Options controls model building.
type Options struct {
	TrackName     string  // Root node name; the scene name when empty
	Version       int32   // KN5 version; formats.KN5VersionDefault when zero
	MarkerBoxSize float64 // Edge length of marker boxes; DefaultMarkerBox when zero
	Workers       int     // Parallel mesh workers; unlimited when zero
	Log           *zap.Logger

	// vertexLimit overrides the per-mesh vertex limit in tests.
	vertexLimit int
}

type builder struct {
	opts Options
	log  *zap.Logger

	materials     []*scene.Material
	materialIndex map[*scene.Material]int
	fallback      *scene.Material
	textures      []*scene.Texture
	textureIndex  map[*scene.Texture]bool
}

// Build converts the scene into a KN5 container.
func Build(s *scene.Scene, opts Options) (*formats.KN5, error) {
	if opts.Version == 0 {
		opts.Version = formats.KN5VersionDefault
	}
	if opts.MarkerBoxSize <= 0 {
		opts.MarkerBoxSize = DefaultMarkerBox
	}
	if opts.vertexLimit == 0 {
		opts.vertexLimit = formats.MaxKN5Vertices
	}
	if opts.TrackName == "" {
		opts.TrackName = s.Name
	}
	if opts.TrackName == "" {
		opts.TrackName = defaultTrackName
	}

	b := &builder{
		opts:          opts,
		log:           logger.OrNop(opts.Log),
		materialIndex: make(map[*scene.Material]int),
		textureIndex:  make(map[*scene.Texture]bool),
	}
	if err := validate(s); err != nil {
		return nil, err
	}
	return b.build(s)
}

// Encode builds the scene and serializes it.
func Encode(s *scene.Scene, opts Options) ([]byte, error) {
	m, err := Build(s, opts)
	if err != nil {
		return nil, err
	}
	return formats.MarshalKN5(m)
}

func validate(s *scene.Scene) error {
	if err := s.Walk(func(n, _ *scene.Node) error {
		for _, mesh := range n.Meshes {
			if err := mesh.Validate(); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if _, ok := s.StartMarker(); !ok {
		return errs.NewValidation("", "scene has no start marker ("+scene.StartPrefix+"n)")
	}
	return nil
}

func (b *builder) build(s *scene.Scene) (*formats.KN5, error) {
	// Materials and textures are numbered in first-use order over the tree.
	for _, mesh := range s.Meshes() {
		b.material(mesh.Material)
	}
	if len(b.materials) == 0 {
		b.material(nil)
	}
	if err := b.checkTextureNames(); err != nil {
		return nil, err
	}

	root := &formats.KN5Node{
		Kind:   formats.KN5NodeDummy,
		Name:   b.opts.TrackName,
		Active: true,
		Matrix: formats.IdentityMatrix(),
	}

	// Mesh parts are built in parallel into indexed slots.
	var jobs []*partJob
	for _, mesh := range s.Root.Meshes {
		root.Children = append(root.Children, b.meshNodes(mesh, &jobs)...)
	}
	for _, child := range s.Root.Children {
		root.Children = append(root.Children, b.node(child, &jobs))
	}
	if err := b.runJobs(jobs); err != nil {
		return nil, err
	}

	for _, m := range s.Markers {
		root.Children = append(root.Children, b.marker(m))
	}

	out := &formats.KN5{
		Version:   formats.KN5Version(b.opts.Version),
		Textures:  make([]formats.KN5Texture, 0, len(b.textures)),
		Materials: make([]formats.KN5Material, 0, len(b.materials)),
		Root:      root,
	}
	for _, tex := range b.textures {
		out.Textures = append(out.Textures, formats.KN5Texture{Name: tex.Name, Data: tex.Data})
	}
	for _, mat := range b.materials {
		out.Materials = append(out.Materials, kn5Material(mat))
	}

	b.log.Debug("Model built",
		zap.String("track", root.Name),
		zap.Int("meshes", out.MeshCount()),
		zap.Int("vertices", out.TotalVertexCount()),
		zap.Int("materials", len(out.Materials)),
		zap.Int("textures", len(out.Textures)))
	return out, nil
}

// material returns the index of mat, registering it and its texture on first
// use. nil maps to a default material shared by the whole model.
func (b *builder) material(mat *scene.Material) int {
	if mat == nil {
		if b.fallback == nil {
			b.fallback = scene.DefaultMaterial()
		}
		mat = b.fallback
	}
	if idx, ok := b.materialIndex[mat]; ok {
		return idx
	}
	idx := len(b.materials)
	b.materials = append(b.materials, mat)
	b.materialIndex[mat] = idx
	if mat.Texture != nil && !b.textureIndex[mat.Texture] {
		b.textureIndex[mat.Texture] = true
		b.textures = append(b.textures, mat.Texture)
	}
	return idx
}

// checkTextureNames rejects distinct textures that would be written under
// the same name.
func (b *builder) checkTextureNames() error {
	owner := make(map[string]*scene.Texture, len(b.textures))
	for _, tex := range b.textures {
		if prev, ok := owner[tex.Name]; ok && prev != tex {
			return errs.NewValidation("", fmt.Sprintf("textures %q and %q share the name %q", prev.Path, tex.Path, tex.Name))
		}
		owner[tex.Name] = tex
	}
	return nil
}

func kn5Material(mat *scene.Material) formats.KN5Material {
	shader := mat.Shader
	if shader == "" {
		shader = scene.DefaultShader
	}
	out := formats.KN5Material{
		Name:   mat.Name,
		Shader: shader,
		Properties: []formats.KN5Property{
			{Name: PropAmbient, Value: float32(mat.Params.Ambient)},
			{Name: PropDiffuse, Value: float32(mat.Params.Diffuse)},
			{Name: PropSpecular, Value: float32(mat.Params.Specular)},
			{Name: PropSpecularExp, Value: float32(mat.Params.Exponent)},
		},
	}
	if mat.Texture != nil {
		out.Samplers = []formats.KN5Sampler{{Name: SamplerDiffuse, Slot: 0, Texture: mat.Texture.Name}}
	}
	return out
}

func (b *builder) node(n *scene.Node, jobs *[]*partJob) *formats.KN5Node {
	out := &formats.KN5Node{
		Kind:   formats.KN5NodeDummy,
		Name:   n.Name,
		Active: true,
		Matrix: matrix32(n.Engine.Rows()),
	}
	for _, mesh := range n.Meshes {
		out.Children = append(out.Children, b.meshNodes(mesh, jobs)...)
	}
	for _, child := range n.Children {
		out.Children = append(out.Children, b.node(child, jobs))
	}
	return out
}

type partJob struct {
	part       part
	materialID int32
	node       *formats.KN5Node
	whole      bool // The part is the entire mesh
	first      bool
}

// meshNodes returns one mesh node per vertex-limited part. The mesh payload
// is filled by runJobs.
func (b *builder) meshNodes(mesh *scene.Mesh, jobs *[]*partJob) []*formats.KN5Node {
	name := mesh.Name
	if mesh.Surface != scene.NoSurface {
		name = surface.CanonicalName(name, surface.Rule{Key: mesh.SurfaceKey})
	}
	matID := int32(b.material(mesh.Material))

	parts := split(mesh, name, b.opts.vertexLimit)
	if len(parts) > 1 {
		b.log.Info("Mesh split", zap.String("mesh", mesh.Name), zap.Int("parts", len(parts)))
	}
	nodes := make([]*formats.KN5Node, len(parts))
	for i, p := range parts {
		nodes[i] = &formats.KN5Node{Kind: formats.KN5NodeMesh, Name: p.name, Active: true}
		*jobs = append(*jobs, &partJob{
			part:       p,
			materialID: matID,
			node:       nodes[i],
			whole:      len(parts) == 1,
			first:      i == 0,
		})
	}
	return nodes
}

func (b *builder) runJobs(jobs []*partJob) error {
	var g errgroup.Group
	if b.opts.Workers > 0 {
		g.SetLimit(b.opts.Workers)
	}
	for _, job := range jobs {
		g.Go(func() error {
			job.node.Mesh = buildMesh(job.part, job.materialID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Record the encoded bounds on the source meshes.
	for _, job := range jobs {
		switch {
		case job.whole:
			job.part.source.Bounds = sphere(job.node.Mesh.Center, job.node.Mesh.Radius)
		case job.first:
			job.part.source.Bounds = meshBounds(job.part.source)
		}
	}
	return nil
}

func meshBounds(mesh *scene.Mesh) scene.Sphere {
	positions := make([][3]float32, len(mesh.Vertices))
	for i, v := range mesh.Vertices {
		positions[i] = v.Position.Float32()
	}
	return sphere(BoundingSphere(positions))
}

func sphere(center [3]float32, radius float32) scene.Sphere {
	return scene.Sphere{
		Center: math.Vec3{X: float64(center[0]), Y: float64(center[1]), Z: float64(center[2])},
		Radius: float64(radius),
	}
}

func buildMesh(p part, materialID int32) *formats.KN5Mesh {
	tangents := Tangents(p.vertices, p.indices)
	mesh := &formats.KN5Mesh{
		CastShadows: true,
		Visible:     true,
		Vertices:    make([]formats.KN5Vertex, len(p.vertices)),
		Indices:     make([]uint16, len(p.indices)),
		MaterialID:  materialID,
		Renderable:  true,
	}
	positions := make([][3]float32, len(p.vertices))
	for i, v := range p.vertices {
		positions[i] = v.Position.Float32()
		mesh.Vertices[i] = formats.KN5Vertex{
			Position: positions[i],
			Normal:   v.Normal.Float32(),
			UV:       [2]float32{float32(v.UV.X), float32(v.UV.Y)},
			Tangent:  tangents[i].Float32(),
		}
	}
	for i, idx := range p.indices {
		mesh.Indices[i] = uint16(idx)
	}
	mesh.Center, mesh.Radius = BoundingSphere(positions)
	return mesh
}

func (b *builder) marker(m *scene.Marker) *formats.KN5Node {
	box := markerBox(b.opts.MarkerBoxSize)
	box.MaterialID = markerBoxMaterial
	return &formats.KN5Node{
		Kind:   formats.KN5NodeDummy,
		Name:   m.Name,
		Active: true,
		Matrix: matrix32(m.Engine.Rows()),
		Children: []*formats.KN5Node{{
			Kind:   formats.KN5NodeMesh,
			Name:   m.Name + markerBoxSuffix,
			Active: true,
			Mesh:   box,
		}},
	}
}

func matrix32(rows [16]float64) [16]float32 {
	var out [16]float32
	for i, v := range rows {
		out[i] = float32(v)
	}
	return out
}
