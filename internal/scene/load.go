package scene

import (
	"fmt"
	stdmath "math"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/trackforge/internal/errs"
	"github.com/Faultbox/trackforge/internal/logger"
	"github.com/Faultbox/trackforge/internal/texture"
	"github.com/Faultbox/trackforge/pkg/encoding"
	"github.com/Faultbox/trackforge/pkg/math"
)

// LoadOptions controls scene loading.
type LoadOptions struct {
	// Encoding of names inside geometry files. The scene file's own
	// encoding key takes precedence.
	Encoding string
	Log      *zap.Logger
}

// File is the on-disk scene description.
type File struct {
	Name        string          `yaml:"name"`
	Encoding    string          `yaml:"encoding"`
	TexturesDir string          `yaml:"textures_dir"`
	Materials   []MaterialEntry `yaml:"materials"`
	Nodes       []NodeEntry     `yaml:"nodes"`
	Markers     []MarkerEntry   `yaml:"markers"`
}

// MaterialEntry declares a material. Unset parameters use DefaultParams.
type MaterialEntry struct {
	Name     string   `yaml:"name"`
	Shader   string   `yaml:"shader"`
	Texture  string   `yaml:"texture"`
	Ambient  *float64 `yaml:"ambient"`
	Diffuse  *float64 `yaml:"diffuse"`
	Specular *float64 `yaml:"specular"`
	Exponent *float64 `yaml:"exponent"`
}

// NodeEntry declares a node. Either Transform (16 column-major floats) or
// Location, Rotation (XYZ Euler degrees) and Scale may be given.
type NodeEntry struct {
	Name      string    `yaml:"name"`
	Parent    string    `yaml:"parent"`
	Transform []float64 `yaml:"transform"`
	Location  []float64 `yaml:"location"`
	Rotation  []float64 `yaml:"rotation_euler"`
	Scale     []float64 `yaml:"scale"`
	Geometry  string    `yaml:"geometry"`
	Material  string    `yaml:"material"`
}

// MarkerEntry declares a marker by transform, or by location and an
// optional forward tangent.
type MarkerEntry struct {
	Name      string    `yaml:"name"`
	Transform []float64 `yaml:"transform"`
	Location  []float64 `yaml:"location"`
	Forward   []float64 `yaml:"forward"`
}

type loader struct {
	fs       afero.Fs
	dir      string
	encoding string
	log      *zap.Logger

	scene     *Scene
	materials map[string]*Material
	textures  map[string]*Texture
}

// LoadFile reads a scene description and every geometry and texture file it
// references.
func LoadFile(fs afero.Fs, path string, opts LoadOptions) (*Scene, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, &errs.IOError{Op: "read", Path: path, Err: err}
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &errs.ValidationError{Loop: -1, Reason: "malformed scene file " + path, Err: err}
	}
	if f.Name == "" {
		f.Name = trimExt(filepath.Base(path))
	}
	if f.Encoding == "" {
		f.Encoding = opts.Encoding
	}
	if _, ok := encoding.Decoder(f.Encoding); !ok {
		return nil, &errs.ValidationError{Loop: -1, Reason: fmt.Sprintf("unknown text encoding %q", f.Encoding)}
	}

	l := &loader{
		fs:        fs,
		dir:       filepath.Dir(path),
		encoding:  f.Encoding,
		log:       logger.OrNop(opts.Log),
		scene:     New(encoding.NormalizeName(f.Name)),
		materials: make(map[string]*Material),
		textures:  make(map[string]*Texture),
	}
	return l.load(&f)
}

func (l *loader) load(f *File) (*Scene, error) {
	if err := l.loadMaterials(f); err != nil {
		return nil, err
	}
	if err := l.probeTextures(); err != nil {
		return nil, err
	}
	if err := l.buildTree(f.Nodes); err != nil {
		return nil, err
	}
	if err := l.loadMarkers(f.Markers); err != nil {
		return nil, err
	}
	if err := l.scene.UpdateWorld(); err != nil {
		return nil, err
	}

	l.log.Debug("Scene loaded",
		zap.String("scene", l.scene.Name),
		zap.Int("meshes", len(l.scene.Meshes())),
		zap.Int("materials", len(l.scene.Materials)),
		zap.Int("textures", len(l.scene.Textures)),
		zap.Int("markers", len(l.scene.Markers)))
	return l.scene, nil
}

func (l *loader) loadMaterials(f *File) error {
	for _, e := range f.Materials {
		name := encoding.NormalizeName(e.Name)
		if name == "" {
			return errs.NewValidation("", "material with empty name")
		}
		if _, dup := l.materials[name]; dup {
			return errs.NewValidation("", fmt.Sprintf("duplicate material %q", name))
		}

		mat := &Material{Name: name, Shader: e.Shader, Params: DefaultParams()}
		if mat.Shader == "" {
			mat.Shader = DefaultShader
		}
		setParam(&mat.Params.Ambient, e.Ambient)
		setParam(&mat.Params.Diffuse, e.Diffuse)
		setParam(&mat.Params.Specular, e.Specular)
		setParam(&mat.Params.Exponent, e.Exponent)

		if e.Texture != "" {
			mat.Texture = l.internTexture(filepath.Join(l.dir, f.TexturesDir, e.Texture))
		}
		l.materials[name] = mat
		l.scene.Materials = append(l.scene.Materials, mat)
	}
	return nil
}

func setParam(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// internTexture returns the shared texture for a path, creating it on first use.
func (l *loader) internTexture(p string) *Texture {
	key := encoding.NormalizePath(filepath.Clean(p))
	if tex, ok := l.textures[key]; ok {
		return tex
	}
	tex := &Texture{Name: encoding.BaseName(key), Path: key}
	l.textures[key] = tex
	l.scene.Textures = append(l.scene.Textures, tex)
	return tex
}

// probeTextures reads and probes every texture in parallel. Each goroutine
// writes only its own texture.
func (l *loader) probeTextures() error {
	var g errgroup.Group
	for _, tex := range l.scene.Textures {
		g.Go(func() error {
			data, err := afero.ReadFile(l.fs, tex.Path)
			if err != nil {
				return &errs.IOError{Op: "read", Path: tex.Path, Err: err}
			}
			info, err := texture.Probe(tex.Name, data)
			if err != nil {
				return &errs.ValidationError{Loop: -1, Reason: "texture " + tex.Path, Err: err}
			}
			tex.Data = data
			tex.Width, tex.Height, tex.Format = info.Width, info.Height, info.Format
			return nil
		})
	}
	return g.Wait()
}

// buildTree turns the flat node list into a tree below the scene root.
// Children keep declaration order.
func (l *loader) buildTree(entries []NodeEntry) error {
	byName := make(map[string]*Node, len(entries))
	parents := make(map[string]string, len(entries))
	for _, e := range entries {
		name := encoding.NormalizeName(e.Name)
		if name == "" {
			return errs.NewValidation("", "node with empty name")
		}
		if _, dup := byName[name]; dup {
			return errs.NewValidation("", fmt.Sprintf("duplicate node %q", name))
		}
		parent := encoding.NormalizeName(e.Parent)
		if parent == name {
			return errs.NewValidation("", fmt.Sprintf("node %q is its own parent", name))
		}

		local, err := nodeTransform(name, e.Transform, e.Location, e.Rotation, e.Scale)
		if err != nil {
			return err
		}
		n := NewNode(name)
		n.Local = local
		byName[name] = n
		parents[name] = parent
	}

	for _, e := range entries {
		name := encoding.NormalizeName(e.Name)
		if parent := parents[name]; parent != "" && byName[parent] == nil {
			return errs.NewValidation("", fmt.Sprintf("node %q has unknown parent %q", name, parent))
		}
	}
	for _, e := range entries {
		name := encoding.NormalizeName(e.Name)
		seen := map[string]bool{name: true}
		for p := parents[name]; p != ""; p = parents[p] {
			if seen[p] {
				return errs.NewValidation("", fmt.Sprintf("parent cycle through node %q", name))
			}
			seen[p] = true
		}
	}

	for _, e := range entries {
		n := byName[encoding.NormalizeName(e.Name)]
		if p := parents[n.Name]; p != "" {
			byName[p].AddChild(n)
		} else {
			l.scene.Root.AddChild(n)
		}
		if e.Geometry != "" {
			if err := l.loadGeometry(n, e.Geometry, encoding.NormalizeName(e.Material)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *loader) loadGeometry(n *Node, geometry, material string) error {
	var fallback *Material
	if material != "" {
		fallback = l.materials[material]
		if fallback == nil {
			return errs.NewValidation("", fmt.Sprintf("node %q uses unknown material %q", n.Name, material))
		}
	}

	path := filepath.Join(l.dir, geometry)
	f, err := l.fs.Open(path)
	if err != nil {
		return &errs.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	objects, err := ReadOBJ(f, path, l.encoding)
	if err != nil {
		return err
	}
	for _, obj := range objects {
		mesh := obj.Mesh
		mesh.Material = fallback
		if obj.Material != "" {
			mesh.Material = l.materials[obj.Material]
			if mesh.Material == nil {
				return errs.NewValidation(mesh.Name, fmt.Sprintf("unknown material %q", obj.Material))
			}
		}
		n.Meshes = append(n.Meshes, mesh)
	}
	return nil
}

func (l *loader) loadMarkers(entries []MarkerEntry) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		name := encoding.NormalizeName(e.Name)
		fail := func(reason string) error {
			return &errs.ValidationError{Marker: name, Loop: -1, Reason: reason}
		}
		if len(name) <= len(MarkerPrefix) || !strings.HasPrefix(name, MarkerPrefix) {
			return fail("marker names must start with " + MarkerPrefix)
		}
		if seen[name] {
			return fail("duplicate marker")
		}
		seen[name] = true

		var m *Marker
		switch {
		case len(e.Transform) > 0:
			world, err := matrix(name, e.Transform)
			if err != nil {
				return err
			}
			m = NewMarker(name, math.Vec3{})
			m.World = world
		case len(e.Location) == 3:
			m = NewMarker(name, math.Vec3{X: e.Location[0], Y: e.Location[1], Z: e.Location[2]})
		default:
			return fail("marker needs a transform or a 3-element location")
		}

		switch len(e.Forward) {
		case 0:
		case 2:
			m.Forward = math.Vec2{X: e.Forward[0], Y: e.Forward[1]}
			if m.Forward.Length() == 0 {
				return fail("zero forward vector")
			}
			m.HasForward = true
		default:
			return fail("forward must have 2 elements")
		}
		l.scene.Markers = append(l.scene.Markers, m)
	}
	return nil
}

func nodeTransform(name string, transform, location, rotation, scale []float64) (math.Mat4, error) {
	if len(transform) > 0 {
		return matrix(name, transform)
	}

	loc, err := vec3(name, "location", location, math.Vec3{})
	if err != nil {
		return math.Mat4{}, err
	}
	rot, err := vec3(name, "rotation_euler", rotation, math.Vec3{})
	if err != nil {
		return math.Mat4{}, err
	}
	scl, err := vec3(name, "scale", scale, math.Vec3{X: 1, Y: 1, Z: 1})
	if err != nil {
		return math.Mat4{}, err
	}
	rot = rot.Scale(stdmath.Pi / 180)
	return math.Compose(loc, rot, scl), nil
}

func matrix(name string, v []float64) (math.Mat4, error) {
	if len(v) != 16 {
		return math.Mat4{}, errs.NewValidation("", fmt.Sprintf("%q: transform needs 16 elements, got %d", name, len(v)))
	}
	var m math.Mat4
	copy(m[:], v)
	return m, nil
}

func vec3(name, field string, v []float64, def math.Vec3) (math.Vec3, error) {
	switch len(v) {
	case 0:
		return def, nil
	case 3:
		return math.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
	default:
		return math.Vec3{}, errs.NewValidation("", fmt.Sprintf("%q: %s needs 3 elements, got %d", name, field, len(v)))
	}
}

func trimExt(p string) string {
	return p[:len(p)-len(filepath.Ext(p))]
}

// Sources returns the scene file followed by every geometry and texture
// file it references, without reading them. Paths are deduplicated.
func Sources(fs afero.Fs, path string) ([]string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, &errs.IOError{Op: "read", Path: path, Err: err}
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &errs.ValidationError{Loop: -1, Reason: "malformed scene file " + path, Err: err}
	}

	dir := filepath.Dir(path)
	paths := []string{path}
	for _, e := range f.Nodes {
		if e.Geometry != "" {
			paths = append(paths, filepath.Join(dir, e.Geometry))
		}
	}
	for _, e := range f.Materials {
		if e.Texture != "" {
			paths = append(paths, filepath.Join(dir, f.TexturesDir, e.Texture))
		}
	}
	return lo.Uniq(paths), nil
}
