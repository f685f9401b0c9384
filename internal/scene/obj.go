package scene

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Faultbox/trackforge/internal/errs"
	"github.com/Faultbox/trackforge/pkg/encoding"
	"github.com/Faultbox/trackforge/pkg/math"
)

// OBJObject is one object or group of a Wavefront OBJ file.
type OBJObject struct {
	Material string // Name from usemtl; empty when none
	Mesh     *Mesh
}

type objVertexKey [3]int // position, uv, normal; -1 when absent

type objPart struct {
	name     string
	material string
	mesh     *Mesh
	lookup   map[objVertexKey]uint32
	explicit []bool // vertex has a vn reference
}

type objReader struct {
	file     string
	encoding string

	positions []math.Vec3
	uvs       []math.Vec2
	normals   []math.Vec3

	parts   []*objPart
	curName string
	curMtl  string
}

// ReadOBJ parses Wavefront OBJ geometry. Each o/g group becomes a mesh; a
// usemtl switch inside a group with faces starts a new mesh named
// "<group>_<material>". Polygons are fan-triangulated and missing normals
// are computed from area-weighted face normals. Names are decoded from the
// given text encoding and NFC-normalized.
func ReadOBJ(r io.Reader, file, textEncoding string) ([]OBJObject, error) {
	or := &objReader{file: file, encoding: textEncoding, curName: "default"}
	if err := or.parse(r); err != nil {
		return nil, err
	}

	objects := make([]OBJObject, 0, len(or.parts))
	for _, p := range or.parts {
		if len(p.mesh.Indices) == 0 {
			continue
		}
		fillNormals(p)
		objects = append(objects, OBJObject{Material: p.material, Mesh: p.mesh})
	}
	return objects, nil
}

func (r *objReader) emitError(line int, format string, args ...any) error {
	return &errs.ValidationError{
		Loop:   -1,
		Reason: fmt.Sprintf("%s:%d: %s", r.file, line, fmt.Sprintf(format, args...)),
	}
}

func (r *objReader) name(tokens []string) string {
	return encoding.NormalizeName(encoding.ToUTF8([]byte(strings.Join(tokens, " ")), r.encoding))
}

func (r *objReader) parse(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(lineNum, "%v", err)
			}
			r.positions = append(r.positions, v)
		case "vn":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(lineNum, "%v", err)
			}
			r.normals = append(r.normals, v)
		case "vt":
			v, err := parseVec2(lineTokens)
			if err != nil {
				return r.emitError(lineNum, "%v", err)
			}
			r.uvs = append(r.uvs, v)
		case "o", "g":
			if len(lineTokens) < 2 {
				return r.emitError(lineNum, "unsupported syntax for '%s'; expected a name", lineTokens[0])
			}
			r.curName = r.name(lineTokens[1:])
			r.curMtl = ""
		case "usemtl":
			if len(lineTokens) < 2 {
				return r.emitError(lineNum, "unsupported syntax for 'usemtl'; expected a material name")
			}
			r.curMtl = r.name(lineTokens[1:])
		case "f":
			if err := r.parseFace(lineTokens); err != nil {
				return r.emitError(lineNum, "%v", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return &errs.IOError{Op: "read", Path: r.file, Err: err}
	}
	return nil
}

// part returns the mesh faces are currently appended to.
func (r *objReader) part() *objPart {
	if n := len(r.parts); n > 0 {
		last := r.parts[n-1]
		if last.name == r.curName && last.material == r.curMtl {
			return last
		}
	}

	meshName := r.curName
	for _, p := range r.parts {
		if p.name == r.curName {
			meshName = r.curName + "_" + r.curMtl
			break
		}
	}
	p := &objPart{
		name:     r.curName,
		material: r.curMtl,
		mesh:     NewMesh(meshName),
		lookup:   make(map[objVertexKey]uint32),
	}
	r.parts = append(r.parts, p)
	return p
}

// parseFace parses a face with three or more vertices. Each vertex is one of
// v, v/vt, v//vn or v/vt/vn. Indices start from 1 and may be negative to
// count back from the end of the list.
func (r *objReader) parseFace(lineTokens []string) error {
	if len(lineTokens) < 4 {
		return fmt.Errorf("unsupported syntax for 'f'; expected at least 3 vertices; got %d", len(lineTokens)-1)
	}

	p := r.part()
	corners := make([]uint32, 0, len(lineTokens)-1)
	for _, tok := range lineTokens[1:] {
		key := objVertexKey{-1, -1, -1}
		vTokens := strings.Split(tok, "/")
		if len(vTokens) > 3 {
			return fmt.Errorf("invalid face vertex %q", tok)
		}

		var err error
		if key[0], err = selectFaceCoordIndex(vTokens[0], len(r.positions)); err != nil {
			return fmt.Errorf("vertex %q: %w", tok, err)
		}
		if len(vTokens) > 1 && vTokens[1] != "" {
			if key[1], err = selectFaceCoordIndex(vTokens[1], len(r.uvs)); err != nil {
				return fmt.Errorf("uv %q: %w", tok, err)
			}
		}
		if len(vTokens) > 2 && vTokens[2] != "" {
			if key[2], err = selectFaceCoordIndex(vTokens[2], len(r.normals)); err != nil {
				return fmt.Errorf("normal %q: %w", tok, err)
			}
		}

		idx, ok := p.lookup[key]
		if !ok {
			v := Vertex{Position: r.positions[key[0]]}
			if key[1] >= 0 {
				v.UV = r.uvs[key[1]]
			}
			if key[2] >= 0 {
				v.Normal = r.normals[key[2]]
			}
			idx = uint32(len(p.mesh.Vertices))
			p.mesh.Vertices = append(p.mesh.Vertices, v)
			p.explicit = append(p.explicit, key[2] >= 0)
			p.lookup[key] = idx
		}
		corners = append(corners, idx)
	}

	for i := 1; i+1 < len(corners); i++ {
		p.mesh.Indices = append(p.mesh.Indices, corners[0], corners[i], corners[i+1])
	}
	return nil
}

// fillNormals computes area-weighted normals for vertices without vn.
func fillNormals(p *objPart) {
	missing := false
	for _, e := range p.explicit {
		if !e {
			missing = true
			break
		}
	}
	if !missing {
		return
	}

	acc := make([]math.Vec3, len(p.mesh.Vertices))
	idx := p.mesh.Indices
	for t := 0; t+2 < len(idx); t += 3 {
		a := p.mesh.Vertices[idx[t]].Position
		b := p.mesh.Vertices[idx[t+1]].Position
		c := p.mesh.Vertices[idx[t+2]].Position
		n := b.Sub(a).Cross(c.Sub(a))
		for _, i := range idx[t : t+3] {
			acc[i] = acc[i].Add(n)
		}
	}
	for i := range p.mesh.Vertices {
		if !p.explicit[i] {
			p.mesh.Vertices[i].Normal = acc[i].Normalize()
		}
	}
}

func selectFaceCoordIndex(indexToken string, coordListLen int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var offset int
	if index < 0 {
		offset = coordListLen + int(index)
	} else {
		offset = int(index - 1)
	}
	if offset < 0 || offset >= coordListLen {
		return -1, fmt.Errorf("index %d out of bounds", index)
	}
	return offset, nil
}

func parseVec3(lineTokens []string) (math.Vec3, error) {
	if len(lineTokens) < 4 {
		return math.Vec3{}, fmt.Errorf(`unsupported syntax for "%s"; expected 3 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	var c [3]float64
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		v, err := strconv.ParseFloat(lineTokens[tokIdx], 64)
		if err != nil {
			return math.Vec3{}, err
		}
		c[tokIdx-1] = v
	}
	return math.Vec3{X: c[0], Y: c[1], Z: c[2]}, nil
}

func parseVec2(lineTokens []string) (math.Vec2, error) {
	if len(lineTokens) < 3 {
		return math.Vec2{}, fmt.Errorf(`unsupported syntax for "%s"; expected 2 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	u, err := strconv.ParseFloat(lineTokens[1], 64)
	if err != nil {
		return math.Vec2{}, err
	}
	v, err := strconv.ParseFloat(lineTokens[2], 64)
	if err != nil {
		return math.Vec2{}, err
	}
	return math.Vec2{X: u, Y: v}, nil
}
