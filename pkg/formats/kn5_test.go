package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestKN5Version_AtLeast(t *testing.T) {
	tests := []struct {
		version KN5Version
		check   int32
		want    bool
	}{
		{5, 5, true},
		{5, 6, false},
		{6, 5, true},
		{6, 6, true},
	}

	for _, tt := range tests {
		if got := tt.version.AtLeast(tt.check); got != tt.want {
			t.Errorf("KN5Version(%d).AtLeast(%d) = %v, want %v", tt.version, tt.check, got, tt.want)
		}
	}
}

func TestKN5NodeKind_String(t *testing.T) {
	tests := []struct {
		kind KN5NodeKind
		want string
	}{
		{KN5NodeDummy, "Dummy"},
		{KN5NodeMesh, "Mesh"},
		{KN5NodeKind(7), "Unknown(7)"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("KN5NodeKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestWriteKN5_Layout(t *testing.T) {
	m := makeMinimalKN5()
	got, err := MarshalKN5(m)
	if err != nil {
		t.Fatalf("MarshalKN5: %v", err)
	}

	want := makeMinimalKN5Bytes()
	if !bytes.Equal(got, want) {
		t.Errorf("layout mismatch:\n got %d bytes % x\nwant %d bytes % x", len(got), got, len(want), want)
	}
}

func TestParseKN5_RoundTrip(t *testing.T) {
	m := makeMinimalKN5()
	data, err := MarshalKN5(m)
	if err != nil {
		t.Fatalf("MarshalKN5: %v", err)
	}

	parsed, err := ParseKN5(data)
	if err != nil {
		t.Fatalf("ParseKN5: %v", err)
	}
	if diff := cmp.Diff(m, parsed); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if parsed.MeshCount() != 1 {
		t.Errorf("MeshCount() = %d, want 1", parsed.MeshCount())
	}
	if parsed.TotalVertexCount() != 3 {
		t.Errorf("TotalVertexCount() = %d, want 3", parsed.TotalVertexCount())
	}
	if n := parsed.FindNode("tri"); n == nil || n.Kind != KN5NodeMesh {
		t.Errorf("FindNode(tri) = %v, want mesh node", n)
	}
}

func TestParseKN5_Version5(t *testing.T) {
	m := makeMinimalKN5()
	m.Version = 5
	data, err := MarshalKN5(m)
	if err != nil {
		t.Fatalf("MarshalKN5: %v", err)
	}
	v6, _ := MarshalKN5(makeMinimalKN5())
	// v5 drops the extra header int32.
	if len(v6)-len(data) != 4 {
		t.Errorf("v5 should be 4 bytes shorter than v6: v5=%d v6=%d", len(data), len(v6))
	}

	parsed, err := ParseKN5(data)
	if err != nil {
		t.Fatalf("ParseKN5 v5: %v", err)
	}
	if diff := cmp.Diff(m, parsed); diff != "" {
		t.Errorf("v5 round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseKN5_Errors(t *testing.T) {
	valid, _ := MarshalKN5(makeMinimalKN5())

	badVersion := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badVersion[6:], 9)

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", []byte{}, ErrTruncated},
		{"bad magic", append([]byte("sc6968"), valid[6:]...), ErrInvalidKN5Magic},
		{"bad version", badVersion, ErrUnsupportedKN5Version},
		{"truncated", valid[:len(valid)-5], ErrTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseKN5(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseKN5() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteKN5_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*KN5)
		wantErr error
	}{
		{"version", func(m *KN5) { m.Version = 4 }, ErrUnsupportedKN5Version},
		{"index range", func(m *KN5) { m.Root.Children[0].Mesh.Indices[2] = 3 }, ErrKN5IndexOutOfRange},
		{"too many vertices", func(m *KN5) {
			m.Root.Children[0].Mesh.Vertices = make([]KN5Vertex, MaxKN5Vertices+1)
		}, ErrKN5TooManyVertices},
		{"node kind", func(m *KN5) { m.Root.Children[0].Kind = 3 }, ErrUnknownKN5NodeKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := makeMinimalKN5()
			tt.mutate(m)
			if _, err := MarshalKN5(m); !errors.Is(err, tt.wantErr) {
				t.Errorf("MarshalKN5() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestKN5Node_WalkDepthFirst(t *testing.T) {
	root := &KN5Node{Kind: KN5NodeDummy, Name: "root", Children: []*KN5Node{
		{Kind: KN5NodeDummy, Name: "a", Children: []*KN5Node{{Kind: KN5NodeDummy, Name: "a1"}}},
		{Kind: KN5NodeDummy, Name: "b"},
	}}

	var order []string
	root.Walk(func(n *KN5Node, depth int) {
		order = append(order, n.Name)
	})
	want := []string{"root", "a", "a1", "b"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("Walk order (-want +got):\n%s", diff)
	}
}

// makeMinimalKN5 returns a container with one texture, one material and one triangle.
func makeMinimalKN5() *KN5 {
	return &KN5{
		Version:  6,
		Textures: []KN5Texture{{Name: "a.dds", Data: []byte{0xDE, 0xAD}}},
		Materials: []KN5Material{{
			Name:       "mat",
			Shader:     "ksPerPixel",
			Properties: []KN5Property{{Name: "ksDiffuse", Value: 0.5}},
			Samplers:   []KN5Sampler{{Name: "txDiffuse", Slot: 0, Texture: "a.dds"}},
		}},
		Root: &KN5Node{
			Kind:   KN5NodeDummy,
			Name:   "track",
			Active: true,
			Matrix: IdentityMatrix(),
			Children: []*KN5Node{{
				Kind:   KN5NodeMesh,
				Name:   "tri",
				Active: true,
				Mesh: &KN5Mesh{
					CastShadows: true,
					Visible:     true,
					Vertices: []KN5Vertex{
						{Position: [3]float32{0, 0, 0}, Normal: [3]float32{0, 1, 0}, Tangent: [3]float32{1, 0, 0}},
						{Position: [3]float32{1, 0, 0}, Normal: [3]float32{0, 1, 0}, UV: [2]float32{1, 0}, Tangent: [3]float32{1, 0, 0}},
						{Position: [3]float32{0, 0, 1}, Normal: [3]float32{0, 1, 0}, UV: [2]float32{0, 1}, Tangent: [3]float32{1, 0, 0}},
					},
					Indices:    []uint16{0, 1, 2},
					Center:     [3]float32{0.5, 0, 0.5},
					Radius:     1,
					Renderable: true,
				},
			}},
		},
	}
}

// makeMinimalKN5Bytes builds the expected encoding of makeMinimalKN5 field by field.
func makeMinimalKN5Bytes() []byte {
	buf := new(bytes.Buffer)
	w := func(v any) { binary.Write(buf, binary.LittleEndian, v) }
	str := func(s string) {
		w(int32(len(s)))
		buf.WriteString(s)
	}

	buf.WriteString("sc6969")
	w(int32(6))
	w(int32(0))

	// Textures
	w(int32(1))
	w(int32(1))
	str("a.dds")
	w(int32(2))
	buf.Write([]byte{0xDE, 0xAD})

	// Materials
	w(int32(1))
	str("mat")
	str("ksPerPixel")
	w(int16(0))
	w(int32(0))
	w(int32(1))
	str("ksDiffuse")
	w(float32(0.5))
	buf.Write(make([]byte, 36))
	w(int32(1))
	str("txDiffuse")
	w(int32(0))
	str("a.dds")

	// Root dummy
	w(int32(1))
	str("track")
	w(int32(1))
	w(uint8(1))
	w(IdentityMatrix())

	// Mesh
	w(int32(2))
	str("tri")
	w(int32(0))
	w(uint8(1))
	w([]uint8{1, 1, 0})
	w(int32(3))
	for _, v := range [][11]float32{
		{0, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0},
		{1, 0, 0, 0, 1, 0, 1, 0, 1, 0, 0},
		{0, 0, 1, 0, 1, 0, 0, 1, 1, 0, 0},
	} {
		w(v)
	}
	w(int32(3))
	w([]uint16{0, 1, 2})
	w(int32(0))   // material
	w(int32(0))   // layer
	w(float32(0)) // lodIn
	w(float32(0)) // lodOut
	w([3]float32{0.5, 0, 0.5})
	w(float32(1))
	w(uint8(1))

	return buf.Bytes()
}
