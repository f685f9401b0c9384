package math

import (
	"math"
	"testing"
)

func TestIdentity(t *testing.T) {
	m := Identity()
	// Diagonal should be 1
	if m[0] != 1 || m[5] != 1 || m[10] != 1 || m[15] != 1 {
		t.Error("Identity diagonal should be 1")
	}
	// Off-diagonal should be 0
	if m[1] != 0 || m[4] != 0 {
		t.Error("Identity off-diagonal should be 0")
	}
}

func TestMulIdentity(t *testing.T) {
	m := Translate(1, 2, 3)
	result := m.Mul(Identity())
	if result != m {
		t.Errorf("M * I should equal M: got %v, want %v", result, m)
	}
}

func TestTranslate(t *testing.T) {
	m := Translate(5, 10, 15)

	// Translation should be in column 4 (indices 12, 13, 14)
	if m[12] != 5 || m[13] != 10 || m[14] != 15 {
		t.Errorf("Translate: got (%f, %f, %f), want (5, 10, 15)", m[12], m[13], m[14])
	}
	if got := m.At(0, 3); got != 5 {
		t.Errorf("At(0, 3) = %v, want 5", got)
	}
}

func TestFromRows(t *testing.T) {
	m := FromRows([16]float64{
		1, 0, 0, 5,
		0, 1, 0, 6,
		0, 0, 1, 7,
		0, 0, 0, 1,
	})
	if m != Translate(5, 6, 7) {
		t.Errorf("FromRows: got %v, want translation", m)
	}
	if m.Rows()[3] != 5 {
		t.Errorf("Rows()[3] = %v, want 5", m.Rows()[3])
	}
}

func TestTransformPoint(t *testing.T) {
	m := Translate(10, 20, 30)
	result := m.TransformPoint(Vec3{1, 2, 3})

	expected := Vec3{11, 22, 33}
	if result != expected {
		t.Errorf("TransformPoint: got %v, want %v", result, expected)
	}
}

func TestTransformPointScale(t *testing.T) {
	m := Scale(2, 2, 2)
	result := m.TransformPoint(Vec3{1, 2, 3})

	expected := Vec3{2, 4, 6}
	if result != expected {
		t.Errorf("TransformPoint with scale: got %v, want %v", result, expected)
	}
}

func TestRotateY90(t *testing.T) {
	m := RotateY(math.Pi / 2)
	result := m.TransformPoint(Vec3{1, 0, 0})

	// After 90 degree Y rotation, (1,0,0) should become approximately (0,0,-1)
	if math.Abs(result.X) > 1e-9 || math.Abs(result.Y) > 1e-9 || math.Abs(result.Z+1) > 1e-9 {
		t.Errorf("RotateY 90: got %v, want (0, 0, -1)", result)
	}
}

func TestEulerXYZOrder(t *testing.T) {
	// X first: (0,1,0) -> (0,0,1), then Z: (0,0,1) is unchanged.
	m := EulerXYZ(math.Pi/2, 0, math.Pi/2)
	got := m.TransformDirection(Vec3{0, 1, 0})
	if got.Distance(Vec3{0, 0, 1}) > 1e-9 {
		t.Errorf("EulerXYZ order: got %v, want (0, 0, 1)", got)
	}
}

func TestComposeTRS(t *testing.T) {
	m := Compose(Vec3{1, 2, 3}, Vec3{0, 0, math.Pi / 2}, Vec3{2, 2, 2})
	got := m.TransformPoint(Vec3{1, 0, 0})
	want := Vec3{1, 4, 3}
	if got.Distance(want) > 1e-9 {
		t.Errorf("Compose: got %v, want %v", got, want)
	}
}

func TestDet(t *testing.T) {
	tests := []struct {
		name string
		m    Mat4
		want float64
	}{
		{"identity", Identity(), 1},
		{"translation", Translate(4, 5, 6), 1},
		{"rotation", RotateZ(0.7).Mul(RotateX(1.1)), 1},
		{"scale", Scale(2, 3, 4), 24},
		{"mirror", Scale(-1, 1, 1), -1},
		{"degenerate", Scale(1, 0, 1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.Det(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Det() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTranspose(t *testing.T) {
	m := Translate(1, 2, 3)
	tr := m.Transpose()
	if tr.At(3, 0) != 1 || tr.At(3, 1) != 2 || tr.At(3, 2) != 3 {
		t.Errorf("Transpose: translation not in bottom row: %v", tr)
	}
	if tr.Transpose() != m {
		t.Error("Transpose should be involutive")
	}
}

func TestInverse(t *testing.T) {
	m := Compose(Vec3{3, -1, 2}, Vec3{0.3, 0.2, 0.1}, Vec3{1, 2, 3})
	inv, ok := m.Inverse()
	if !ok {
		t.Fatal("Inverse reported singular matrix")
	}
	if !m.Mul(inv).ApproxEqual(Identity(), 1e-9) {
		t.Errorf("M * M^-1 should be identity, got %v", m.Mul(inv))
	}
	if _, ok := Scale(0, 1, 1).Inverse(); ok {
		t.Error("Inverse of singular matrix should report !ok")
	}
}

func TestNormalMatrix(t *testing.T) {
	// Non-uniform scale: a normal of the plane x=y must stay perpendicular.
	m := Scale(2, 1, 1)
	nm, ok := m.NormalMatrix()
	if !ok {
		t.Fatal("NormalMatrix reported singular matrix")
	}
	n := nm.TransformDirection(Vec3{1, -1, 0}).Normalize()
	tangent := m.TransformDirection(Vec3{1, 1, 0})
	if d := n.Dot(tangent); math.Abs(d) > 1e-9 {
		t.Errorf("transformed normal not perpendicular to surface: dot=%v", d)
	}
}
