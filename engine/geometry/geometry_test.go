package geometry

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestNewBox(t *testing.T) {
	m := NewBox(2, 4, 6)
	if len(m.Vertices) != 24 || len(m.Indices) != 36 {
		t.Fatalf("have %d vertices, %d indices, want 24, 36", len(m.Vertices), len(m.Indices))
	}
	center, radius := m.Bounds()
	if center.Length() > 1e-6 {
		t.Errorf("have center %v, want origin", center)
	}
	want := float32(math.Sqrt(1 + 4 + 9))
	if math.Abs(float64(radius-want)) > 1e-5 {
		t.Errorf("have radius %v, want %v", radius, want)
	}
	for i, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			t.Fatalf("index %d out of range: %d", i, idx)
		}
	}
}

func TestNewSphere(t *testing.T) {
	m := NewSphere(3, 8, 4)
	if have, want := len(m.Vertices), 9*5; have != want {
		t.Errorf("have %d vertices, want %d", have, want)
	}
	if have, want := len(m.Indices), 8*4*6; have != want {
		t.Errorf("have %d indices, want %d", have, want)
	}
	for _, v := range m.Vertices {
		l := math.Sqrt(float64(v.Position[0]*v.Position[0] + v.Position[1]*v.Position[1] + v.Position[2]*v.Position[2]))
		if math.Abs(l-3) > 1e-4 {
			t.Fatalf("vertex %v not on the sphere", v.Position)
		}
	}
	if _, r := m.Bounds(); math.Abs(float64(r-3)) > 1e-4 {
		t.Errorf("have radius %v, want 3", r)
	}

	clamped := NewSphere(1, 0, 0)
	if len(clamped.Vertices) != 4*3 {
		t.Errorf("have %d vertices for clamped sphere, want 12", len(clamped.Vertices))
	}
}

func TestMeshBytes(t *testing.T) {
	m := NewBox(1, 1, 1)
	vb := m.VertexBytes()
	if len(vb) != 24*32 {
		t.Fatalf("have %d vertex bytes, want %d", len(vb), 24*32)
	}
	if have := math.Float32frombits(binary.LittleEndian.Uint32(vb[32+12:])); have != m.Vertices[1].Normal[0] {
		t.Errorf("vertex 1 normal.x: have %v, want %v", have, m.Vertices[1].Normal[0])
	}
	ib := m.IndexBytes()
	if binary.LittleEndian.Uint32(ib[4*5:]) != m.Indices[5] {
		t.Errorf("index 5 misplaced")
	}
}
