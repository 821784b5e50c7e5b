// Package geometry generates simple procedural meshes used as scene content and as the sky dome.
package geometry

import (
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// MeshData is an indexed triangle list.
type MeshData struct {
	Vertices []Vertex
	Indices  []uint32
}

// VertexBytes packs every vertex for upload.
func (m *MeshData) VertexBytes() []byte {
	out := make([]byte, 0, len(m.Vertices)*32)
	for i := range m.Vertices {
		out = append(out, m.Vertices[i].Marshal()...)
	}
	return out
}

// IndexBytes packs the indices as little-endian uint32 for upload.
func (m *MeshData) IndexBytes() []byte {
	out := make([]byte, len(m.Indices)*4)
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint32(out[i*4:], idx)
	}
	return out
}

// Bounds returns a bounding sphere around the vertices: the center of the axis-aligned box and
// the distance to the farthest vertex.
//
// Returns:
//   - common.Vec3: the sphere center in model space
//   - float32: the sphere radius
func (m *MeshData) Bounds() (common.Vec3, float32) {
	if len(m.Vertices) == 0 {
		return common.Vec3{}, 0
	}
	lo := common.Vec3(m.Vertices[0].Position)
	hi := lo
	for _, v := range m.Vertices[1:] {
		for i := range 3 {
			lo[i] = min(lo[i], v.Position[i])
			hi[i] = max(hi[i], v.Position[i])
		}
	}
	center := lo.Add(hi).Scale(0.5)
	var radius float32
	for _, v := range m.Vertices {
		radius = max(radius, common.Vec3(v.Position).Sub(center).Length())
	}
	return center, radius
}

// NewBox creates an axis-aligned box centered at the origin with 24 vertices so each face has
// its own normals.
//
// Parameters:
//   - width: extent along x
//   - height: extent along y
//   - depth: extent along z
//
// Returns:
//   - MeshData: the box mesh
func NewBox(width, height, depth float32) MeshData {
	w, h, d := width/2, height/2, depth/2
	type face struct {
		normal  [3]float32
		corners [4][3]float32
	}
	faces := []face{
		{[3]float32{0, 0, 1}, [4][3]float32{{-w, -h, d}, {w, -h, d}, {w, h, d}, {-w, h, d}}},
		{[3]float32{0, 0, -1}, [4][3]float32{{w, -h, -d}, {-w, -h, -d}, {-w, h, -d}, {w, h, -d}}},
		{[3]float32{0, 1, 0}, [4][3]float32{{-w, h, d}, {w, h, d}, {w, h, -d}, {-w, h, -d}}},
		{[3]float32{0, -1, 0}, [4][3]float32{{-w, -h, -d}, {w, -h, -d}, {w, -h, d}, {-w, -h, d}}},
		{[3]float32{1, 0, 0}, [4][3]float32{{w, -h, d}, {w, -h, -d}, {w, h, -d}, {w, h, d}}},
		{[3]float32{-1, 0, 0}, [4][3]float32{{-w, -h, -d}, {-w, -h, d}, {-w, h, d}, {-w, h, -d}}},
	}
	uvs := [4][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

	m := MeshData{
		Vertices: make([]Vertex, 0, 24),
		Indices:  make([]uint32, 0, 36),
	}
	for _, f := range faces {
		base := uint32(len(m.Vertices))
		for i, c := range f.corners {
			m.Vertices = append(m.Vertices, Vertex{Position: c, Normal: f.normal, UV: uvs[i]})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}

// NewSphere creates a UV sphere centered at the origin.
//
// Parameters:
//   - radius: the sphere radius
//   - slices: subdivisions around the y axis, at least 3
//   - stacks: subdivisions from pole to pole, at least 2
//
// Returns:
//   - MeshData: the sphere mesh
func NewSphere(radius float32, slices, stacks uint32) MeshData {
	slices = max(slices, 3)
	stacks = max(stacks, 2)

	var m MeshData
	for i := uint32(0); i <= stacks; i++ {
		phi := math.Pi * float64(i) / float64(stacks)
		for j := uint32(0); j <= slices; j++ {
			theta := 2 * math.Pi * float64(j) / float64(slices)
			n := [3]float32{
				float32(math.Sin(phi) * math.Cos(theta)),
				float32(math.Cos(phi)),
				float32(math.Sin(phi) * math.Sin(theta)),
			}
			m.Vertices = append(m.Vertices, Vertex{
				Position: [3]float32{n[0] * radius, n[1] * radius, n[2] * radius},
				Normal:   n,
				UV:       [2]float32{float32(j) / float32(slices), float32(i) / float32(stacks)},
			})
		}
	}

	ring := slices + 1
	for i := range stacks {
		for j := range slices {
			a := i*ring + j
			b := a + ring
			m.Indices = append(m.Indices, a, a+1, b, a+1, b+1, b)
		}
	}
	return m
}
