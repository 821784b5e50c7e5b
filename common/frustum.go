package common

import (
	"math"
)

// Plane represents a plane in 3D space using the equation: ax + by + cz + d = 0
// where (a, b, c) is the normal and d is the distance from origin.
type Plane struct {
	Normal   Vec3
	Distance float32
}

// Frustum represents the six planes of a view frustum for culling.
// Planes are oriented so that positive half-space is inside the frustum.
type Frustum struct {
	Planes [6]Plane // Left, Right, Bottom, Top, Near, Far
}

// FrustumFromMatrix extracts the frustum planes of a combined view-projection matrix
// (Gribb/Hartmann). The near plane uses the WebGPU [0, 1] depth convention.
//
// Reference: https://www8.cs.umu.se/kurser/5DV051/HT12/lab/plane_extraction.pdf
//
// Parameters:
//   - viewProj: the projection * view matrix (column-major)
//
// Returns:
//   - Frustum: the extracted frustum with normalized planes
func FrustumFromMatrix(viewProj Mat4) Frustum {
	row := func(i int) [4]float32 {
		return [4]float32{viewProj[i], viewProj[4+i], viewProj[8+i], viewProj[12+i]}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	combos := [6][4]float32{}
	for k := 0; k < 4; k++ {
		combos[0][k] = r3[k] + r0[k]
		combos[1][k] = r3[k] - r0[k]
		combos[2][k] = r3[k] + r1[k]
		combos[3][k] = r3[k] - r1[k]
		combos[4][k] = r2[k]
		combos[5][k] = r3[k] - r2[k]
	}

	var f Frustum
	for i, c := range combos {
		p := Plane{Normal: Vec3{c[0], c[1], c[2]}, Distance: c[3]}
		if l := p.Normal.Length(); l > 0 {
			p.Normal = p.Normal.Scale(1 / l)
			p.Distance /= l
		}
		f.Planes[i] = p
	}
	return f
}

// SphereVisible reports whether a bounding sphere intersects the frustum.
//
// Parameters:
//   - center: sphere center in world space
//   - radius: sphere radius; a non-finite radius is always visible
//
// Returns:
//   - bool: false only if the sphere lies entirely outside one plane
func (f Frustum) SphereVisible(center Vec3, radius float32) bool {
	if math.IsInf(float64(radius), 1) {
		return true
	}
	for _, p := range f.Planes {
		if p.Normal.Dot(center)+p.Distance < -radius {
			return false
		}
	}
	return true
}
