// Package spatial implements the axis-aligned bounding box primitive and the
// bounding-volume-hierarchy spatial index used for nearest-point, ray, and
// overlap queries over entity bounds (spec.md §3, §4.5).
package spatial

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned bounding box represented as an ordered pair of
// points. Min must be componentwise <= Max, except for the sentinel Empty
// value, which absorbs under Union.
type AABB struct {
	Min, Max mgl32.Vec3
}

// Empty is the sentinel empty-set AABB: Min = +Inf, Max = -Inf componentwise.
// Union(Empty, b) == b for any b.
var Empty = AABB{
	Min: mgl32.Vec3{float32(math.Inf(1)), float32(math.Inf(1)), float32(math.Inf(1))},
	Max: mgl32.Vec3{float32(math.Inf(-1)), float32(math.Inf(-1)), float32(math.Inf(-1))},
}

// New builds an AABB from two corner points, ordering them componentwise.
func New(a, b mgl32.Vec3) AABB {
	return AABB{
		Min: mgl32.Vec3{min32(a[0], b[0]), min32(a[1], b[1]), min32(a[2], b[2])},
		Max: mgl32.Vec3{max32(a[0], b[0]), max32(a[1], b[1]), max32(a[2], b[2])},
	}
}

// FromCenterHalfExtents builds an AABB from a center point and a per-axis
// half-width/height vector (spec.md §3 "Entity size").
func FromCenterHalfExtents(center, half mgl32.Vec3) AABB {
	return AABB{Min: center.Sub(half), Max: center.Add(half)}
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// IsEmpty reports whether the box is the Empty sentinel or otherwise
// degenerate (any Min component greater than the corresponding Max).
func (b AABB) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Contains reports whether p lies within b, inclusive of the boundary.
func (b AABB) Contains(p mgl32.Vec3) bool {
	return p[0] >= b.Min[0] && p[0] <= b.Max[0] &&
		p[1] >= b.Min[1] && p[1] <= b.Max[1] &&
		p[2] >= b.Min[2] && p[2] <= b.Max[2]
}

// Intersects reports whether b and o overlap (including touching faces).
func (b AABB) Intersects(o AABB) bool {
	if b.IsEmpty() || o.IsEmpty() {
		return false
	}
	return b.Min[0] <= o.Max[0] && b.Max[0] >= o.Min[0] &&
		b.Min[1] <= o.Max[1] && b.Max[1] >= o.Min[1] &&
		b.Min[2] <= o.Max[2] && b.Max[2] >= o.Min[2]
}

// DistanceSquared returns the squared Euclidean distance from p to the
// nearest point on (or in) b.
func (b AABB) DistanceSquared(p mgl32.Vec3) float32 {
	var d float32
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			diff := b.Min[i] - p[i]
			d += diff * diff
		} else if p[i] > b.Max[i] {
			diff := p[i] - b.Max[i]
			d += diff * diff
		}
	}
	return d
}

// Midpoint returns the geometric center of b.
func (b AABB) Midpoint() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Volume returns the box's volume. The Empty sentinel has zero volume.
func (b AABB) Volume() float32 {
	if b.IsEmpty() {
		return 0
	}
	d := b.Max.Sub(b.Min)
	return d[0] * d[1] * d[2]
}

// SurfaceArea returns the total surface area of the box's six faces.
func (b AABB) SurfaceArea() float32 {
	if b.IsEmpty() {
		return 0
	}
	d := b.Max.Sub(b.Min)
	return 2 * (d[0]*d[1] + d[1]*d[2] + d[2]*d[0])
}

// Union returns the smallest AABB containing both b and o. Empty is the
// identity element: Union(Empty, o) == o.
func (b AABB) Union(o AABB) AABB {
	if b.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return b
	}
	return AABB{
		Min: mgl32.Vec3{min32(b.Min[0], o.Min[0]), min32(b.Min[1], o.Min[1]), min32(b.Min[2], o.Min[2])},
		Max: mgl32.Vec3{max32(b.Max[0], o.Max[0]), max32(b.Max[1], o.Max[1]), max32(b.Max[2], o.Max[2])},
	}
}

// Expand grows b by d on every axis in both directions (used to build a
// shrunk/grown collision box around a proposed position, spec.md §4.6).
func (b AABB) Expand(d float32) AABB {
	v := mgl32.Vec3{d, d, d}
	return AABB{Min: b.Min.Sub(v), Max: b.Max.Add(v)}
}

// Translate shifts b by delta.
func (b AABB) Translate(delta mgl32.Vec3) AABB {
	return AABB{Min: b.Min.Add(delta), Max: b.Max.Add(delta)}
}

// RayHit describes the result of a successful AABB ray intersection.
type RayHit struct {
	// TMin, TMax are the ray parameters at which the ray enters and exits
	// the box along its direction.
	TMin, TMax float32
}

// IntersectRay performs a slab-method ray/AABB intersection test. origin is
// the ray's start point, inv is the precomputed per-axis reciprocal of the
// ray direction (1/dx, 1/dy, 1/dz; infinite components are valid and handled).
// It returns the nearer of the entry/exit parameters, or the exit parameter
// if the origin lies inside the box, and false if the ray misses entirely or
// exits behind the origin (tMax < 0).
func (b AABB) IntersectRay(origin, inv mgl32.Vec3) (float32, bool) {
	tMin := float32(math.Inf(-1))
	tMax := float32(math.Inf(1))
	for i := 0; i < 3; i++ {
		t1 := (b.Min[i] - origin[i]) * inv[i]
		t2 := (b.Max[i] - origin[i]) * inv[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tMin {
			tMin = t1
		}
		if t2 < tMax {
			tMax = t2
		}
		if tMin > tMax {
			return 0, false
		}
	}
	if tMax < 0 {
		return 0, false
	}
	if tMin < 0 {
		// Origin is inside the box: return the exit parameter.
		return tMax, true
	}
	return tMin, true
}
