package math3d

import "math"

// Box3 is an axis-aligned bounding box.
//
// The zero value is a degenerate box at the origin. Use EmptyBox to start
// an accumulation; an empty box has Min > Max on every axis.
type Box3 struct {
	Min Vec3 `json:"min" yaml:"min"`
	Max Vec3 `json:"max" yaml:"max"`
}

// NewBox3 creates a box from min and max corners.
func NewBox3(min, max Vec3) Box3 {
	return Box3{Min: min, Max: max}
}

// EmptyBox returns a box that contains nothing.
func EmptyBox() Box3 {
	inf := math.Inf(1)
	return Box3{
		Min: Vec3{inf, inf, inf},
		Max: Vec3{-inf, -inf, -inf},
	}
}

// BoxFromCenterSize builds a box centered at c with the given full size.
func BoxFromCenterSize(c, size Vec3) Box3 {
	h := size.Scale(0.5)
	return Box3{Min: c.Sub(h), Max: c.Add(h)}
}

// IsEmpty reports whether the box contains no points.
func (b Box3) IsEmpty() bool {
	return b.Max.X < b.Min.X || b.Max.Y < b.Min.Y || b.Max.Z < b.Min.Z
}

// Center returns the center of the box.
func (b Box3) Center() Vec3 {
	if b.IsEmpty() {
		return Vec3{}
	}
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the dimensions of the box. Empty boxes have zero size.
func (b Box3) Size() Vec3 {
	if b.IsEmpty() {
		return Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// HalfSize returns half the dimensions (extents from center).
func (b Box3) HalfSize() Vec3 {
	return b.Size().Scale(0.5)
}

// MaxDim returns the largest side length.
func (b Box3) MaxDim() float64 {
	s := b.Size()
	return math.Max(s.X, math.Max(s.Y, s.Z))
}

// ExpandByPoint grows the box to include p.
func (b Box3) ExpandByPoint(p Vec3) Box3 {
	return Box3{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

// Union returns the smallest box containing both boxes.
func (b Box3) Union(o Box3) Box3 {
	if o.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return o
	}
	return Box3{Min: b.Min.Min(o.Min), Max: b.Max.Max(o.Max)}
}

// ExpandScalar grows the box by s on every side. Negative s shrinks it.
func (b Box3) ExpandScalar(s float64) Box3 {
	d := Vec3{s, s, s}
	return Box3{Min: b.Min.Sub(d), Max: b.Max.Add(d)}
}

// Translate moves the box by v.
func (b Box3) Translate(v Vec3) Box3 {
	return Box3{Min: b.Min.Add(v), Max: b.Max.Add(v)}
}

// Intersects reports whether two boxes overlap. Touching faces count as
// overlapping.
func (b Box3) Intersects(o Box3) bool {
	return !(o.Max.X < b.Min.X || o.Min.X > b.Max.X ||
		o.Max.Y < b.Min.Y || o.Min.Y > b.Max.Y ||
		o.Max.Z < b.Min.Z || o.Min.Z > b.Max.Z)
}

// ContainsPoint returns true if the point is inside the box.
func (b Box3) ContainsPoint(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// BoundingSphere returns the sphere circumscribing the box.
func (b Box3) BoundingSphere() (center Vec3, radius float64) {
	if b.IsEmpty() {
		return Vec3{}, -1
	}
	return b.Center(), b.Size().Len() * 0.5
}

// Corners returns the 8 corners of the box.
func (b Box3) Corners() [8]Vec3 {
	return [8]Vec3{
		{b.Min.X, b.Min.Y, b.Min.Z},
		{b.Max.X, b.Min.Y, b.Min.Z},
		{b.Min.X, b.Max.Y, b.Min.Z},
		{b.Max.X, b.Max.Y, b.Min.Z},
		{b.Min.X, b.Min.Y, b.Max.Z},
		{b.Max.X, b.Min.Y, b.Max.Z},
		{b.Min.X, b.Max.Y, b.Max.Z},
		{b.Max.X, b.Max.Y, b.Max.Z},
	}
}

// Transform returns the box bounding all 8 corners after transformation.
func (b Box3) Transform(m Mat4) Box3 {
	if b.IsEmpty() {
		return b
	}
	out := EmptyBox()
	for _, c := range b.Corners() {
		out = out.ExpandByPoint(m.MulVec3(c))
	}
	return out
}
