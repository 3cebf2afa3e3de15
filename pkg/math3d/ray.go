package math3d

import "math"

// Ray is a half-line with an origin and a normalized direction.
type Ray struct {
	Origin    Vec3
	Direction Vec3
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float64) Vec3 {
	return r.Origin.Add(r.Direction.Scale(t))
}

// Transform returns the ray mapped through m. The direction is not
// renormalized so distances stay comparable with the source space.
func (r Ray) Transform(m Mat4) Ray {
	return Ray{
		Origin:    m.MulVec3(r.Origin),
		Direction: m.MulVec3Dir(r.Direction),
	}
}

// IntersectPlaneY intersects the ray with the horizontal plane y=planeY.
func (r Ray) IntersectPlaneY(planeY float64) (Vec3, bool) {
	// Origin.Y + t * Direction.Y = planeY
	if math.Abs(r.Direction.Y) < 1e-9 {
		return Vec3{}, false // parallel
	}
	t := (planeY - r.Origin.Y) / r.Direction.Y
	if t < 0 {
		return Vec3{}, false // behind the origin
	}
	p := r.At(t)
	p.Y = planeY
	return p, true
}

// IntersectBox tests the ray against an axis-aligned box using slabs.
// If the ray starts inside the box, the exit distance is returned.
func (r Ray) IntersectBox(b Box3) (t float64, hit bool) {
	if b.IsEmpty() {
		return 0, false
	}
	tmin := math.Inf(-1)
	tmax := math.Inf(1)

	for axis := range 3 {
		o := r.Origin.Axis(axis)
		d := r.Direction.Axis(axis)
		lo, hi := b.Min.Axis(axis), b.Max.Axis(axis)
		if d == 0 {
			if o < lo || o > hi {
				return 0, false
			}
			continue
		}
		t1 := (lo - o) / d
		t2 := (hi - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
	}

	if tmax < tmin || tmax < 0 {
		return 0, false
	}
	if tmin < 0 {
		return tmax, true
	}
	return tmin, true
}
