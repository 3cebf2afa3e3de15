package math3d

import (
	"math"
	"testing"
)

func TestRayIntersectPlaneY(t *testing.T) {
	r := Ray{Origin: V3(0, 5, 0), Direction: V3(0, -1, 1).Normalize()}
	p, ok := r.IntersectPlaneY(0)
	if !ok {
		t.Fatal("expected hit")
	}
	if math.Abs(p.Z-5) > 1e-9 || p.Y != 0 {
		t.Errorf("hit = %v, want (0, 0, 5)", p)
	}

	up := Ray{Origin: V3(0, 5, 0), Direction: V3(0, 1, 0)}
	if _, ok := up.IntersectPlaneY(0); ok {
		t.Error("ray pointing away should miss")
	}

	flat := Ray{Origin: V3(0, 5, 0), Direction: V3(1, 0, 0)}
	if _, ok := flat.IntersectPlaneY(0); ok {
		t.Error("parallel ray should miss")
	}
}

func TestRayIntersectBox(t *testing.T) {
	box := NewBox3(V3(-1, -1, -1), V3(1, 1, 1))

	tests := []struct {
		name  string
		ray   Ray
		hit   bool
		wantT float64
	}{
		{"front hit", Ray{Origin: V3(0, 0, 5), Direction: V3(0, 0, -1)}, true, 4},
		{"miss", Ray{Origin: V3(3, 0, 5), Direction: V3(0, 0, -1)}, false, 0},
		{"inside", Ray{Origin: V3(0, 0, 0), Direction: V3(1, 0, 0)}, true, 1},
		{"behind", Ray{Origin: V3(0, 0, 5), Direction: V3(0, 0, 1)}, false, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tt, hit := tc.ray.IntersectBox(box)
			if hit != tc.hit {
				t.Fatalf("hit = %v, want %v", hit, tc.hit)
			}
			if hit && math.Abs(tt-tc.wantT) > 1e-9 {
				t.Errorf("t = %v, want %v", tt, tc.wantT)
			}
		})
	}
}

func TestSphericalRoundTrip(t *testing.T) {
	s := Spherical{Radius: 4, Phi: DegToRad(75), Theta: DegToRad(30)}
	back := SphericalFromVec(s.Vec())
	if math.Abs(back.Radius-s.Radius) > 1e-9 ||
		math.Abs(back.Phi-s.Phi) > 1e-9 ||
		math.Abs(back.Theta-s.Theta) > 1e-9 {
		t.Errorf("round trip = %+v, want %+v", back, s)
	}

	// theta 0 looks down -Z from +Z.
	v := Spherical{Radius: 1, Phi: math.Pi / 2}.Vec()
	if math.Abs(v.Z-1) > 1e-9 || math.Abs(v.X) > 1e-9 {
		t.Errorf("theta 0 offset = %v, want +Z", v)
	}
}
