package render

import (
	"math"
	"math/rand"
	"testing"

	"github.com/taigrr/plinth/pkg/math3d"
)

// BenchmarkFrustumExtract benchmarks frustum plane extraction from view-projection matrix.
func BenchmarkFrustumExtract(b *testing.B) {
	proj := math3d.Perspective(math.Pi/3, 16.0/9.0, 0.1, 100)
	viewProj := proj.Mul(math3d.Identity())

	for b.Loop() {
		_ = NewFrustumFromMatrix(viewProj)
	}
}

// BenchmarkBoxIntersection benchmarks box vs frustum intersection tests.
func BenchmarkBoxIntersection(b *testing.B) {
	proj := math3d.Perspective(math.Pi/3, 16.0/9.0, 0.1, 100)
	frustum := NewFrustumFromMatrix(proj)

	visible := math3d.BoxFromCenterSize(math3d.V3(0, 0, -10), math3d.V3(2, 2, 2))
	hidden := math3d.BoxFromCenterSize(math3d.V3(0, 0, 10), math3d.V3(2, 2, 2))

	b.Run("Visible", func(b *testing.B) {
		for b.Loop() {
			_ = frustum.IntersectsBox(visible)
		}
	})

	b.Run("Culled", func(b *testing.B) {
		for b.Loop() {
			_ = frustum.IntersectsBox(hidden)
		}
	})
}

// BenchmarkSceneCulling tests culling a scene of randomly placed modules.
func BenchmarkSceneCulling(b *testing.B) {
	camera := NewCamera()
	camera.SetPosition(math3d.V3(0, 2, 10))
	camera.LookAt(math3d.Zero3())
	frustum := camera.Frustum()

	rng := rand.New(rand.NewSource(42))
	boxes := make([]math3d.Box3, 500)
	for i := range boxes {
		c := math3d.V3(rng.Float64()*100-50, rng.Float64()*2, rng.Float64()*100-50)
		boxes[i] = math3d.BoxFromCenterSize(c, math3d.V3(1, 1, 1))
	}

	b.ResetTimer()
	for b.Loop() {
		visible := 0
		for _, box := range boxes {
			if frustum.IntersectsBox(box) {
				visible++
			}
		}
		_ = visible
	}
}

// BenchmarkDrawMesh measures the full mesh path for a two-triangle quad.
func BenchmarkDrawMesh(b *testing.B) {
	r, fb := createTestRasterizer(160, 90)
	mesh := quadMesh(0, 2)

	for b.Loop() {
		fb.Clear(ColorBlack)
		r.ClearDepth()
		r.DrawMesh(mesh, math3d.Identity(), nil, OpaqueState())
	}
}
