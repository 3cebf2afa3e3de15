package render

import (
	"math"
	"testing"

	"github.com/taigrr/plinth/pkg/math3d"
)

func sum(t *RenderTarget) float64 {
	var s float64
	for _, a := range t.Alpha {
		s += a
	}
	return s
}

func TestGaussianWeightsNormalized(t *testing.T) {
	var s float64
	for _, w := range gaussian9 {
		s += w
	}
	if math.Abs(s-1) > 1e-3 {
		t.Errorf("weights sum to %v, want 1", s)
	}
}

func TestBlurSpreadsImpulse(t *testing.T) {
	a := NewRenderTarget(21, 21)
	b := NewRenderTarget(21, 21)
	a.Alpha[10*21+10] = 1

	BlurPingPong(a, b, 1)

	if math.Abs(sum(a)-1) > 1e-3 {
		t.Errorf("blur changed total coverage to %v", sum(a))
	}
	center := a.At(10, 10)
	if math.Abs(center-0.1633*0.1633) > 1e-9 {
		t.Errorf("center = %v, want %v", center, 0.1633*0.1633)
	}
	if a.At(10, 15) != 0 {
		t.Error("blur reached beyond four taps")
	}
	if a.At(12, 10) <= 0 || a.At(12, 10) >= center {
		t.Errorf("neighbor = %v, want between 0 and center", a.At(12, 10))
	}
}

func TestBlurZeroStepIsNoop(t *testing.T) {
	a := NewRenderTarget(4, 4)
	b := NewRenderTarget(4, 4)
	a.Alpha[5] = 1

	BlurPingPong(a, b, 0)

	if a.Alpha[5] != 1 || sum(a) != 1 {
		t.Error("zero step should leave the target untouched")
	}
}

func TestCaptureDepth(t *testing.T) {
	fb := NewFramebuffer(8, 8)
	cam := NewOrthographicCamera(OrthoBounds{Left: -1, Right: 1, Bottom: -1, Top: 1}, 0, 1)
	cam.SetPosition(math3d.Zero3())
	cam.SetRotation(math.Pi/2, 0, 0)
	r := NewRasterizer(cam, fb)

	// A horizontal slab a quarter of the way up covering the left half.
	y := 0.25
	st := RasterState{Cull: CullNone, DepthTest: true, DepthWrite: true, DepthOnly: true}
	r.DrawTriangleFlat(math3d.V3(-1, y, -1), math3d.V3(0, y, -1), math3d.V3(0, y, 1), ColorWhite, st)
	r.DrawTriangleFlat(math3d.V3(-1, y, -1), math3d.V3(0, y, 1), math3d.V3(-1, y, 1), ColorWhite, st)

	rt := NewRenderTarget(8, 8)
	rt.CaptureDepth(r, 0.8)

	if got := rt.At(1, 4); math.Abs(got-(1-y)*0.8) > 1e-9 {
		t.Errorf("covered texel = %v, want %v", got, (1-y)*0.8)
	}
	if got := rt.At(6, 4); got != 0 {
		t.Errorf("uncovered texel = %v, want 0", got)
	}
}

func TestToTexture(t *testing.T) {
	rt := NewRenderTarget(2, 1)
	rt.Alpha[0] = 0.5
	rt.Alpha[1] = 4

	tex := rt.ToTexture(nil, ColorBlack, 0.5)

	if tex.Width != 2 || tex.Height != 1 {
		t.Fatalf("texture size %dx%d", tex.Width, tex.Height)
	}
	if got := tex.Pixels[0].A; got != 63 {
		t.Errorf("alpha = %d, want 63", got)
	}
	if got := tex.Pixels[1].A; got != 255 {
		t.Errorf("over-range alpha = %d, want clamped 255", got)
	}
	if tex.WrapU != WrapClamp || tex.FilterMode != FilterBilinear {
		t.Error("shadow texture should clamp and filter")
	}

	same := rt.ToTexture(tex, ColorBlack, 1)
	if same != tex {
		t.Error("matching texture should be reused")
	}
}
