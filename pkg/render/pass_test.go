package render

import (
	"math"
	"testing"

	"github.com/taigrr/plinth/pkg/math3d"
)

func unlit(c Color) Material {
	return Material{Color: c, Unlit: true, State: OpaqueState()}
}

func TestPassExcludesTags(t *testing.T) {
	r, fb := createTestRasterizer(32, 32)
	fb.Clear(ColorBlack)

	items := []Item{
		{Name: "module", Mesh: quadMesh(0, 1), Transform: math3d.Identity(), Tags: TagModule, Material: unlit(ColorRed)},
		{Name: "collider", Mesh: quadMesh(1, 1), Transform: math3d.Identity(), Tags: TagCollider, Material: unlit(ColorGreen)},
		{Name: "hidden", Mesh: quadMesh(2, 1), Transform: math3d.Identity(), Tags: TagModule, Material: unlit(ColorBlue), Hidden: true},
	}

	stats := Pass{Name: "main", Exclude: TagCollider}.Execute(r, items)

	if stats.Drawn != 1 || stats.Excluded != 1 {
		t.Errorf("stats = %+v, want 1 drawn and 1 excluded", stats)
	}
	if got := fb.GetPixel(16, 16); got != ColorRed {
		t.Errorf("center = %v, want the module color", got)
	}
}

func TestPassDepthOverride(t *testing.T) {
	r, fb := createTestRasterizer(32, 32)
	fb.Clear(ColorBlack)

	items := []Item{
		{Mesh: quadMesh(0, 1), Transform: math3d.Identity(), Tags: TagModule, Material: unlit(ColorRed)},
		{Mesh: quadMesh(0.5, 1), Transform: math3d.Identity(), Tags: TagOutline, Material: unlit(ColorGreen)},
	}

	stats := Pass{Name: "depth", Exclude: HelperTags, Override: OverrideDepth}.Execute(r, items)

	if stats.Drawn != 1 || stats.Excluded != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if got := fb.GetPixel(16, 16); got != ColorBlack {
		t.Errorf("depth pass wrote color %v", got)
	}
	if r.DepthAt(16, 16) == math.MaxFloat64 {
		t.Error("depth pass wrote no depth")
	}
}

func TestPassDefersTransparentItems(t *testing.T) {
	r, fb := createTestRasterizer(32, 32)
	fb.Clear(ColorBlack)

	glass := Material{Color: RGBA(0, 0, 255, 128), Unlit: true, State: RasterState{Cull: CullBack, DepthTest: true}}
	items := []Item{
		// Listed first but nearer; it must still be blended over the opaque quad.
		{Mesh: quadMesh(1, 1), Transform: math3d.Identity(), Material: glass},
		{Mesh: quadMesh(0, 1), Transform: math3d.Identity(), Material: unlit(ColorRed)},
	}

	Pass{}.Execute(r, items)

	got := fb.GetPixel(16, 16)
	if got.R == 0 || got.B == 0 {
		t.Errorf("center = %v, want red blended with blue", got)
	}
}

func TestPassLitShading(t *testing.T) {
	r, fb := createTestRasterizer(32, 32)
	fb.Clear(ColorBlack)

	lit := Material{Color: ColorWhite, State: OpaqueState()}
	p := Pass{Light: DefaultLight(), Tone: ToneMapping{Mode: ToneMappingNone, Exposure: 1}}
	p.Execute(r, []Item{{Mesh: quadMesh(0, 1), Transform: math3d.Identity(), Material: lit}})

	got := fb.GetPixel(16, 16)
	if got == ColorBlack || got == ColorWhite {
		t.Errorf("lit quad = %v, want partially lit gray", got)
	}
	if got.R != got.G || got.G != got.B {
		t.Errorf("untinted light should stay neutral, got %v", got)
	}
}

func TestLightIntensity(t *testing.T) {
	l := DefaultLight()

	if got := l.Intensity(l.Direction); math.Abs(got-1) > 1e-9 {
		t.Errorf("facing light = %v, want 1", got)
	}
	if got := l.Intensity(l.Direction.Negate()); math.Abs(got-l.Ambient) > 1e-9 {
		t.Errorf("facing away = %v, want ambient %v", got, l.Ambient)
	}
}

func TestMaterialTransparent(t *testing.T) {
	tests := []struct {
		name string
		mat  Material
		want bool
	}{
		{"opaque", unlit(ColorRed), false},
		{"alpha color", Material{Color: RGBA(1, 2, 3, 10)}, true},
		{"blend state", Material{Color: ColorWhite, State: RasterState{Blend: true}}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.mat.Transparent(); got != tc.want {
				t.Errorf("Transparent() = %v, want %v", got, tc.want)
			}
		})
	}
}
