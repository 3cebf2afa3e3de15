package viewer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taigrr/plinth/pkg/math3d"
	"github.com/taigrr/plinth/pkg/render"
)

func shadowConfig() ShadowConfig {
	cfg := DefaultConfig("test").Shadow
	cfg.Resolution = 32
	return cfg
}

func TestShadowTrackSizesPlane(t *testing.T) {
	s := newShadowRig(shadowConfig())
	require.True(t, s.track(unitBox()))
	assert.InDelta(t, 1.6, s.width, 1e-12)
	assert.InDelta(t, 1.6, s.depth, 1e-12)
	assert.InDelta(t, -0.002, s.position.Y, 1e-12)

	// Small footprints keep a minimum plane.
	tiny := math3d.BoxFromCenterSize(math3d.V3(2, 0.05, 3), math3d.V3(0.1, 0.1, 0.1))
	require.True(t, s.track(tiny))
	assert.InDelta(t, minShadowPlane, s.width, 1e-12)
	assert.InDelta(t, 2, s.position.X, 1e-12)
	assert.InDelta(t, 3, s.position.Z, 1e-12)
}

func TestShadowDisabledWithoutExtent(t *testing.T) {
	s := newShadowRig(shadowConfig())
	s.update(math3d.EmptyBox())
	assert.False(t, s.enabled)
	assert.False(t, s.dirty)
	_, ok := s.item()
	assert.False(t, ok)

	flat := math3d.NewBox3(math3d.V3(1, 0, 1), math3d.V3(1, 0, 1))
	s.update(flat)
	assert.False(t, s.enabled)
}

func TestShadowResizeHysteresis(t *testing.T) {
	s := newShadowRig(shadowConfig())
	s.track(unitBox())
	plane := s.plane
	s.track(unitBox().Translate(math3d.V3(0.3, 0, 0)))
	assert.Same(t, plane, s.plane, "same footprint keeps the plane")

	s.track(math3d.BoxFromCenterSize(math3d.V3(0, 0.5, 0), math3d.V3(2, 1, 1)))
	assert.NotSame(t, plane, s.plane)
}

func TestShadowBlurUnits(t *testing.T) {
	cfg := shadowConfig()
	cfg.Units = BlurUnitsWorld
	cfg.Blur = 0.1
	s := newShadowRig(cfg)
	s.track(math3d.BoxFromCenterSize(math3d.V3(0, 0.5, 0), math3d.V3(2, 1, 2)))
	// 0.1m on a 3.2m plane at 32 texels.
	assert.InDelta(t, 1.0, s.blurStep(), 1e-12)

	cfg.Units = BlurUnitsPixels
	cfg.Blur = 4
	s.setConfig(cfg)
	assert.InDelta(t, 4, s.blurStep(), 1e-12)
}

func TestShadowRenderDarkensUnderModule(t *testing.T) {
	s := newShadowRig(shadowConfig())
	s.update(unitBox())
	require.True(t, s.dirty)

	m := newModule("", unitCube())
	items := []render.Item{{
		Name:     "cube",
		Mesh:     m.parts[0].mesh,
		Tags:     render.TagModule,
		Material: m.parts[0].material,
	}, {
		Name: "collider",
		Mesh: m.parts[0].mesh,
		Tags: render.TagCollider,
	}}
	items[0].Transform = m.Matrix()
	items[1].Transform = m.Matrix()

	st := s.render(items, zap.NewNop())
	assert.Equal(t, 1, st.Drawn)
	assert.Equal(t, 1, st.Excluded)
	assert.False(t, s.dirty)

	res := s.cfg.Resolution
	center := s.a.At(res/2, res/2)
	corner := s.a.At(0, 0)
	assert.Greater(t, center, corner)
	assert.Positive(t, center)

	it, ok := s.item()
	require.True(t, ok)
	assert.Equal(t, render.TagShadowPlane, it.Tags)
	assert.True(t, it.Material.State.Blend)
}
