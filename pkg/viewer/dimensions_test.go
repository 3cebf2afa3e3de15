package viewer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taigrr/plinth/pkg/math3d"
	"github.com/taigrr/plinth/pkg/render"
)

func TestDimensionsMeasureGroup(t *testing.T) {
	d := newDimensionOverlay()
	box := math3d.NewBox3(math3d.V3(-0.6, 0, -0.4), math3d.V3(1.2, 0.75, 0.4))
	cfg := DefaultConfig("test").Dimensions
	d.rebuild(box, cfg, render.ColorBlack)

	require.Len(t, d.lines, 3)
	assert.Equal(t, 1800, d.lines[0].MM, "width")
	assert.Equal(t, 800, d.lines[1].MM, "depth")
	assert.Equal(t, 750, d.lines[2].MM, "height")
	assert.Equal(t, "1800 mm", d.lines[0].Label.Text)

	pad := cfg.Offset
	// Width runs along the top back edge, outside the box.
	assert.InDelta(t, box.Max.Y+pad, d.lines[0].A.Y, 1e-12)
	assert.InDelta(t, box.Min.Z-pad, d.lines[0].A.Z, 1e-12)
	// Each line is exactly as long as the extent it labels.
	size := box.Size()
	assert.InDelta(t, size.X, d.lines[0].A.Distance(d.lines[0].B), 1e-12)
	assert.InDelta(t, size.Z, d.lines[1].A.Distance(d.lines[1].B), 1e-12)
	assert.InDelta(t, size.Y, d.lines[2].A.Distance(d.lines[2].B), 1e-12)
	assert.InDelta(t, box.Min.X, d.lines[0].A.X, 1e-12)
	// Height stands at the back left corner.
	assert.InDelta(t, box.Min.X-pad, d.lines[2].A.X, 1e-12)
	assert.InDelta(t, box.Min.Y, d.lines[2].B.Y, 1e-12)
}

func TestDimensionsDisabledOrEmpty(t *testing.T) {
	d := newDimensionOverlay()
	cfg := DefaultConfig("test").Dimensions
	d.rebuild(math3d.EmptyBox(), cfg, render.ColorBlack)
	assert.False(t, d.visible())

	cfg.Enabled = false
	d.rebuild(unitBox(), cfg, render.ColorBlack)
	assert.False(t, d.visible())
	assert.Empty(t, d.items(render.ColorBlack))
}

func TestDimensionsRescaleKeepsScreenThickness(t *testing.T) {
	d := newDimensionOverlay()
	d.rebuild(unitBox(), DefaultConfig("test").Dimensions, render.ColorBlack)

	cam := render.NewCamera()
	cam.SetFOV(math3d.DegToRad(30))
	cam.SetPosition(math3d.V3(0, 0.5, 4))
	d.rescale(cam, 360, unitBox().Center())
	near := d.thickness

	cam.SetPosition(math3d.V3(0, 0.5, 8))
	d.rescale(cam, 360, unitBox().Center())
	assert.InDelta(t, near*2, d.thickness, 1e-12)

	for _, it := range d.items(render.ColorBlack) {
		assert.Equal(t, render.TagOverlay, it.Tags)
	}
}

func TestDimensionsSuspendedDuringDrag(t *testing.T) {
	d := newDimensionOverlay()
	d.rebuild(unitBox(), DefaultConfig("test").Dimensions, render.ColorBlack)
	require.True(t, d.visible())
	d.suspended = true
	assert.False(t, d.visible())
	assert.Nil(t, d.items(render.ColorBlack))
}
