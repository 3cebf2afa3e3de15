package viewer

import (
	"fmt"
	"math"

	"github.com/taigrr/plinth/pkg/math3d"
	"github.com/taigrr/plinth/pkg/models"
	"github.com/taigrr/plinth/pkg/render"
)

// lineThicknessPx is the on-screen thickness of a dimension line.
const lineThicknessPx = 1.5

// dimensionLine is one measured edge: a thin box from A to B plus a label.
type dimensionLine struct {
	A, B     math3d.Vec3
	LabelPos math3d.Vec3
	Label    *render.Label
	MM       int
}

// dimensionOverlay draws width, depth and height of the module group. It is
// regenerated from the group bounds after every structural change and only
// rescaled per frame.
type dimensionOverlay struct {
	lines     []dimensionLine
	unit      *models.Mesh
	thickness float64
	suspended bool // hidden for the duration of a drag
}

func newDimensionOverlay() *dimensionOverlay {
	return &dimensionOverlay{
		unit:      models.NewBox("dimension", math3d.BoxFromCenterSize(math3d.Zero3(), math3d.V3(1, 1, 1))),
		thickness: 0.0025,
	}
}

func (d *dimensionOverlay) clear() {
	d.lines = nil
}

// rebuild lays the three lines out around box. The width line runs along
// the top back edge, the depth line along the bottom left edge and the
// height line down the back left corner. Each is pushed out by the offset
// on the axes it does not measure, so its length equals its label.
func (d *dimensionOverlay) rebuild(box math3d.Box3, cfg DimensionsConfig, text render.Color) {
	d.lines = nil
	if !cfg.Enabled || box.IsEmpty() {
		return
	}
	size := box.Size()
	pad := math.Max(0.01, cfg.Offset)
	yTop := box.Max.Y + pad
	xLeft := box.Min.X - pad
	zBack := box.Min.Z - pad

	style := render.DefaultLabelStyle()
	style.Foreground = text
	mk := func(a, b, labelPos math3d.Vec3, extent float64) dimensionLine {
		mm := int(math.Round(extent * 1000))
		return dimensionLine{
			A: a, B: b, LabelPos: labelPos, MM: mm,
			Label: render.NewLabel(fmt.Sprintf("%d mm", mm), style),
		}
	}

	wa, wb := math3d.V3(box.Min.X, yTop, zBack), math3d.V3(box.Max.X, yTop, zBack)
	da, db := math3d.V3(xLeft, box.Min.Y, box.Min.Z), math3d.V3(xLeft, box.Min.Y, box.Max.Z)
	ha, hb := math3d.V3(xLeft, box.Max.Y, zBack), math3d.V3(xLeft, box.Min.Y, zBack)

	d.lines = []dimensionLine{
		mk(wa, wb, math3d.V3((wa.X+wb.X)/2, yTop+pad/2, zBack), size.X),
		mk(da, db, math3d.V3(xLeft, box.Min.Y+pad/2, (da.Z+db.Z)/2), size.Z),
		mk(ha, hb, math3d.V3(xLeft-pad/2, (ha.Y+hb.Y)/2, zBack), size.Y),
	}
}

// rescale keeps lines lineThicknessPx thick on screen at the current
// camera distance.
func (d *dimensionOverlay) rescale(cam *render.Camera, viewportH int, center math3d.Vec3) {
	dist := cam.Position.Distance(center)
	worldH := 2 * math.Tan(cam.FOV/2) * dist
	if worldH <= 0 || viewportH <= 0 {
		return
	}
	ppu := float64(viewportH) / worldH
	d.thickness = lineThicknessPx / ppu
}

func (d *dimensionOverlay) visible() bool {
	return len(d.lines) > 0 && !d.suspended
}

// items returns one scaled unit box per line.
func (d *dimensionOverlay) items(c render.Color) []render.Item {
	if !d.visible() {
		return nil
	}
	out := make([]render.Item, 0, len(d.lines))
	for _, l := range d.lines {
		delta := l.B.Sub(l.A)
		mid := l.A.Add(delta.Scale(0.5))
		// Lines are axis aligned, so scale the unit box per axis.
		scale := math3d.V3(
			math.Max(math.Abs(delta.X), d.thickness),
			math.Max(math.Abs(delta.Y), d.thickness),
			math.Max(math.Abs(delta.Z), d.thickness),
		)
		out = append(out, render.Item{
			Name:      "dimension",
			Mesh:      d.unit,
			Transform: math3d.Translate(mid).Mul(math3d.Scale(scale)),
			Tags:      render.TagOverlay,
			Material:  render.Material{Color: c, Unlit: true, State: render.OpaqueState()},
		})
	}
	return out
}

// drawLabels blends the labels at their projected positions. Labels are
// screen-space sprites, so their size never depends on zoom.
func (d *dimensionOverlay) drawLabels(fb *render.Framebuffer, cam *render.Camera, scale float64) {
	if !d.visible() {
		return
	}
	for _, l := range d.lines {
		x, y, _, ok := cam.WorldToScreen(l.LabelPos, fb.Width, fb.Height)
		if !ok {
			continue
		}
		fb.DrawLabel(l.Label, x, y, scale/float64(l.Label.Scale))
	}
}
