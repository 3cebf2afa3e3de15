package render

import (
	"github.com/taigrr/plinth/pkg/math3d"
)

// Wireframe draws unshaded debug lines over a rendered frame using the
// rasterizer's current camera.
type Wireframe struct {
	r *Rasterizer
}

// NewWireframe creates a wireframe drawer bound to r.
func NewWireframe(r *Rasterizer) *Wireframe {
	return &Wireframe{r: r}
}

// boxEdges index pairs into math3d.Box3.Corners.
var boxEdges = [12][2]int{
	{0, 1}, {1, 3}, {3, 2}, {2, 0},
	{4, 5}, {5, 7}, {7, 6}, {6, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

// DrawBox draws the 12 edges of an axis-aligned box.
func (w *Wireframe) DrawBox(b math3d.Box3, color Color) {
	if b.IsEmpty() {
		return
	}
	c := b.Corners()
	for _, e := range boxEdges {
		w.r.DrawLine3D(c[e[0]], c[e[1]], color)
	}
}

// DrawAxes draws the coordinate axes at origin.
func (w *Wireframe) DrawAxes(origin math3d.Vec3, length float64) {
	w.r.DrawLine3D(origin, origin.Add(math3d.V3(length, 0, 0)), ColorRed)
	w.r.DrawLine3D(origin, origin.Add(math3d.V3(0, length, 0)), ColorGreen)
	w.r.DrawLine3D(origin, origin.Add(math3d.V3(0, 0, length)), ColorBlue)
}

// DrawGrid draws a square grid on the ground plane centered at center.
func (w *Wireframe) DrawGrid(center math3d.Vec3, size, step float64, color Color) {
	if step <= 0 || size <= 0 {
		return
	}
	half := size / 2
	n := int(size / step)
	for i := 0; i <= n; i++ {
		off := -half + float64(i)*step
		w.r.DrawLine3D(
			math3d.V3(center.X+off, center.Y, center.Z-half),
			math3d.V3(center.X+off, center.Y, center.Z+half), color)
		w.r.DrawLine3D(
			math3d.V3(center.X-half, center.Y, center.Z+off),
			math3d.V3(center.X+half, center.Y, center.Z+off), color)
	}
}
