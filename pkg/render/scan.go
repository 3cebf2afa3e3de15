package render

import (
	"math"

	"github.com/taigrr/plinth/pkg/math3d"
)

// edgeCoeffs returns A, B, C for the edge function edge(x,y) = A*x + B*y + C.
// Positive = left of edge, negative = right of edge, zero = on edge.
func edgeCoeffs(x0, y0, x1, y1 float64) (A, B, C float64) {
	A = y0 - y1 // dy
	B = x1 - x0 // -dx
	C = x0*y1 - x1*y0
	return
}

// edgeFunc evaluates edge function at point (x, y)
func edgeFunc(A, B, C, x, y float64) float64 {
	return A*x + B*y + C
}

// scanTriangle fills a projected triangle using incremental edge functions.
// area is twice the signed screen area; either winding is accepted here,
// culling happens before.
func (r *Rasterizer) scanTriangle(sv *[3]screenVertex, area float64, st RasterState) {
	// Bounding box (clamped to screen)
	minX := int(math.Max(0, math.Floor(min3(sv[0].X, sv[1].X, sv[2].X))))
	maxX := int(math.Min(float64(r.Width()-1), math.Ceil(max3(sv[0].X, sv[1].X, sv[2].X))))
	minY := int(math.Max(0, math.Floor(min3(sv[0].Y, sv[1].Y, sv[2].Y))))
	maxY := int(math.Min(float64(r.Height()-1), math.Ceil(max3(sv[0].Y, sv[1].Y, sv[2].Y))))

	if minX > maxX || minY > maxY {
		return
	}

	// Edge 0: v1 -> v2, Edge 1: v2 -> v0, Edge 2: v0 -> v1
	A0, B0, C0 := edgeCoeffs(sv[1].X, sv[1].Y, sv[2].X, sv[2].Y)
	A1, B1, C1 := edgeCoeffs(sv[2].X, sv[2].Y, sv[0].X, sv[0].Y)
	A2, B2, C2 := edgeCoeffs(sv[0].X, sv[0].Y, sv[1].X, sv[1].Y)

	invArea := 1.0 / area

	// Perspective-correct interpolation factors
	var invW [3]float64
	for i := range 3 {
		invW[i] = 1.0 / sv[i].W
	}

	px := float64(minX) + 0.5
	py := float64(minY) + 0.5

	w0Row := edgeFunc(A0, B0, C0, px, py)
	w1Row := edgeFunc(A1, B1, C1, px, py)
	w2Row := edgeFunc(A2, B2, C2, px, py)

	width := r.Width()
	zbuffer := r.zbuffer
	fb := r.fb
	tex := st.Texture

	for y := minY; y <= maxY; y++ {
		w0 := w0Row
		w1 := w1Row
		w2 := w2Row
		rowOffset := y * width

		for x := minX; x <= maxX; x++ {
			bc0 := w0 * invArea
			bc1 := w1 * invArea
			bc2 := w2 * invArea

			// Step in X direction before any continue
			w0 += A0
			w1 += A1
			w2 += A2

			if bc0 < 0 || bc1 < 0 || bc2 < 0 {
				continue
			}

			z := bc0*sv[0].Z + bc1*sv[1].Z + bc2*sv[2].Z
			if z < -1 || z > 1 {
				continue // outside near/far
			}

			idx := rowOffset + x
			if st.DepthTest && z >= zbuffer[idx] {
				continue
			}
			if st.DepthWrite {
				zbuffer[idx] = z
			}
			if st.DepthOnly {
				continue
			}

			c := interpolateColor3(sv[0].Color, sv[1].Color, sv[2].Color, math3d.V3(bc0, bc1, bc2))

			if tex != nil {
				pw0 := bc0 * invW[0]
				pw1 := bc1 * invW[1]
				pw2 := bc2 * invW[2]
				oneOverW := pw0 + pw1 + pw2
				if oneOverW == 0 {
					continue
				}
				u := (pw0*sv[0].UV.X + pw1*sv[1].UV.X + pw2*sv[2].UV.X) / oneOverW
				v := (pw0*sv[0].UV.Y + pw1*sv[1].UV.Y + pw2*sv[2].UV.Y) / oneOverW
				c = ModulateColor(tex.Sample(u, v), c)
			}

			if st.Blend {
				fb.BlendPixel(x, y, c)
			} else {
				c.A = 255
				fb.SetPixel(x, y, c)
			}
		}

		// Step in Y direction
		w0Row += B0
		w1Row += B1
		w2Row += B2
	}
}

// blend3 weights three channel values by barycentric coordinates, rounding
// to the nearest representable value.
func blend3(a, b, c uint8, w0, w1, w2 float64) uint8 {
	v := float64(a)*w0 + float64(b)*w1 + float64(c)*w2 + 0.5
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
