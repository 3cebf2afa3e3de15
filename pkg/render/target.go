package render

import (
	"math"
)

// RenderTarget is an off-screen single-channel coverage buffer.
type RenderTarget struct {
	Width  int
	Height int
	Alpha  []float64
}

// NewRenderTarget allocates a cleared target.
func NewRenderTarget(width, height int) *RenderTarget {
	return &RenderTarget{
		Width:  width,
		Height: height,
		Alpha:  make([]float64, width*height),
	}
}

// Clear zeroes the target.
func (t *RenderTarget) Clear() {
	clear(t.Alpha)
}

// At returns the value at (x, y), clamping to the edges.
func (t *RenderTarget) At(x, y int) float64 {
	x = max(0, min(t.Width-1, x))
	y = max(0, min(t.Height-1, y))
	return t.Alpha[y*t.Width+x]
}

// sample reads at a fractional position with linear filtering.
func (t *RenderTarget) sample(x, y float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)
	top := t.At(x0, y0)*(1-fx) + t.At(x0+1, y0)*fx
	bot := t.At(x0, y0+1)*(1-fx) + t.At(x0+1, y0+1)*fx
	return top*(1-fy) + bot*fy
}

// CaptureDepth converts a depth-only render into coverage: texels hit by
// geometry become (1 - depth01) * darkness, where depth01 is the linear
// [0,1] depth of an orthographic camera. Untouched texels become 0.
func (t *RenderTarget) CaptureDepth(r *Rasterizer, darkness float64) {
	for y := range t.Height {
		for x := range t.Width {
			z := r.DepthAt(x, y)
			if z == math.MaxFloat64 {
				t.Alpha[y*t.Width+x] = 0
				continue
			}
			d01 := clamp01((z + 1) * 0.5)
			t.Alpha[y*t.Width+x] = (1 - d01) * darkness
		}
	}
}

// gaussian9 are the 9-tap weights of the separable contact-shadow blur.
var gaussian9 = [9]float64{0.051, 0.0918, 0.12245, 0.1531, 0.1633, 0.1531, 0.12245, 0.0918, 0.051}

// Blur runs one separable pass from src into dst. step is the texel distance
// between taps.
func Blur(src, dst *RenderTarget, step float64, horizontal bool) {
	for y := range src.Height {
		for x := range src.Width {
			var sum float64
			for k, w := range gaussian9 {
				off := float64(k-4) * step
				if horizontal {
					sum += w * src.sample(float64(x)+off, float64(y))
				} else {
					sum += w * src.sample(float64(x), float64(y)+off)
				}
			}
			dst.Alpha[y*dst.Width+x] = sum
		}
	}
}

// BlurPingPong blurs a horizontally into b then vertically back into a.
func BlurPingPong(a, b *RenderTarget, step float64) {
	if step <= 0 {
		return
	}
	Blur(a, b, step, true)
	Blur(b, a, step, false)
}

// ToTexture writes the target into tex as tint-colored pixels whose alpha is
// coverage * opacity. tex is reallocated if its size differs.
func (t *RenderTarget) ToTexture(tex *Texture, tint Color, opacity float64) *Texture {
	if tex == nil || tex.Width != t.Width || tex.Height != t.Height {
		tex = NewTexture(t.Width, t.Height)
	}
	tex.WrapU, tex.WrapV = WrapClamp, WrapClamp
	tex.FilterMode = FilterBilinear
	for i, a := range t.Alpha {
		tex.Pixels[i] = Color{R: tint.R, G: tint.G, B: tint.B, A: uint8(clamp01(a*opacity) * 255)}
	}
	return tex
}
