package render

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// LabelStyle controls how text sprites are rasterized.
type LabelStyle struct {
	Padding    image.Point
	Background Color
	Foreground Color
	Scale      int // device pixel ratio of the sprite
}

// DefaultLabelStyle is a dark caption on a warm paper background.
func DefaultLabelStyle() LabelStyle {
	return LabelStyle{
		Padding:    image.Pt(6, 3),
		Background: MustHexColor("#faf8f3"),
		Foreground: MustHexColor("#1f1f1f"),
		Scale:      2,
	}
}

// Label is a text sprite rasterized at Scale times its logical size.
type Label struct {
	Text  string
	Image *image.RGBA
	Scale int
}

// NewLabel rasterizes text with the fixed 7x13 bitmap face.
func NewLabel(text string, st LabelStyle) *Label {
	face := basicfont.Face7x13
	m := face.Metrics()
	w := font.MeasureString(face, text).Ceil() + 2*st.Padding.X
	h := (m.Ascent+m.Descent).Ceil() + 2*st.Padding.Y

	base := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(base, base.Bounds(), image.NewUniform(st.Background), image.Point{}, xdraw.Src)
	d := font.Drawer{
		Dst:  base,
		Src:  image.NewUniform(st.Foreground),
		Face: face,
		Dot:  fixed.P(st.Padding.X, st.Padding.Y+m.Ascent.Ceil()),
	}
	d.DrawString(text)

	if st.Scale <= 1 {
		return &Label{Text: text, Image: base, Scale: 1}
	}
	hi := image.NewRGBA(image.Rect(0, 0, w*st.Scale, h*st.Scale))
	xdraw.NearestNeighbor.Scale(hi, hi.Bounds(), base, base.Bounds(), xdraw.Src, nil)
	return &Label{Text: text, Image: hi, Scale: st.Scale}
}

// Size returns the logical (1x) size of the label.
func (l *Label) Size() (w, h int) {
	b := l.Image.Bounds()
	return b.Dx() / l.Scale, b.Dy() / l.Scale
}

// DrawLabel blends l centered on (cx, cy), with each sprite pixel covering
// pxScale framebuffer pixels.
func (fb *Framebuffer) DrawLabel(l *Label, cx, cy, pxScale float64) {
	src := l.Image.Bounds()
	w := int(math.Round(float64(src.Dx()) * pxScale))
	h := int(math.Round(float64(src.Dy()) * pxScale))
	if w <= 0 || h <= 0 {
		return
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), l.Image, src, xdraw.Src, nil)
	fb.DrawImage(dst, int(math.Round(cx))-w/2, int(math.Round(cy))-h/2)
}
