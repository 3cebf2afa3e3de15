package render

import (
	"image"
	"image/color"

	uv "github.com/charmbracelet/ultraviolet"
)

// Draw converts the framebuffer to terminal cells and draws them on the
// screen. The framebuffer height should be 2x the terminal height.
func (fb *Framebuffer) Draw(scr uv.Screen, area uv.Rectangle) {
	// Each terminal row represents 2 framebuffer rows
	// We use ▀ (upper half block) with fg=top color and bg=bottom color

	for row := area.Min.Y; row < area.Max.Y; row++ {
		topY := (row - area.Min.Y) * 2
		botY := topY + 1

		for col := area.Min.X; col < area.Max.X && col-area.Min.X < fb.Width; col++ {
			topColor := fb.GetPixel(col-area.Min.X, topY)
			botColor := fb.GetPixel(col-area.Min.X, botY)

			cell := &uv.Cell{
				Content: "▀",
				Width:   1,
				Style: uv.Style{
					Fg: rgbaToColor(topColor),
					Bg: rgbaToColor(botColor),
				},
			}
			scr.SetCell(col, row, cell)
		}
	}
}

// rgbaToColor converts color.RGBA to Go's color.Color interface.
func rgbaToColor(c color.RGBA) color.Color {
	if c.A == 0 {
		return nil // Transparent = no color
	}
	return c
}

// Display is a screen that can flush its pending cells, such as
// *uv.Terminal.
type Display interface {
	uv.Screen
	Display() error
}

// TerminalRenderer draws framebuffers as half-block cells. Each cell
// carries two vertically stacked pixels.
type TerminalRenderer struct {
	scr           Display
	width, height int // cells
}

// NewTerminalRenderer creates a renderer for a width x height cell area.
func NewTerminalRenderer(scr Display, width, height int) *TerminalRenderer {
	return &TerminalRenderer{scr: scr, width: max(width, 1), height: max(height, 1)}
}

// FramebufferSize returns the pixel size that fills the cell area.
func (r *TerminalRenderer) FramebufferSize() (width, height int) {
	return r.width, r.height * 2
}

// Render draws fb into the top-left of the cell area.
func (r *TerminalRenderer) Render(fb *Framebuffer) {
	fb.Draw(r.scr, image.Rect(0, 0, r.width, r.height))
}

// Flush writes pending cells to the terminal.
func (r *TerminalRenderer) Flush() error {
	return r.scr.Display()
}
