package main

import (
	"fmt"
	"image/color"
	"time"

	uv "github.com/charmbracelet/ultraviolet"

	"github.com/taigrr/plinth/pkg/viewer"
)

var (
	hudBg     = color.RGBA{0, 0, 0, 255}
	hudText   = color.RGBA{230, 230, 230, 255}
	hudFPS    = color.RGBA{90, 220, 120, 255}
	hudInfo   = color.RGBA{90, 210, 230, 255}
	hudWarn   = color.RGBA{240, 210, 90, 255}
	hudError  = color.RGBA{240, 90, 90, 255}
	hudDimmed = color.RGBA{140, 140, 140, 255}
)

// HUD draws status rows over the picture: FPS, mount and module count on
// top, toolbar and overlay state at the bottom.
type HUD struct {
	mount     string
	fps       float64
	fpsFrames int
	fpsTime   time.Time
	show      bool
}

// NewHUD creates a HUD for mount.
func NewHUD(mount string) *HUD {
	return &HUD{mount: mount, fpsTime: time.Now(), show: true}
}

// UpdateFPS updates the FPS counter (call once per frame)
func (h *HUD) UpdateFPS() {
	h.fpsFrames++
	elapsed := time.Since(h.fpsTime)
	if elapsed >= time.Second {
		h.fps = float64(h.fpsFrames) / elapsed.Seconds()
		h.fpsFrames = 0
		h.fpsTime = time.Now()
	}
}

// hudState is a snapshot of the viewer taken before drawing.
type hudState struct {
	modules int
	toolbar viewer.ToolbarState
	overlay viewer.Overlay
}

// Draw paints the HUD rows. The overlay line is drawn even when the HUD is
// hidden so load errors are never missed.
func (h *HUD) Draw(scr uv.Screen, width, height int, st hudState) {
	if h.show {
		drawText(scr, 0, 0, fmt.Sprintf(" %.0f FPS ", h.fps), hudFPS)
		title := " " + h.mount + " "
		drawText(scr, max((width-len(title))/2, 0), 0, title, hudText)
		count := fmt.Sprintf(" %d modules ", st.modules)
		drawText(scr, max(width-len(count), 0), 0, count, hudInfo)

		tb := st.toolbar
		sel := "none"
		if tb.Selected != "" {
			sel = tb.Selected
			if len(sel) > 8 {
				sel = sel[:8]
			}
		}
		line := fmt.Sprintf(" sel %s  %s rotate  %s delete  %s dims  c center  ? help ",
			sel, check(tb.RotateLeft), check(tb.Delete), check(tb.DimensionsActive))
		drawText(scr, 0, height-1, line, hudDimmed)
	}

	var msg string
	fg := hudWarn
	switch st.overlay.Kind {
	case viewer.OverlayLoading:
		msg = fmt.Sprintf(" %s %d%% ", st.overlay.Message, st.overlay.Progress)
	case viewer.OverlayError:
		msg = " " + st.overlay.Message
		if st.overlay.CanRetry {
			msg += " (r to retry)"
		}
		msg += " "
		fg = hudError
	case viewer.OverlayReady:
		msg = " " + st.overlay.Message + " "
		fg = hudInfo
	default:
		return
	}
	row := height - 2
	if !h.show {
		row = height - 1
	}
	drawText(scr, max((width-len(msg))/2, 0), max(row, 0), msg, fg)
}

func check(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}

// drawText writes ASCII text as cells starting at (x, y).
func drawText(scr uv.Screen, x, y int, s string, fg color.Color) {
	b := scr.Bounds()
	for i, r := range s {
		if x+i >= b.Max.X {
			return
		}
		scr.SetCell(x+i, y, &uv.Cell{
			Content: string(r),
			Width:   1,
			Style:   uv.Style{Fg: fg, Bg: hudBg},
		})
	}
}
