package viewer

import (
	"math"

	"github.com/taigrr/plinth/pkg/math3d"
)

// ToolbarState reports which toolbar actions are available.
type ToolbarState struct {
	RotateLeft       bool   `json:"rotateLeft"`
	RotateRight      bool   `json:"rotateRight"`
	Delete           bool   `json:"delete"`
	Center           bool   `json:"center"`
	Dimensions       bool   `json:"dimensions"`
	DimensionsActive bool   `json:"dimensionsActive"`
	Selected         string `json:"selected,omitempty"`
}

// Toolbar returns the current toolbar state. Rotate and delete need a
// selection and no drag in progress; center and dimensions are always
// available.
func (v *Viewer) Toolbar() ToolbarState {
	v.mu.Lock()
	defer v.mu.Unlock()
	sel := v.selected != nil
	edit := sel && v.drag == nil
	st := ToolbarState{
		RotateLeft:       edit,
		RotateRight:      edit,
		Delete:           edit,
		Center:           true,
		Dimensions:       true,
		DimensionsActive: v.cfg.Dimensions.Enabled,
	}
	if sel {
		st.Selected = v.selected.ID
	}
	return st
}

// quarterTurn quantizes currDeg to the nearest 90 and steps it by delta.
// Stepping past ±270 wraps to 0.
func quarterTurn(currDeg, delta float64) float64 {
	q := math.Round(currDeg/90) * 90
	switch {
	case q == -270 && delta < 0, q == 270 && delta > 0:
		return 0
	}
	q += delta
	if q >= 360 || q <= -360 {
		return 0
	}
	return q
}

// RotateSelected turns the selection by deltaDeg (normally ±90) about +Y.
// It does nothing while the selection is being dragged.
func (v *Viewer) RotateSelected(deltaDeg float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.alive(); err != nil {
		return err
	}
	if v.drag != nil {
		return nil
	}
	m := v.selected
	if m == nil {
		return errNoSelection()
	}
	m.Rotation = math3d.DegToRad(quarterTurn(math3d.RadToDeg(m.Rotation), deltaDeg))
	v.ensureCollider(m)
	v.sceneChanged(true)
	return nil
}

// DeleteSelected removes the selection and selects the remaining module
// whose center is nearest to it. It does nothing during a drag.
func (v *Viewer) DeleteSelected() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.alive(); err != nil {
		return err
	}
	if v.drag != nil {
		return nil
	}
	m := v.selected
	if m == nil {
		return errNoSelection()
	}
	ref := m.WorldBounds().Center()
	v.removeModule(m)

	var nearest *Module
	best := math.Inf(1)
	for _, o := range v.placed() {
		b := o.WorldBounds()
		if b.IsEmpty() {
			continue
		}
		if d := b.Center().Distance(ref); d < best {
			best, nearest = d, o
		}
	}
	v.selectModule(nearest)
	if nearest != nil {
		v.ensureCollider(nearest)
	}
	v.sceneChanged(true)
	if len(v.modules) == 0 {
		v.showReady()
	}
	return nil
}

// removeModule drops m from the scene and clears references to it.
func (v *Viewer) removeModule(m *Module) {
	for i, o := range v.modules {
		if o == m {
			v.modules = append(v.modules[:i], v.modules[i+1:]...)
			break
		}
	}
	if v.selected == m {
		v.selected = nil
	}
	if v.model == m {
		v.model = nil
	}
	if v.drag != nil && v.drag.module == m {
		v.drag = nil
		v.controls.Enabled = true
		v.dims.suspended = false
	}
	m.collider = nil
}

// ToggleDimensions flips the dimension overlay and returns the new state.
func (v *Viewer) ToggleDimensions() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cfg.Dimensions.Enabled = !v.cfg.Dimensions.Enabled
	v.dims.rebuild(v.groupBounds(), v.cfg.Dimensions, v.pal.text)
	v.forceFrames += 2
	return v.cfg.Dimensions.Enabled
}
