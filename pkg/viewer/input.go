package viewer

import (
	"math"
)

// Button identifies the pointer button of a press.
type Button int

const (
	ButtonLeft Button = iota
	ButtonMiddle
	ButtonRight
)

type gestureKind int

const (
	gestureNone gestureKind = iota
	gestureOrbit
	gesturePan
	gestureDolly
	gestureDrag
)

// gesture tracks the pointer between press and release.
type gesture struct {
	kind         gestureKind
	lastX, lastY float64
}

// dollyPerPixel converts vertical middle-drag motion into dolly steps.
const dollyPerPixel = 0.1

// PointerDown handles a press at viewport pixel (x, y). A left press on a
// module selects it and starts a drag; on empty space it clears the
// selection and orbits. Right presses pan and middle presses dolly.
func (v *Viewer) PointerDown(x, y float64, b Button) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed || v.drag != nil {
		return
	}
	v.gesture = gesture{lastX: x, lastY: y}

	switch b {
	case ButtonRight:
		v.gesture.kind = gesturePan
		return
	case ButtonMiddle:
		v.gesture.kind = gestureDolly
		return
	}

	ray := v.screenRay(x, y)
	m, point, hit := v.pick(ray)
	if hit {
		p := point
		v.publish(Event{Kind: EventPick, ModuleID: m.ID, URL: m.URL, Point: &p})
	}

	// The view-only model is never selected, and a click that misses
	// everything brings the pan back home while it is loaded.
	if !hit {
		v.selectModule(nil)
		if v.model != nil {
			v.resetPan()
		}
		v.gesture.kind = gestureOrbit
		return
	}
	if m == v.model {
		v.selectModule(nil)
		v.gesture.kind = gestureOrbit
		return
	}
	v.selectModule(m)
	ground, ok := ray.IntersectPlaneY(0)
	if !ok {
		return
	}
	v.beginDrag(m, ground)
	v.gesture.kind = gestureDrag
}

// PointerMove handles motion to (x, y) while a button is held.
func (v *Viewer) PointerMove(x, y float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	dx, dy := x-v.gesture.lastX, y-v.gesture.lastY
	v.gesture.lastX, v.gesture.lastY = x, y
	h := float64(v.fb.Height)

	switch v.gesture.kind {
	case gestureDrag:
		if v.drag != nil {
			v.updateDrag(x, y)
		}
	case gestureOrbit:
		c := v.controls
		c.Rotate(-2*math.Pi*c.AzimuthSpeed*dx/h, -2*math.Pi*c.PolarSpeed*dy/h)
	case gesturePan:
		// World units per pixel at the target distance.
		wpp := 2 * v.controls.Spherical().Radius * math.Tan(v.camera.FOV/2) / h
		v.controls.Pan(v.camera.Right(), v.camera.Up(), -dx*wpp, dy*wpp)
	case gestureDolly:
		v.controls.Dolly(-dy * dollyPerPixel)
	}
}

// PointerUp ends the current gesture. Ending a drag applies edge snap.
func (v *Viewer) PointerUp() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	if v.drag != nil {
		v.endDrag()
	}
	v.gesture = gesture{}
}

// Wheel dollies the camera. Positive steps move closer.
func (v *Viewer) Wheel(steps float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	v.controls.Dolly(steps)
}

// Orbit rotates the camera goal by degrees, for keyboard hosts.
func (v *Viewer) Orbit(dThetaDeg, dPhiDeg float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	v.controls.Rotate(dThetaDeg*math.Pi/180, dPhiDeg*math.Pi/180)
}
