package viewer

import (
	"math"

	"github.com/taigrr/plinth/pkg/math3d"
)

// fitDistance is the camera distance at which a sphere of radius r fills
// frac of the viewport on both axes. The larger axis distance wins so the
// sphere is never clipped.
func fitDistance(r, vfov, hfov, frac float64) float64 {
	dy := r / (frac * math.Sin(vfov/2))
	dx := r / (frac * math.Sin(hfov/2))
	return math.Max(dx, dy)
}

func (v *Viewer) fit(r float64) float64 {
	return fitDistance(r, v.camera.FOV, v.camera.HorizontalFOV(), v.cfg.InitialScreenFraction)
}

// updateDistanceLimits keeps the camera just outside the bounding sphere
// and stops it from backing off until the sphere drops below
// MinScreenFraction of the viewport width.
func (v *Viewer) updateDistanceLimits() {
	r := v.boundingRadius
	if r <= 0 {
		return
	}
	minD := math.Max(0.001, r*1.02)
	maxD := math.Max(minD*2, r/(v.cfg.MinScreenFraction*math.Tan(v.camera.HorizontalFOV()/2)))
	v.controls.SetDistanceLimits(minD, maxD)
}

// frameBox moves the camera goal so box fits, keeping the goal orbit
// angles. Calling it twice without a scene change yields the same goal.
func (v *Viewer) frameBox(box math3d.Box3, animate bool) {
	center, r := box.BoundingSphere()
	v.boundingRadius = r
	goal := v.controls.GoalSpherical()
	goal.Radius = v.fit(r)
	v.controls.SetOrbit(center, goal, animate)
	v.updateDistanceLimits()
	v.forceFrames += 2
}

// refit reframes after a structural change unless both the required
// distance change and the center shift are below their thresholds.
func (v *Viewer) refit(box math3d.Box3) {
	if box.IsEmpty() || box.MaxDim() == 0 {
		return
	}
	center, r := box.BoundingSphere()
	v.boundingRadius = r
	if !v.controls.Boundary.IsEmpty() {
		grown := box.ExpandScalar(box.MaxDim() * v.cfg.BoundaryExpandFactor)
		v.controls.Boundary = v.controls.Boundary.Union(grown)
	}

	goal := v.controls.GoalSpherical()
	curr := math.Max(0.0001, goal.Radius)
	deltaFrac := math.Abs(v.fit(r)-curr) / curr
	shift := center.Distance(v.controls.GoalTarget())
	rc := v.cfg.CameraRefit
	if deltaFrac < rc.DeltaRadiusFrac && shift < math.Max(rc.MinCenterShift, r*rc.CenterShiftFrac) {
		v.updateDistanceLimits()
		v.forceFrames++
		return
	}
	v.frameBox(box, true)
}

// frameInitial places the camera for the first content in the scene: the
// default orbit at fit distance, clip planes scaled to the content, a pan
// boundary around it and a home target for background clicks.
func (v *Viewer) frameInitial(box math3d.Box3) {
	if box.IsEmpty() {
		return
	}
	size := box.Size()
	center, r := box.BoundingSphere()
	maxDim := box.MaxDim()

	vfov, hfov := v.camera.FOV, v.camera.HorizontalFOV()
	dist := v.fit(r)
	if math.IsNaN(dist) || math.IsInf(dist, 0) || dist <= 0 {
		dist = math.Max(size.Y/2/math.Tan(vfov/2), size.X/2/math.Tan(hfov/2)) * v.cfg.FramePadding
	}
	orbit := math3d.Spherical{
		Radius: dist,
		Phi:    math3d.DegToRad(v.cfg.DefaultOrbit.PhiDeg),
		Theta:  math3d.DegToRad(v.cfg.DefaultOrbit.ThetaDeg),
	}
	v.controls.Boundary = math3d.EmptyBox()
	v.controls.SetOrbit(center, orbit, false)
	v.homeTarget = v.controls.GoalTarget()
	v.camera.SetClipPlanes(math.Max(0.01, maxDim/100), math.Max(10, maxDim*100))
	v.controls.Boundary = box.ExpandScalar(maxDim * v.cfg.BoundaryExpandFactor)

	v.boundingRadius = r
	v.updateDistanceLimits()
	v.controls.Apply(v.camera)
	v.forceFrames += 3
}

// FrameAll fits every module in view from the current viewing angles.
func (v *Viewer) FrameAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	box := v.groupBounds()
	if box.IsEmpty() {
		return
	}
	v.frameBox(box, true)
	v.dims.rebuild(box, v.cfg.Dimensions, v.pal.text)
}

// resetPan moves the camera and target by the same delta so the target is
// back at home. Orbit angles and distance are kept.
func (v *Viewer) resetPan() {
	v.controls.SetOrbit(v.homeTarget, v.controls.GoalSpherical(), true)
}
