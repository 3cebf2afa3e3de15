package viewer

import (
	"math"

	"github.com/taigrr/plinth/pkg/math3d"
)

// dragSession lives between pointer-down on a module and pointer-up. All
// boxes are frozen at the start so collision queries stay stable for the
// whole gesture.
type dragSession struct {
	module *Module
	offset math3d.Vec3 // module position minus ground hit at grab time
	origin math3d.Vec3 // module position at grab time
	self   math3d.Box3 // module world box at origin
	others []math3d.Box3
	// overlapping holds siblings already inside m at grab time. They do not
	// block the drag but a snap may never end inside one.
	overlapping []math3d.Box3

	buffer     float64
	iterations int
}

// newDragSession freezes m and its siblings. Siblings already overlapping
// m at grab time are not obstacles, so the module can be pulled apart.
func newDragSession(m *Module, siblings []*Module, cfg DragConfig) *dragSession {
	s := &dragSession{
		module:     m,
		origin:     m.Position,
		self:       m.WorldBounds(),
		buffer:     cfg.CollisionBuffer,
		iterations: cfg.Iterations,
	}
	shrunk := s.self.ExpandScalar(-s.buffer)
	for _, o := range siblings {
		if o == m {
			continue
		}
		ob := o.WorldBounds()
		switch {
		case ob.IsEmpty():
		case shrunk.Intersects(ob):
			s.overlapping = append(s.overlapping, ob)
		default:
			s.others = append(s.others, ob)
		}
	}
	return s
}

// boxAt is the frozen self box moved to pos.
func (s *dragSession) boxAt(pos math3d.Vec3) math3d.Box3 {
	return s.self.Translate(pos.Sub(s.origin))
}

func (s *dragSession) hits(b math3d.Box3) bool {
	b = b.ExpandScalar(-s.buffer)
	for _, o := range s.others {
		if b.Intersects(o) {
			return true
		}
	}
	return false
}

// collides reports whether the module at pos overlaps a sibling by more
// than the collision buffer.
func (s *dragSession) collides(pos math3d.Vec3) bool {
	return s.hits(s.boxAt(pos))
}

// sweepCollides tests the box swept from a to b. A move that would jump
// over a sibling in one step collides.
func (s *dragSession) sweepCollides(a, b math3d.Vec3) bool {
	return s.hits(s.boxAt(a).Union(s.boxAt(b)))
}

// resolve returns where the module ends up when moved from last toward
// proposed. Free moves are taken as is. Otherwise X is resolved first and
// then Z from the X result, so the module slides along what blocks it.
func (s *dragSession) resolve(last, proposed math3d.Vec3) math3d.Vec3 {
	proposed.Y = last.Y
	if !s.sweepCollides(last, proposed) {
		return proposed
	}
	x := s.resolveAxis(last, math3d.V3(proposed.X, last.Y, last.Z))
	return s.resolveAxis(x, math3d.V3(x.X, last.Y, proposed.Z))
}

// resolveAxis bisects the segment from -> to for the farthest point whose
// sweep from "from" is collision free. from must itself be free or it is
// returned unchanged. The result is within 2^-iterations of the segment
// length from the true contact point and never past it.
func (s *dragSession) resolveAxis(from, to math3d.Vec3) math3d.Vec3 {
	if from == to || !s.sweepCollides(from, to) {
		return to
	}
	if s.collides(from) {
		return from
	}
	lo, hi := 0.0, 1.0
	for range s.iterations {
		mid := (lo + hi) / 2
		if s.sweepCollides(from, from.Lerp(to, mid)) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return from.Lerp(to, lo)
}

// edgeSnap looks for a sibling face within tol of box on X or Z while the
// boxes overlap on the other axis. It returns the smallest correction that
// makes the faces flush, with the perpendicular centers aligned too when
// they are within tol.
func edgeSnap(box math3d.Box3, others []math3d.Box3, tol float64) (math3d.Vec3, bool) {
	var best math3d.Vec3
	found := false
	consider := func(dx, dz float64) {
		if !found || math.Abs(dx)+math.Abs(dz) < math.Abs(best.X)+math.Abs(best.Z) {
			best = math3d.V3(dx, 0, dz)
			found = true
		}
	}
	align := func(d float64) float64 {
		if math.Abs(d) <= tol {
			return d
		}
		return 0
	}

	c := box.Center()
	for _, ob := range others {
		if ob.IsEmpty() {
			continue
		}
		oc := ob.Center()
		overlapZ := box.Max.Z >= ob.Min.Z && box.Min.Z <= ob.Max.Z
		overlapX := box.Max.X >= ob.Min.X && box.Min.X <= ob.Max.X
		if overlapZ {
			for _, dx := range [2]float64{ob.Max.X - box.Min.X, ob.Min.X - box.Max.X} {
				if math.Abs(dx) <= tol {
					consider(dx, align(oc.Z-c.Z))
				}
			}
		}
		if overlapX {
			for _, dz := range [2]float64{ob.Max.Z - box.Min.Z, ob.Min.Z - box.Max.Z} {
				if math.Abs(dz) <= tol {
					consider(align(oc.X-c.X), dz)
				}
			}
		}
	}
	return best, found
}

// snap applies edgeSnap at pos if the snapped box is clear of every
// sibling, including those that overlapped at grab time. It runs once
// collision resolution has settled, so the buffer never competes with the
// snap tolerance.
func (s *dragSession) snap(pos math3d.Vec3, tol float64) math3d.Vec3 {
	d, ok := edgeSnap(s.boxAt(pos), s.others, tol)
	if !ok {
		return pos
	}
	target := pos.Add(d)
	if s.collides(target) {
		return pos
	}
	shrunk := s.boxAt(target).ExpandScalar(-s.buffer)
	for _, o := range s.overlapping {
		if shrunk.Intersects(o) {
			return pos
		}
	}
	return target
}

// beginDrag starts a drag of m grabbed at ground point hit.
func (v *Viewer) beginDrag(m *Module, hit math3d.Vec3) {
	v.drag = newDragSession(m, v.modules, v.cfg.Drag)
	v.drag.offset = m.Position.Sub(hit)
	v.dims.suspended = true
	v.controls.Enabled = false
	v.forceFrames++
}

// updateDrag moves the dragged module toward the ground point under (x, y).
func (v *Viewer) updateDrag(x, y float64) {
	s := v.drag
	hit, ok := v.screenRay(x, y).IntersectPlaneY(0)
	if !ok {
		return
	}
	m := s.module
	pos := s.resolve(m.Position, hit.Add(s.offset))
	if pos == m.Position {
		return
	}
	m.Position = pos
	v.ensureCollider(m)
	v.shadow.updateDuringDrag(v.groupBounds())
	v.forceFrames++
}

// endDrag snaps the module flush to a neighbor if one is close, then runs
// the full structural update that was skipped during the drag.
func (v *Viewer) endDrag() {
	s := v.drag
	v.drag = nil
	v.controls.Enabled = true
	v.dims.suspended = false

	m := s.module
	m.Position = s.snap(m.Position, v.cfg.Drag.EdgeSnapTolerance)
	v.ensureCollider(m)
	v.sceneChanged(true)
}

// NudgeSelected moves the selection by whole grid steps along X and Z,
// resolving collisions the way a drag does.
func (v *Viewer) NudgeSelected(stepsX, stepsZ int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.alive(); err != nil {
		return err
	}
	m := v.selected
	if m == nil {
		return errNoSelection()
	}
	if v.drag != nil {
		return nil
	}
	g := v.cfg.Drag.GridSize
	s := newDragSession(m, v.modules, v.cfg.Drag)
	proposed := m.Position.Add(math3d.V3(float64(stepsX)*g, 0, float64(stepsZ)*g))
	pos := s.resolve(m.Position, proposed)
	if pos == m.Position {
		return nil
	}
	m.Position = pos
	v.ensureCollider(m)
	v.sceneChanged(true)
	return nil
}
