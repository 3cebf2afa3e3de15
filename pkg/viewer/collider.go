package viewer

import (
	"math"

	"github.com/taigrr/plinth/pkg/math3d"
	"github.com/taigrr/plinth/pkg/models"
)

// minColliderSize keeps flat modules pickable.
const minColliderSize = 1e-4

// Collider is the invisible proxy box used for picking. Local is in the
// module's own frame; World is its axis-aligned world box under the
// module's current transform.
type Collider struct {
	Module *Module
	Local  math3d.Box3
	World  math3d.Box3
	mesh   *models.Mesh
}

// ensureCollider creates or resizes the module's collider from its part
// bounds. It must run after every transform change.
func (v *Viewer) ensureCollider(m *Module) {
	local := m.LocalBounds()
	if local.IsEmpty() || !local.Size().IsFinite() {
		return
	}
	c := local.Center()
	size := local.Size().Max(math3d.V3(minColliderSize, minColliderSize, minColliderSize))
	local = math3d.BoxFromCenterSize(c, size)

	col := m.collider
	if col == nil {
		col = &Collider{Module: m}
		m.collider = col
	}
	if col.mesh == nil || col.Local != local {
		col.mesh = models.NewBox("collider", local)
	}
	col.Local = local
	col.World = local.Transform(m.Matrix())
}

// pick casts ray against the module colliders and returns the nearest hit.
// Only colliders are tested, never the full geometry.
func (v *Viewer) pick(ray math3d.Ray) (*Module, math3d.Vec3, bool) {
	var best *Module
	bestT := math.Inf(1)
	for _, m := range v.modules {
		col := m.collider
		if col == nil {
			continue
		}
		// The collider is oriented with the module, so test in local space.
		local := ray.Transform(m.Matrix().Inverse())
		t, hit := local.IntersectBox(col.Local)
		if hit && t < bestT {
			best, bestT = m, t
		}
	}
	if best == nil {
		return nil, math3d.Vec3{}, false
	}
	return best, ray.At(bestT), true
}

// screenRay converts viewport pixel coordinates into a world ray.
func (v *Viewer) screenRay(x, y float64) math3d.Ray {
	return v.camera.ScreenToRay(x, y, v.fb.Width, v.fb.Height)
}
