package viewer

import (
	"slices"

	"github.com/taigrr/plinth/pkg/errors"
	"github.com/taigrr/plinth/pkg/math3d"
	"github.com/taigrr/plinth/pkg/render"
)

// outlineState draws back faces only, so an inflated copy shows just its
// silhouette around the original.
var outlineState = render.RasterState{Cull: render.CullFront, DepthTest: true, DepthWrite: true}

// outlineItems builds one inflated back-face shell per part of m. Each
// shell is scaled about its own part center.
func (v *Viewer) outlineItems(m *Module, world math3d.Mat4) []render.Item {
	s := 1 + v.cfg.Outline.Thickness
	mat := render.Material{Color: v.pal.outline, Unlit: true, State: outlineState}
	out := make([]render.Item, 0, len(m.parts))
	for _, p := range m.parts {
		c := p.mesh.Bounds.Center()
		inflate := math3d.Translate(c).Mul(math3d.ScaleUniform(s)).Mul(math3d.Translate(c.Negate()))
		out = append(out, render.Item{
			Name:      p.mesh.Name + "/outline",
			Mesh:      p.mesh,
			Transform: world.Mul(inflate),
			Tags:      render.TagOutline,
			Material:  mat,
		})
	}
	return out
}

// selectModule makes m the single selection. nil clears it.
func (v *Viewer) selectModule(m *Module) {
	if v.selected == m {
		return
	}
	v.selected = m
	v.forceFrames += 2
}

// placed returns the modules the user arranges. The view-only model is
// rendered and collided with but never listed, selected, or exported.
func (v *Viewer) placed() []*Module {
	if v.model == nil {
		return v.modules
	}
	out := make([]*Module, 0, len(v.modules))
	for _, m := range v.modules {
		if m != v.model {
			out = append(out, m)
		}
	}
	return out
}

func (v *Viewer) moduleByID(id string) *Module {
	for _, m := range v.placed() {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Select selects the module with the given id. An empty id clears the
// selection.
func (v *Viewer) Select(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.alive(); err != nil {
		return err
	}
	if id == "" {
		v.selectModule(nil)
		return nil
	}
	m := v.moduleByID(id)
	if m == nil {
		return errors.New(errors.ErrCodeNotFound, "no module %q", id)
	}
	v.selectModule(m)
	return nil
}

// Selected returns the id of the selected module.
func (v *Viewer) Selected() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.selected == nil {
		return "", false
	}
	return v.selected.ID, true
}

// SetOutlined outlines every module that has a part with one of the given
// names, or whose id is one of them. It replaces the previous set; no
// arguments clears it.
func (v *Viewer) SetOutlined(namesOrIDs ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range v.modules {
		m.outlined = slices.ContainsFunc(namesOrIDs, func(s string) bool {
			return s == m.ID || m.hasPart(s)
		})
	}
	v.forceFrames += 2
}

// Modules lists the placed modules in insertion order.
func (v *Viewer) Modules() []ModuleInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	ms := v.placed()
	out := make([]ModuleInfo, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.info(m == v.selected))
	}
	return out
}

// Model describes the view-only model loaded by LoadModel, if any.
func (v *Viewer) Model() (ModuleInfo, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.model == nil {
		return ModuleInfo{}, false
	}
	return v.model.info(false), true
}

// ModuleInfo is a read-only view of a placed module.
type ModuleInfo struct {
	ID          string      `json:"id"`
	URL         string      `json:"url,omitempty"`
	Name        string      `json:"name"`
	Position    math3d.Vec3 `json:"position"`
	RotationDeg float64     `json:"rotationDeg"`
	Bounds      math3d.Box3 `json:"bounds"`
	Selected    bool        `json:"selected"`
}

func (m *Module) info(selected bool) ModuleInfo {
	return ModuleInfo{
		ID:          m.ID,
		URL:         m.URL,
		Name:        m.Model.Name,
		Position:    m.Position,
		RotationDeg: m.RotationDeg(),
		Bounds:      m.WorldBounds(),
		Selected:    selected,
	}
}
