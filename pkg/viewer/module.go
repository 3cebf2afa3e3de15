package viewer

import (
	"math"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/taigrr/plinth/pkg/math3d"
	"github.com/taigrr/plinth/pkg/models"
	"github.com/taigrr/plinth/pkg/render"
)

// Module is one placed model. Its transform is a ground-plane position
// plus a rotation about +Y.
type Module struct {
	ID       string
	URL      string
	Model    *models.Model
	Position math3d.Vec3
	Rotation float64 // radians about +Y

	collider *Collider
	outlined bool
	parts    []partView
}

// partView caches the render inputs derived from one model part.
type partView struct {
	mesh     *models.Mesh
	material render.Material
}

func newModule(url string, m *models.Model) *Module {
	mod := &Module{
		ID:    uuid.NewString(),
		URL:   url,
		Model: m,
	}
	textures := make(map[any]*render.Texture)
	for _, p := range m.Parts {
		mod.parts = append(mod.parts, partView{mesh: p, material: partMaterial(p.Material, textures)})
	}
	return mod
}

// partMaterial converts a decoded material to a render material. Textures
// shared between parts are converted once.
func partMaterial(mat models.Material, cache map[any]*render.Texture) render.Material {
	c := render.Color{
		R: render.LinearToSRGB(mat.BaseColor[0]),
		G: render.LinearToSRGB(mat.BaseColor[1]),
		B: render.LinearToSRGB(mat.BaseColor[2]),
		A: uint8(math3d.Clamp(mat.BaseColor[3], 0, 1)*255 + 0.5),
	}
	out := render.Material{Color: c, State: render.OpaqueState()}
	if mat.HasTexture && mat.BaseMap != nil {
		tex, ok := cache[mat.BaseMap]
		if !ok {
			tex = render.TextureFromImage(mat.BaseMap)
			cache[mat.BaseMap] = tex
		}
		out.Texture = tex
	}
	return out
}

// Matrix returns the module's world transform.
func (m *Module) Matrix() math3d.Mat4 {
	return math3d.Placement(m.Position, m.Rotation)
}

// LocalBounds returns the union of the part bounds in model space.
func (m *Module) LocalBounds() math3d.Box3 {
	return m.Model.Bounds
}

// WorldBounds returns the axis-aligned world box of the module's geometry,
// excluding helper meshes.
func (m *Module) WorldBounds() math3d.Box3 {
	return m.boundsAt(m.Position)
}

// boundsAt is WorldBounds with the module moved to pos.
func (m *Module) boundsAt(pos math3d.Vec3) math3d.Box3 {
	mat := math3d.Placement(pos, m.Rotation)
	out := math3d.EmptyBox()
	for _, p := range m.Model.Parts {
		out = out.Union(p.Bounds.Transform(mat))
	}
	return out
}

// RotationDeg returns the rotation normalized to (-180, 180].
func (m *Module) RotationDeg() float64 {
	d := math.Mod(math3d.RadToDeg(m.Rotation), 360)
	switch {
	case d > 180:
		d -= 360
	case d <= -180:
		d += 360
	}
	return d
}

// SourceID derives the export identifier from the source URL or path: the
// last path segment without its extension.
func (m *Module) SourceID() string {
	if m.URL == "" {
		return m.Model.Name
	}
	return SourceID(m.URL)
}

// SourceID returns the last path segment of u without its extension.
// Query strings and fragments are ignored.
func SourceID(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	u = strings.TrimRight(u, "/")
	last := path.Base(strings.ReplaceAll(u, "\\", "/"))
	if dot := strings.LastIndex(last, "."); dot > 0 {
		return last[:dot]
	}
	return last
}

// hasPart reports whether any part is called name.
func (m *Module) hasPart(name string) bool {
	for _, p := range m.Model.Parts {
		if p.Name == name {
			return true
		}
	}
	return m.Model.Name == name
}
