package render

import (
	"math"

	"github.com/taigrr/plinth/pkg/math3d"
)

// Tag classifies scene items so passes can include or exclude them.
type Tag uint32

const (
	TagModule Tag = 1 << iota
	TagCollider
	TagOutline
	TagShadowPlane
	TagGround
	TagOverlay
)

// HelperTags are items that exist for interaction or annotation and must
// never contribute to the contact-shadow depth.
const HelperTags = TagCollider | TagOutline | TagShadowPlane | TagGround | TagOverlay

// Light is a single directional key light plus an ambient term.
type Light struct {
	Direction math3d.Vec3 // toward the light
	Ambient   float64
	Diffuse   float64
	Tint      [3]float64 // linear environment color multiplier
}

// DefaultLight matches the 30% ambient + 70% diffuse split used for
// untextured geometry.
func DefaultLight() Light {
	return Light{
		Direction: math3d.V3(0.4, 1, 0.6).Normalize(),
		Ambient:   0.3,
		Diffuse:   0.7,
		Tint:      [3]float64{1, 1, 1},
	}
}

// Intensity returns the lambert intensity for a world normal.
func (l Light) Intensity(n math3d.Vec3) float64 {
	return l.Ambient + l.Diffuse*math.Max(0, n.Dot(l.Direction))
}

// Material describes how an item is shaded.
type Material struct {
	Color   Color // base color; A < 255 implies blending
	Texture *Texture
	Unlit   bool
	State   RasterState
}

// Transparent reports whether the material is drawn in the blended phase.
func (m Material) Transparent() bool {
	return m.State.Blend || m.Color.A < 255
}

// Item is one drawable entry in a scene list.
type Item struct {
	Name      string
	Mesh      MeshRenderer
	Transform math3d.Mat4
	Tags      Tag
	Material  Material
	Hidden    bool
}

// Override replaces item materials for a whole pass.
type Override int

const (
	OverrideNone Override = iota
	OverrideDepth
)

// Pass renders a list of items from one camera. Items carrying any of the
// Exclude tags are skipped, which is how helper geometry is kept out of the
// shadow depth pass.
type Pass struct {
	Name     string
	Camera   *Camera
	Exclude  Tag
	Override Override
	Light    Light
	Tone     ToneMapping
}

// PassStats reports what a pass did.
type PassStats struct {
	Drawn    int
	Excluded int
}

// Execute draws items into the rasterizer's target. Opaque items are drawn
// first, then transparent items in list order.
func (p Pass) Execute(r *Rasterizer, items []Item) PassStats {
	var stats PassStats
	if p.Camera != nil {
		r.SetCamera(p.Camera)
	}

	var deferred []int
	for i := range items {
		it := &items[i]
		if it.Hidden || it.Mesh == nil {
			continue
		}
		if it.Tags&p.Exclude != 0 {
			stats.Excluded++
			continue
		}
		if p.Override == OverrideDepth {
			r.DrawMeshDepth(it.Mesh, it.Transform)
			stats.Drawn++
			continue
		}
		if it.Material.Transparent() {
			deferred = append(deferred, i)
			continue
		}
		p.draw(r, it)
		stats.Drawn++
	}

	for _, i := range deferred {
		p.draw(r, &items[i])
		stats.Drawn++
	}
	return stats
}

func (p Pass) draw(r *Rasterizer, it *Item) {
	mat := it.Material
	st := mat.State
	st.Texture = mat.Texture
	if mat.Color.A < 255 {
		st.Blend = true
	}
	r.DrawMesh(it.Mesh, it.Transform, p.shader(mat), st)
}

// shader builds the per-vertex color function for a material.
func (p Pass) shader(mat Material) VertexShader {
	base := mat.Color
	if mat.Unlit {
		return func(_, _ math3d.Vec3) Color { return base }
	}
	lin := [3]float64{SRGBToLinear(base.R), SRGBToLinear(base.G), SRGBToLinear(base.B)}
	light := p.Light
	tone := p.Tone
	return func(_, n math3d.Vec3) Color {
		k := light.Intensity(n)
		c := tone.Map([3]float64{
			lin[0] * k * light.Tint[0],
			lin[1] * k * light.Tint[1],
			lin[2] * k * light.Tint[2],
		})
		c.A = base.A
		return c
	}
}
