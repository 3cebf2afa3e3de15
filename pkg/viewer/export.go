package viewer

import (
	"context"
	"encoding/json"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/taigrr/plinth/pkg/errors"
	"github.com/taigrr/plinth/pkg/math3d"
)

// Layout is the exported arrangement of a scene.
type Layout struct {
	Modules []LayoutModule `json:"modules" yaml:"modules"`
}

// LayoutModule is one placed module. Rotation is degrees about +Y, always a
// multiple of 90 in [0, 360).
type LayoutModule struct {
	ID       string      `json:"id" yaml:"id"`
	Position math3d.Vec3 `json:"position" yaml:"position"`
	Rotation float64     `json:"rotation" yaml:"rotation"`
}

// SnapRotation90 normalizes deg into [0, 360) and rounds it to the nearest
// multiple of 90.
func SnapRotation90(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	n := math.Mod(math.Mod(deg, 360)+360, 360)
	s := math.Round(n/90) * 90
	if s >= 360 {
		s = 0
	}
	return s
}

// round2 rounds to two decimals and folds negative zero.
func round2(x float64) float64 {
	r := math.Round(x*100) / 100
	if r == 0 {
		return 0
	}
	return r
}

// ExportLayout lists every module in insertion order with its position and
// its rotation snapped to 90 degrees.
func (v *Viewer) ExportLayout() Layout {
	v.mu.Lock()
	defer v.mu.Unlock()
	ms := v.placed()
	out := Layout{Modules: make([]LayoutModule, 0, len(ms))}
	for _, m := range ms {
		out.Modules = append(out.Modules, LayoutModule{
			ID:       m.SourceID(),
			Position: math3d.V3(round2(m.Position.X), round2(m.Position.Y), round2(m.Position.Z)),
			Rotation: SnapRotation90(math3d.RadToDeg(m.Rotation)),
		})
	}
	return out
}

// ParseLayout decodes a layout written as JSON or YAML.
func ParseLayout(data []byte) (Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return Layout{}, errors.Wrap(errors.ErrCodeDecodeFailed, err, "parse layout")
	}
	for i, m := range l.Modules {
		if m.ID == "" {
			return Layout{}, errors.New(errors.ErrCodeDecodeFailed, "layout module %d has no id", i)
		}
	}
	return l, nil
}

// JSON encodes the layout as indented JSON.
func (l Layout) JSON() ([]byte, error) {
	return json.MarshalIndent(l, "", "  ")
}

// YAML encodes the layout as YAML.
func (l Layout) YAML() ([]byte, error) {
	return yaml.Marshal(l)
}

// ApplyLayout adds every module of l, mapping each id to a source URL with
// resolve. Modules are added in layout order as one batch.
func (v *Viewer) ApplyLayout(ctx context.Context, l Layout, resolve func(id string) (string, error)) ([]string, error) {
	ps := make([]Placement, 0, len(l.Modules))
	for _, m := range l.Modules {
		url, err := resolve(m.ID)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "resolve module %q", m.ID)
		}
		ps = append(ps, Placement{
			URL:       url,
			Transform: Transform{Position: m.Position, RotationYDeg: m.Rotation},
		})
	}
	return v.AddModulesAt(ctx, ps)
}
