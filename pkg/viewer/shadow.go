package viewer

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/taigrr/plinth/pkg/math3d"
	"github.com/taigrr/plinth/pkg/models"
	"github.com/taigrr/plinth/pkg/render"
)

const (
	minShadowPlane  = 0.5
	minShadowHeight = 0.3
	shadowHeightPad = 1.2
)

// shadowRig renders a blurred contact shadow from an orthographic camera
// under the module group, looking up, and shows it on a ground plane.
// It is created empty and stays disabled until the group has extent.
type shadowRig struct {
	cfg ShadowConfig

	camera *render.Camera
	fb     *render.Framebuffer // depth only; color is never written
	raster *render.Rasterizer
	a, b   *render.RenderTarget
	tex    *render.Texture
	plane  *models.Mesh

	position      math3d.Vec3
	width, depth  float64
	height        float64
	enabled       bool
	dirty         bool
	lastRenderDur time.Duration
}

func newShadowRig(cfg ShadowConfig) *shadowRig {
	return &shadowRig{cfg: cfg}
}

// ensureTargets lazily allocates the depth buffer and blur targets.
func (s *shadowRig) ensureTargets() {
	res := s.cfg.Resolution
	if s.a != nil && s.a.Width == res {
		return
	}
	s.camera = render.NewOrthographicCamera(render.OrthoBounds{}, 0, 1)
	// Pitch +90 looks straight up: screen right is +X, screen top is +Z.
	s.camera.SetRotation(math.Pi/2, 0, 0)
	s.fb = render.NewFramebuffer(res, res)
	s.raster = render.NewRasterizer(s.camera, s.fb)
	s.a = render.NewRenderTarget(res, res)
	s.b = render.NewRenderTarget(res, res)
	s.tex = nil
	s.width, s.depth, s.height = 0, 0, 0
}

// setConfig swaps tunables. Any change invalidates the texture.
func (s *shadowRig) setConfig(cfg ShadowConfig) {
	if cfg == s.cfg {
		return
	}
	s.cfg = cfg
	if s.a != nil && s.a.Width != cfg.Resolution {
		s.a = nil
	}
	s.dirty = s.enabled
}

// track repositions the rig under box and resizes the plane and camera if
// the footprint changed by more than ResizeEps. It reports false and
// disables the rig when box has no extent.
func (s *shadowRig) track(box math3d.Box3) bool {
	if box.IsEmpty() {
		s.enabled = false
		return false
	}
	size := box.Size()
	if !size.IsFinite() || box.MaxDim() == 0 {
		s.enabled = false
		return false
	}
	s.ensureTargets()
	s.enabled = true

	c := box.Center()
	s.position = math3d.V3(c.X, box.Min.Y+s.cfg.YOffset, c.Z)
	s.camera.SetPosition(s.position)

	w := math.Max(minShadowPlane, size.X*s.cfg.PlaneFactor)
	d := math.Max(minShadowPlane, size.Z*s.cfg.PlaneFactor)
	h := math.Max(minShadowHeight, size.Y*shadowHeightPad)
	eps := s.cfg.ResizeEps
	if s.plane == nil || math.Abs(w-s.width) > eps || math.Abs(d-s.depth) > eps {
		s.width, s.depth = w, d
		s.plane = models.NewPlane("shadow-plane", w, d)
		s.camera.SetOrthoBounds(render.OrthoBounds{Left: -w / 2, Right: w / 2, Bottom: -d / 2, Top: d / 2})
	}
	if h != s.height {
		s.height = h
		s.camera.SetClipPlanes(0, h)
	}
	return true
}

// update follows a structural change: track the new bounds and schedule a
// full render.
func (s *shadowRig) update(box math3d.Box3) {
	s.dirty = s.track(box)
}

// updateDuringDrag is the light path used while a module is dragged. It
// tracks the bounds but leaves the texture alone; the full pass runs when
// the drag ends.
func (s *shadowRig) updateDuringDrag(box math3d.Box3) {
	s.track(box)
}

// blurStep converts the configured blur into texels.
func (s *shadowRig) blurStep() float64 {
	if s.cfg.Units == BlurUnitsWorld && s.width > 0 {
		return s.cfg.Blur * float64(s.cfg.Resolution) / s.width
	}
	return s.cfg.Blur
}

// render runs the depth pass over items, excluding helper geometry, then
// blurs twice and uploads the coverage as the plane texture.
func (s *shadowRig) render(items []render.Item, log *zap.Logger) render.PassStats {
	if !s.enabled {
		s.dirty = false
		return render.PassStats{}
	}
	start := time.Now()

	s.raster.ClearDepth()
	stats := render.Pass{
		Name:     "shadow-depth",
		Camera:   s.camera,
		Exclude:  render.HelperTags,
		Override: render.OverrideDepth,
	}.Execute(s.raster, items)

	s.a.CaptureDepth(s.raster, s.cfg.Darkness)
	step := s.blurStep()
	render.BlurPingPong(s.a, s.b, step)
	// A second, narrower pass hides the banding left by the first.
	render.BlurPingPong(s.a, s.b, step*0.4)
	s.tex = s.a.ToTexture(s.tex, render.ColorBlack, s.cfg.Opacity)

	s.dirty = false
	s.lastRenderDur = time.Since(start)
	log.Debug("shadow pass",
		zap.Int("drawn", stats.Drawn),
		zap.Int("excluded", stats.Excluded),
		zap.Duration("took", s.lastRenderDur))
	return stats
}

// item returns the ground plane carrying the shadow texture.
func (s *shadowRig) item() (render.Item, bool) {
	if !s.enabled || s.tex == nil || s.plane == nil {
		return render.Item{}, false
	}
	return render.Item{
		Name:      "shadow-plane",
		Mesh:      s.plane,
		Transform: math3d.Translate(s.position),
		Tags:      render.TagShadowPlane,
		Material: render.Material{
			Color:   render.ColorWhite,
			Texture: s.tex,
			Unlit:   true,
			State:   render.RasterState{Cull: render.CullNone, DepthTest: true, Blend: true},
		},
	}, true
}

// release drops the render targets.
func (s *shadowRig) release() {
	s.a, s.b, s.tex, s.fb, s.raster, s.plane = nil, nil, nil, nil, nil, nil
	s.enabled, s.dirty = false, false
}
