// Package viewer is the configurator core. A Viewer owns one scene: the
// placed modules, an orbit camera rig, the contact shadow, selection and
// outlines, the drag-and-place engine, the dimension overlay and the event
// stream. Hosts drive it by calling Frame from their loop and forwarding
// pointer input; everything else goes through its methods.
package viewer

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taigrr/plinth/pkg/errors"
	"github.com/taigrr/plinth/pkg/fetch"
	"github.com/taigrr/plinth/pkg/math3d"
	"github.com/taigrr/plinth/pkg/render"
)

// Fetcher retrieves asset bytes. *fetch.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, progress fetch.Progress) ([]byte, error)
}

// Option configures a Viewer.
type Option func(*Viewer)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(v *Viewer) {
		if l != nil {
			v.log = l
		}
	}
}

// WithFetcher replaces the default fetch client.
func WithFetcher(f Fetcher) Option {
	return func(v *Viewer) { v.fetcher = f }
}

// WithClock replaces time.Now, used for event throttling.
func WithClock(now func() time.Time) Option {
	return func(v *Viewer) { v.now = now }
}

// Stats counts render work since creation.
type Stats struct {
	ShadowPasses int
	MainPasses   int
	LastShadow   render.PassStats
	LastMain     render.PassStats
}

// Initial camera before anything is framed.
var (
	initialCameraPos    = math3d.V3(0, 0.5, 1.5)
	initialCameraTarget = math3d.Zero3()
)

const (
	defaultNear     = 0.01
	defaultFar      = 1000
	defaultPanSpeed = 0.9
)

// Viewer is one configurator instance. All methods are safe for concurrent
// use; state is guarded by a single mutex so mutation is serialized.
type Viewer struct {
	mu  sync.Mutex
	cfg Config
	pal palette
	log *zap.Logger
	now func() time.Time

	fetcher Fetcher

	fb       *render.Framebuffer
	raster   *render.Rasterizer
	camera   *render.Camera
	controls *OrbitControls
	light    render.Light
	tone     render.ToneMapping
	env      *render.Environment

	modules  []*Module
	model    *Module // set in single-model mode
	selected *Module

	shadow  *shadowRig
	dims    *dimensionOverlay
	drag    *dragSession
	gesture gesture

	overlay Overlay
	retry   retryFunc
	events  *eventBus

	forceFrames     int
	needsRender     bool
	visible         bool
	disposed        bool
	lastCameraEvent time.Time

	homeTarget     math3d.Vec3
	boundingRadius float64

	loadGen    uint64
	loadCancel context.CancelFunc
	addSeq     uint64
	adds       map[uint64]context.CancelFunc

	stats Stats
}

// New validates cfg and creates a viewer. An invalid configuration is
// logged and returned; no viewer is created.
func New(cfg Config, opts ...Option) (*Viewer, error) {
	v := &Viewer{
		log:     zap.NewNop(),
		now:     time.Now,
		visible: true,
		adds:    make(map[uint64]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(v)
	}
	if err := cfg.Validate(); err != nil {
		v.log.Error("invalid viewer config", zap.String("mount", cfg.MountID), zap.Error(err))
		return nil, err
	}
	v.log = v.log.With(zap.String("mount", cfg.MountID))
	if v.fetcher == nil {
		v.fetcher = fetch.New(fetch.WithLogger(v.log))
	}

	v.cfg = cfg
	v.pal = cfg.palette()
	v.fb = render.NewFramebuffer(cfg.Width, cfg.Height)
	v.camera = render.NewCamera()
	v.camera.SetFOV(math3d.DegToRad(cfg.FOV))
	v.camera.SetAspectRatio(float64(cfg.Width) / float64(cfg.Height))
	v.camera.SetClipPlanes(defaultNear, defaultFar)
	v.raster = render.NewRasterizer(v.camera, v.fb)
	v.controls = NewOrbitControls(initialCameraPos, initialCameraTarget)
	v.configureControls()
	v.controls.Apply(v.camera)
	v.light = render.DefaultLight()
	v.tone = render.ToneMapping{Mode: cfg.ToneMapping, Exposure: cfg.Exposure}
	v.shadow = newShadowRig(cfg.Shadow)
	v.dims = newDimensionOverlay()
	v.events = newEventBus(cfg.EventBuffer, v.log)
	v.needsRender = true

	v.events.publish(Event{Kind: EventViewerReady, MountID: cfg.MountID})
	return v, nil
}

// configureControls copies the camera tunables onto the controls.
func (v *Viewer) configureControls() {
	c := v.controls
	c.MinPolar = degPtr(v.cfg.MinPolarDeg, 0)
	c.MaxPolar = degPtr(v.cfg.MaxPolarDeg, math.Pi)
	c.MinAzimuth = degPtr(v.cfg.MinAzimuthDeg, math.Inf(-1))
	c.MaxAzimuth = degPtr(v.cfg.MaxAzimuthDeg, math.Inf(1))
	c.DollySpeed = v.cfg.DollySpeed
	c.PanSpeed = 0
	if v.cfg.EnablePan {
		c.PanSpeed = defaultPanSpeed
	}
}

// MountID returns the id the viewer was created for.
func (v *Viewer) MountID() string {
	return v.cfg.MountID
}

// Config returns a copy of the active configuration.
func (v *Viewer) Config() Config {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cfg
}

// Start performs the initial loads named by the configuration. Environment
// failures surface through the overlay and events only; a model failure is
// also returned.
func (v *Viewer) Start(ctx context.Context) error {
	if v.cfg.EnvironmentURL != "" {
		_ = v.LoadEnvironment(ctx, v.cfg.EnvironmentURL)
	}
	if v.cfg.ModelURL != "" {
		return v.LoadModel(ctx, v.cfg.ModelURL)
	}
	if v.cfg.AllowEmpty {
		v.mu.Lock()
		v.showReady()
		v.mu.Unlock()
	}
	return nil
}

// Subscribe returns a channel of events and a function that unsubscribes.
// The channel is closed on unsubscribe or Dispose.
func (v *Viewer) Subscribe() (<-chan Event, func()) {
	return v.events.subscribe()
}

func (v *Viewer) publish(e Event) {
	e.MountID = v.cfg.MountID
	v.events.publish(e)
}

// Dispose cancels in-flight loads, releases render targets and closes the
// event stream. It is safe to call more than once.
func (v *Viewer) Dispose() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	v.disposed = true
	v.cancelLoads()
	v.modules, v.model, v.selected, v.drag = nil, nil, nil, nil
	v.shadow.release()
	v.dims.clear()
	v.events.close()
	v.log.Debug("viewer disposed")
}

func (v *Viewer) alive() error {
	if v.disposed {
		return errors.New(errors.ErrCodeDisposed, "viewer %s is disposed", v.cfg.MountID)
	}
	return nil
}

func errNoSelection() error {
	return errors.New(errors.ErrCodeNoSelection, "no module selected")
}

// SetVisible pauses or resumes rendering. While hidden Frame does nothing.
func (v *Viewer) SetVisible(visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if visible && !v.visible {
		v.needsRender = true
	}
	v.visible = visible
}

// Resize changes the viewport. A zero-area size is ignored.
func (v *Viewer) Resize(width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if width <= 0 || height <= 0 || v.disposed {
		return
	}
	if !v.fb.Resize(width, height) {
		return
	}
	v.cfg.Width, v.cfg.Height = width, height
	v.raster.Resize()
	v.camera.SetAspectRatio(float64(width) / float64(height))
	v.updateDistanceLimits()
	v.needsRender = true
}

// Size returns the viewport size.
func (v *Viewer) Size() (width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fb.Width, v.fb.Height
}

// ApplyConfig swaps in new tunables. The mount id cannot change.
func (v *Viewer) ApplyConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.alive(); err != nil {
		return err
	}
	if cfg.MountID != v.cfg.MountID {
		return errors.New(errors.ErrCodeInvalidConfig, "mount id cannot change from %q to %q", v.cfg.MountID, cfg.MountID)
	}
	w, h := v.fb.Width, v.fb.Height
	v.cfg = cfg
	v.pal = cfg.palette()
	v.configureControls()
	v.camera.SetFOV(math3d.DegToRad(cfg.FOV))
	v.tone = render.ToneMapping{Mode: cfg.ToneMapping, Exposure: cfg.Exposure}
	v.shadow.setConfig(cfg.Shadow)
	if cfg.Width != w || cfg.Height != h {
		v.fb.Resize(cfg.Width, cfg.Height)
		v.raster.Resize()
		v.camera.SetAspectRatio(float64(cfg.Width) / float64(cfg.Height))
	}
	v.updateDistanceLimits()
	v.dims.rebuild(v.groupBounds(), cfg.Dimensions, v.pal.text)
	v.forceFrames += 2
	v.log.Info("viewer config applied")
	return nil
}

// Stats returns render counters.
func (v *Viewer) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

// Frame advances the viewer by dt. The order is fixed: controls update,
// dimension rescale, shadow pass if dirty, then the main pass if anything
// changed. It reports whether the framebuffer was redrawn.
func (v *Viewer) Frame(dt time.Duration) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed || !v.visible {
		return false
	}

	changed := v.controls.Update(dt.Seconds())
	v.controls.Apply(v.camera)

	if v.dims.visible() {
		v.dims.rescale(v.camera, v.fb.Height, v.groupBounds().Center())
	}
	if v.shadow.dirty && v.drag == nil {
		v.stats.LastShadow = v.shadow.render(v.sceneItems(), v.log)
		v.stats.ShadowPasses++
	}
	if !changed && !v.needsRender && v.forceFrames == 0 {
		return false
	}

	v.renderMain()
	v.needsRender = false
	if v.forceFrames > 0 {
		v.forceFrames--
	}

	now := v.now()
	if now.Sub(v.lastCameraEvent) >= v.cfg.CameraEventInterval {
		cs := v.cameraState()
		v.publish(Event{Kind: EventCameraChange, Camera: &cs})
		v.lastCameraEvent = now
	}
	return true
}

func (v *Viewer) renderMain() {
	v.fb.Clear(v.pal.background)
	v.raster.SetCamera(v.camera)
	v.raster.ClearDepth()
	v.raster.ResetCullingStats()

	v.stats.LastMain = render.Pass{
		Name:    "main",
		Camera:  v.camera,
		Exclude: render.TagCollider,
		Light:   v.light,
		Tone:    v.tone,
	}.Execute(v.raster, v.sceneItems())
	v.stats.MainPasses++

	if v.cfg.Debug {
		wf := render.NewWireframe(v.raster)
		if b := v.groupBounds(); !b.IsEmpty() {
			size := b.Size()
			extent := math.Ceil(max(size.X, size.Z)) + 2
			wf.DrawGrid(math3d.V3(b.Center().X, 0, b.Center().Z), extent, 0.5, render.ColorGray)
		}
		wf.DrawAxes(math3d.Vec3{}, 1)
		for _, m := range v.modules {
			if m.collider != nil {
				wf.DrawBox(m.collider.World, render.ColorRed)
			}
		}
	}
	v.dims.drawLabels(v.fb, v.camera, v.cfg.Dimensions.LabelScale)
}

// sceneItems lists everything drawable. Passes pick what they need by tag.
func (v *Viewer) sceneItems() []render.Item {
	items := make([]render.Item, 0, len(v.modules)*4+4)
	for _, m := range v.modules {
		mat := m.Matrix()
		for _, p := range m.parts {
			items = append(items, render.Item{
				Name:      p.mesh.Name,
				Mesh:      p.mesh,
				Transform: mat,
				Tags:      render.TagModule,
				Material:  p.material,
			})
		}
		if m.collider != nil {
			items = append(items, render.Item{
				Name:      "collider",
				Mesh:      m.collider.mesh,
				Transform: mat,
				Tags:      render.TagCollider,
				Material:  render.Material{Color: render.ColorRed, Unlit: true, State: render.OpaqueState()},
			})
		}
		if v.cfg.Outline.Enabled && (m == v.selected || m.outlined) {
			items = append(items, v.outlineItems(m, mat)...)
		}
	}
	if it, ok := v.shadow.item(); ok {
		items = append(items, it)
	}
	return append(items, v.dims.items(v.pal.dimension)...)
}

// groupBounds is the world box of every module, helpers excluded.
func (v *Viewer) groupBounds() math3d.Box3 {
	box := math3d.EmptyBox()
	for _, m := range v.modules {
		box = box.Union(m.WorldBounds())
	}
	return box
}

// sceneChanged runs after any add, remove, rotate or drop. The shadow rig
// follows the new bounds, the camera refits when the change is large, and
// the dimensions are rebuilt.
func (v *Viewer) sceneChanged(refit bool) {
	box := v.groupBounds()
	v.shadow.update(box)
	if refit {
		v.refit(box)
	}
	v.dims.rebuild(box, v.cfg.Dimensions, v.pal.text)
	v.forceFrames += 2
}

func (v *Viewer) cameraState() CameraState {
	sph := v.controls.Spherical()
	return CameraState{
		Position: v.controls.Position(),
		Target:   v.controls.Target(),
		Radius:   sph.Radius,
		ThetaDeg: math3d.RadToDeg(sph.Theta),
		PhiDeg:   math3d.RadToDeg(sph.Phi),
	}
}

// Camera returns the current orbit state.
func (v *Viewer) Camera() CameraState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cameraState()
}

// WithFramebuffer calls fn with the framebuffer while holding the lock.
// fn must not call back into the viewer.
func (v *Viewer) WithFramebuffer(fn func(fb *render.Framebuffer)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fn(v.fb)
}

// EncodePNG writes the last rendered frame as PNG.
func (v *Viewer) EncodePNG(w io.Writer) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fb.EncodePNG(w)
}
