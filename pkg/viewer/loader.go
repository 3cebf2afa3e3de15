package viewer

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taigrr/plinth/pkg/errors"
	"github.com/taigrr/plinth/pkg/fetch"
	"github.com/taigrr/plinth/pkg/math3d"
	"github.com/taigrr/plinth/pkg/models"
	"github.com/taigrr/plinth/pkg/render"
)

// Transform places a module explicitly.
type Transform struct {
	Position     math3d.Vec3 `json:"position" yaml:"position"`
	RotationYDeg float64     `json:"rotationYDeg" yaml:"rotationYDeg"`
}

// Placement is one entry of a batch add.
type Placement struct {
	URL       string    `json:"url" yaml:"url"`
	Transform Transform `json:"transform" yaml:"transform"`
}

// batchFetchLimit bounds concurrent downloads in AddModulesAt.
const batchFetchLimit = 4

const (
	msgLoadModel   = "Failed to load 3D model."
	msgAddModel    = "Failed to add model."
	msgEnvironment = "Failed to load environment."
)

// fetchModel downloads and decodes url outside the viewer lock.
func (v *Viewer) fetchModel(ctx context.Context, url string, progress fetch.Progress) (*models.Model, error) {
	data, err := v.fetcher.Fetch(ctx, url, progress)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return models.DecodeGLB(SourceID(url), data)
}

func isCancel(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

// cancelLoads cancels the single-model load and every in-flight add.
func (v *Viewer) cancelLoads() {
	if v.loadCancel != nil {
		v.loadCancel()
		v.loadCancel = nil
	}
	v.loadGen++
	for id, cancel := range v.adds {
		cancel()
		delete(v.adds, id)
	}
}

// clearScene removes every module without touching in-flight loads.
func (v *Viewer) clearScene() {
	for _, m := range v.modules {
		m.collider = nil
	}
	v.modules, v.model, v.selected, v.drag = nil, nil, nil, nil
	v.gesture = gesture{}
	v.controls.Enabled = true
	v.dims.suspended = false
	v.dims.clear()
	v.shadow.update(math3d.EmptyBox())
}

// LoadModel replaces the scene with a single view-only model. A newer call
// supersedes an older one still in flight: the older one is cancelled and
// its result discarded.
func (v *Viewer) LoadModel(ctx context.Context, url string) error {
	v.mu.Lock()
	if err := v.alive(); err != nil {
		v.mu.Unlock()
		return err
	}
	if v.loadCancel != nil {
		v.loadCancel()
	}
	v.loadGen++
	gen := v.loadGen
	lctx, cancel := context.WithCancel(ctx)
	v.loadCancel = cancel
	v.hideError()
	v.showLoading("Loading model...")
	v.mu.Unlock()
	defer cancel()

	model, err := v.fetchModel(lctx, url, func(loaded, total int64) {
		v.mu.Lock()
		if v.loadGen == gen {
			v.setProgress(loaded, total)
		}
		v.mu.Unlock()
	})

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.loadGen || v.disposed {
		return context.Canceled
	}
	v.loadCancel = nil
	v.hideLoading()
	if err != nil {
		if isCancel(err) {
			return err
		}
		v.log.Error("model load failed", zap.String("url", url), zap.Error(err))
		v.showError(msgLoadModel, func(ctx context.Context) error { return v.LoadModel(ctx, url) })
		v.publish(Event{Kind: EventModelError, URL: url, Error: err.Error()})
		return err
	}

	v.clearScene()
	m := newModule(url, model)
	v.ensureCollider(m)
	v.modules = []*Module{m}
	v.model = m
	v.hideReady()

	v.frameInitial(m.WorldBounds())
	v.sceneChanged(false)
	v.log.Info("model loaded", zap.String("url", url), zap.Int("triangles", model.TriangleCount()))
	v.publish(Event{Kind: EventModelLoaded, URL: url, ModuleID: m.ID})
	return nil
}

// ClearModel cancels any model load and empties the scene.
func (v *Viewer) ClearModel() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	if v.loadCancel != nil {
		v.loadCancel()
		v.loadCancel = nil
	}
	v.loadGen++
	v.hideLoading()
	v.clearScene()
	v.showReady()
	v.forceFrames += 2
}

// trackAdd registers a cancellable add so RemoveAll and Dispose can abort
// it. release must be called when the add is finished.
func (v *Viewer) trackAdd(ctx context.Context) (context.Context, func(), error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.alive(); err != nil {
		return nil, nil, err
	}
	actx, cancel := context.WithCancel(ctx)
	id := v.addSeq
	v.addSeq++
	v.adds[id] = cancel
	return actx, func() {
		v.mu.Lock()
		delete(v.adds, id)
		v.mu.Unlock()
		cancel()
	}, nil
}

// addFailed reports a failed add through the overlay and events.
func (v *Viewer) addFailed(url string, err error, retry retryFunc) {
	v.hideLoading()
	if isCancel(err) {
		return
	}
	v.log.Error("add module failed", zap.String("url", url), zap.Error(err))
	v.showError(msgAddModel, retry)
	v.publish(Event{Kind: EventModelError, URL: url, Error: err.Error()})
}

// AddModule loads url and places it flush against the right side of the
// rightmost module, aligned with its center on Z and standing on the
// ground. The first module is centered on the origin.
func (v *Viewer) AddModule(ctx context.Context, url string) (string, error) {
	actx, release, err := v.trackAdd(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	v.mu.Lock()
	v.showLoading("Loading model...")
	v.mu.Unlock()

	model, err := v.fetchModel(actx, url, nil)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err == nil {
		err = actx.Err()
	}
	if err != nil {
		v.addFailed(url, err, func(ctx context.Context) error {
			_, err := v.AddModule(ctx, url)
			return err
		})
		return "", err
	}
	v.hideLoading()

	m := newModule(url, model)
	m.Position = autoPlace(v.placed(), model.Bounds)
	v.insert(m)
	return m.ID, nil
}

// autoPlace returns the position that puts a model with local bounds nb
// flush to the right of the rightmost existing module. The result does not
// depend on where the model's pivot sits inside nb.
func autoPlace(existing []*Module, nb math3d.Box3) math3d.Vec3 {
	c := nb.Center()
	ground := -nb.Min.Y

	var right *Module
	var rightBox math3d.Box3
	for _, m := range existing {
		b := m.WorldBounds()
		if b.IsEmpty() {
			continue
		}
		if right == nil || b.Max.X > rightBox.Max.X {
			right, rightBox = m, b
		}
	}
	if right == nil {
		return math3d.V3(-c.X, ground, -c.Z)
	}
	half := nb.Size().X / 2
	return math3d.V3(
		rightBox.Max.X+half-c.X,
		ground,
		rightBox.Center().Z-c.Z,
	)
}

// insert adds a placed module and runs the structural update. The first
// module in an empty scene gets the initial framing.
func (v *Viewer) insert(m *Module) {
	first := len(v.modules) == 0
	v.ensureCollider(m)
	v.modules = append(v.modules, m)
	v.hideReady()
	if first {
		v.frameInitial(m.WorldBounds())
	}
	v.sceneChanged(!first)
	v.forceFrames++
	v.log.Debug("module added", zap.String("id", m.ID), zap.String("url", m.URL))
	v.publish(Event{Kind: EventModelLoaded, URL: m.URL, ModuleID: m.ID})
}

// AddModuleAt loads url and places it at t.
func (v *Viewer) AddModuleAt(ctx context.Context, url string, t Transform) (string, error) {
	ids, err := v.AddModulesAt(ctx, []Placement{{URL: url, Transform: t}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// AddModulesAt fetches every placement concurrently, then adds them in
// order with a single camera refit and shadow rebuild. If any fetch fails
// nothing is added.
func (v *Viewer) AddModulesAt(ctx context.Context, ps []Placement) ([]string, error) {
	if len(ps) == 0 {
		return nil, nil
	}
	actx, release, err := v.trackAdd(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	loaded := make([]*models.Model, len(ps))
	failed := make([]error, len(ps))
	g, gctx := errgroup.WithContext(actx)
	g.SetLimit(batchFetchLimit)
	for i, p := range ps {
		g.Go(func() error {
			m, err := v.fetchModel(gctx, p.URL, nil)
			if err != nil {
				failed[i] = err
				return err
			}
			loaded[i] = m
			return nil
		})
	}
	err = g.Wait()

	v.mu.Lock()
	defer v.mu.Unlock()
	if err == nil {
		err = actx.Err()
	}
	if err != nil {
		url := ps[0].URL
		for i, ferr := range failed {
			if ferr != nil && !isCancel(ferr) {
				url = ps[i].URL
				break
			}
		}
		v.addFailed(url, err, func(ctx context.Context) error {
			_, err := v.AddModulesAt(ctx, ps)
			return err
		})
		return nil, err
	}

	first := len(v.modules) == 0
	ids := make([]string, len(ps))
	for i, p := range ps {
		m := newModule(p.URL, loaded[i])
		m.Position = p.Transform.Position
		m.Rotation = math3d.DegToRad(p.Transform.RotationYDeg)
		v.ensureCollider(m)
		v.modules = append(v.modules, m)
		ids[i] = m.ID
		v.publish(Event{Kind: EventModelLoaded, URL: p.URL, ModuleID: m.ID})
	}
	v.hideReady()
	if first {
		v.frameInitial(v.groupBounds())
	}
	v.sceneChanged(!first)
	return ids, nil
}

// AddObject adds an already decoded model at its own origin.
func (v *Viewer) AddObject(model *models.Model) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.alive(); err != nil {
		return "", err
	}
	if model == nil || model.Bounds.IsEmpty() {
		return "", errors.New(errors.ErrCodeUnsupported, "model has no geometry")
	}
	m := newModule("", model)
	v.insert(m)
	return m.ID, nil
}

// FinalizeLayout runs the camera refit, shadow rebuild and dimension
// rebuild once after a sequence of adds.
func (v *Viewer) FinalizeLayout() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	v.sceneChanged(true)
}

// RemoveAll cancels in-flight adds and removes every placed module. A
// view-only model stays loaded; ClearModel removes it.
func (v *Viewer) RemoveAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	if v.model != nil {
		for id, cancel := range v.adds {
			cancel()
			delete(v.adds, id)
		}
		for _, m := range v.placed() {
			v.removeModule(m)
		}
		if v.loadCancel == nil {
			v.hideLoading()
		}
		v.gesture = gesture{}
		v.sceneChanged(true)
		return
	}
	v.cancelLoads()
	v.hideLoading()
	v.clearScene()
	v.showReady()
	v.forceFrames += 2
}

// LoadEnvironment loads an equirectangular environment map and derives the
// scene light from it.
func (v *Viewer) LoadEnvironment(ctx context.Context, url string) error {
	v.mu.Lock()
	if err := v.alive(); err != nil {
		v.mu.Unlock()
		return err
	}
	v.mu.Unlock()

	data, err := v.fetcher.Fetch(ctx, url, nil)
	var env *render.Environment
	if err == nil {
		env, err = render.DecodeEnvironment(data)
		if err != nil {
			err = errors.Wrap(errors.ErrCodeDecodeFailed, err, "environment %s", url)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.alive(); err != nil {
		return err
	}
	if err != nil {
		if isCancel(err) {
			return err
		}
		v.log.Error("environment load failed", zap.String("url", url), zap.Error(err))
		v.showError(msgEnvironment, func(ctx context.Context) error { return v.LoadEnvironment(ctx, url) })
		v.publish(Event{Kind: EventEnvironmentError, URL: url, Error: err.Error()})
		return err
	}
	v.env = env
	v.light = env.Light()
	v.needsRender = true
	v.log.Info("environment loaded", zap.String("url", url), zap.Int("width", env.Width), zap.Int("height", env.Height))
	v.publish(Event{Kind: EventEnvironmentLoaded, URL: url})
	return nil
}
