package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taigrr/plinth/internal/config"
	"github.com/taigrr/plinth/internal/logger"
	"github.com/taigrr/plinth/pkg/errors"
	"github.com/taigrr/plinth/pkg/render"
	"github.com/taigrr/plinth/pkg/viewer"
)

const viewHelp = `Controls:
  Left drag     - Select and drag a module (empty space orbits)
  Right drag    - Pan
  Scroll, +/-   - Zoom
  H/L, J/K      - Orbit left/right, up/down
  W/A/S/D       - Nudge selection one grid step
  [ / ]         - Rotate selection -90/+90 degrees
  Tab           - Select next module
  X, Delete     - Delete selection
  M             - Toggle dimensions
  C             - Center view on all modules
  E             - Export layout
  R             - Retry a failed load
  ?             - Toggle HUD
  Esc, Ctrl+C   - Quit`

type viewOptions struct {
	single  bool
	envURL  string
	out     string
	fps     int
	bg      string
	noWatch bool
}

func newViewCmd(e *env) *cobra.Command {
	o := &viewOptions{}
	cmd := &cobra.Command{
		Use:   "view [module.glb ...]",
		Short: "Configure a scene interactively in the terminal",
		Long:  "view composes the given modules side by side and lets you arrange them.\n\n" + viewHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.single && len(args) != 1 {
				return errors.New(errors.ErrCodeInvalidConfig, "--single takes exactly one model")
			}
			// The picture owns the terminal; logs go to a file only.
			if err := e.load(false); err != nil {
				return err
			}
			if e.cfg.Logging.File == "" {
				e.cfg.Logging.File = filepath.Join(os.TempDir(), "plinth.log")
				e.log = logger.New(e.cfg.Logging)
			}
			defer e.log.Sync()
			if cmd.Flags().Changed("fps") {
				e.cfg.Terminal.FPS = o.fps
			}
			if o.bg != "" {
				if _, err := render.ParseHexColor(o.bg); err != nil {
					return errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid --bg")
				}
				e.cfg.Viewer.BackgroundColor = o.bg
			}
			if o.envURL != "" {
				e.cfg.Viewer.EnvironmentURL = o.envURL
			}
			return runView(cmd.Context(), e, o, args)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&o.single, "single", false, "view one model instead of composing modules")
	f.StringVar(&o.envURL, "env", "", "environment map (HDR, PNG or JPEG)")
	f.StringVarP(&o.out, "out", "o", "layout.yaml", "where E writes the layout")
	f.IntVar(&o.fps, "fps", 30, "target FPS")
	f.StringVar(&o.bg, "bg", "", "background color, #rrggbb")
	f.BoolVar(&o.noWatch, "no-watch", false, "do not reload the config file when it changes")
	return cmd
}

// viewApp is the terminal front-end around one viewer.
type viewApp struct {
	v      *viewer.Viewer
	log    *zap.Logger
	out    string
	cancel context.CancelFunc

	mu      sync.Mutex // guards term, tr, width, height, hud
	term    *uv.Terminal
	tr      *render.TerminalRenderer
	width   int
	height  int
	columns int // picture width cap, 0 for none

	hud *HUD

	// pointer state for translating cell events
	buttonDown bool
}

func runView(ctx context.Context, e *env, o *viewOptions, args []string) error {
	term := uv.DefaultTerminal()
	width, height, err := term.GetSize()
	if err != nil {
		return fmt.Errorf("get terminal size: %w", err)
	}

	columns := e.cfg.Terminal.Columns
	tr := render.NewTerminalRenderer(term, pictureWidth(width, columns), height)
	fbWidth, fbHeight := tr.FramebufferSize()

	cfg := e.cfg.Viewer
	cfg.Width, cfg.Height = fbWidth, fbHeight
	cfg.AllowEmpty = cfg.AllowEmpty || len(args) == 0

	client, err := e.fetcher()
	if err != nil {
		return err
	}
	v, err := viewer.New(cfg, viewer.WithLogger(e.log), viewer.WithFetcher(client))
	if err != nil {
		return err
	}
	defer v.Dispose()

	if err := term.Start(); err != nil {
		return fmt.Errorf("start terminal: %w", err)
	}
	term.EnterAltScreen()
	term.HideCursor()
	term.Resize(width, height)

	// Enable mouse mode
	fmt.Fprint(os.Stdout, "\x1b[?1003h") // any-event mouse tracking
	fmt.Fprint(os.Stdout, "\x1b[?1006h") // SGR extended mouse mode

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a := &viewApp{
		v:       v,
		log:     e.log,
		out:     o.out,
		cancel:  cancel,
		term:    term,
		tr:      tr,
		width:   width,
		height:  height,
		columns: columns,
		hud:     NewHUD(cfg.MountID),
	}

	if e.path != "" && !o.noWatch {
		if err := config.Watch(ctx, e.path, e.log, a.reloadConfig); err != nil {
			e.log.Warn("config watch disabled", zap.Error(err))
		}
	}

	go a.load(ctx, o.single, args)
	go a.handleEvents(ctx)

	err = a.loop(ctx, e.cfg.Terminal.FPS)

	fmt.Fprint(os.Stdout, "\x1b[?1003l")
	fmt.Fprint(os.Stdout, "\x1b[?1006l")
	term.ExitAltScreen()
	term.ShowCursor()
	term.Shutdown(context.Background())
	return err
}

// load runs the initial loads in order so each module is placed against
// the one before it.
func (a *viewApp) load(ctx context.Context, single bool, args []string) {
	if err := a.v.Start(ctx); err != nil && !stderrors.Is(err, context.Canceled) {
		a.log.Warn("start failed", zap.Error(err))
	}
	if single {
		if err := a.v.LoadModel(ctx, args[0]); err != nil && !stderrors.Is(err, context.Canceled) {
			a.log.Warn("load failed", zap.String("url", args[0]), zap.Error(err))
		}
		return
	}
	for _, url := range args {
		if _, err := a.v.AddModule(ctx, url); err != nil {
			if !stderrors.Is(err, context.Canceled) {
				a.log.Warn("add failed", zap.String("url", url), zap.Error(err))
			}
			return
		}
	}
	a.v.FinalizeLayout()
}

func (a *viewApp) loop(ctx context.Context, fps int) error {
	target := time.Second / time.Duration(max(fps, 1))
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		now := time.Now()
		dt := min(now.Sub(last), 100*time.Millisecond)
		last = now

		a.v.Frame(dt)
		if err := a.draw(); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		a.hud.UpdateFPS()

		if elapsed := time.Since(now); elapsed < target {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(target - elapsed):
			}
		}
	}
}

func (a *viewApp) draw() error {
	st := hudState{
		modules: len(a.v.Modules()),
		toolbar: a.v.Toolbar(),
		overlay: a.v.Overlay(),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.v.WithFramebuffer(func(fb *render.Framebuffer) {
		a.tr.Render(fb)
	})
	a.hud.Draw(a.term, a.width, a.height, st)
	return a.tr.Flush()
}

func (a *viewApp) resize(width, height int) {
	a.mu.Lock()
	a.width, a.height = width, height
	a.term.Erase()
	a.term.Resize(width, height)
	a.tr = render.NewTerminalRenderer(a.term, pictureWidth(width, a.columns), height)
	fbWidth, fbHeight := a.tr.FramebufferSize()
	a.mu.Unlock()
	a.v.Resize(fbWidth, fbHeight)
}

// reloadConfig applies a changed config file. The viewport size and mount
// id stay as they are.
func (a *viewApp) reloadConfig(c config.Config, err error) {
	if err != nil {
		return
	}
	vc := c.Viewer
	vc.MountID = a.v.MountID()
	vc.Width, vc.Height = a.v.Size()
	vc.AllowEmpty = true
	if err := a.v.ApplyConfig(vc); err != nil {
		a.log.Warn("config not applied", zap.Error(err))
	}
}

func pictureWidth(width, columns int) int {
	if columns > 0 {
		return min(width, columns)
	}
	return width
}

// cellToPixel maps a terminal cell to the framebuffer pixel at its center.
// Each cell covers two pixel rows.
func cellToPixel(x, y int) (float64, float64) {
	return float64(x) + 0.5, float64(y)*2 + 1
}

func buttonFor(b uv.MouseButton) (viewer.Button, bool) {
	switch b {
	case uv.MouseLeft:
		return viewer.ButtonLeft, true
	case uv.MouseMiddle:
		return viewer.ButtonMiddle, true
	case uv.MouseRight:
		return viewer.ButtonRight, true
	}
	return 0, false
}

const (
	orbitStep = 15.0 // degrees per key press
	polarStep = 5.0
)

func (a *viewApp) handleEvents(ctx context.Context) {
	for ev := range a.term.Events() {
		if ctx.Err() != nil {
			return
		}
		switch ev := ev.(type) {
		case uv.WindowSizeEvent:
			a.resize(ev.Width, ev.Height)

		case uv.KeyPressEvent:
			a.handleKey(ctx, ev)

		case uv.MouseClickEvent:
			if b, ok := buttonFor(ev.Button); ok {
				x, y := cellToPixel(ev.X, ev.Y)
				a.v.PointerDown(x, y, b)
				a.buttonDown = true
			}

		case uv.MouseReleaseEvent:
			if a.buttonDown {
				a.v.PointerUp()
				a.buttonDown = false
			}

		case uv.MouseMotionEvent:
			if a.buttonDown {
				a.v.PointerMove(cellToPixel(ev.X, ev.Y))
			}

		case uv.MouseWheelEvent:
			switch ev.Button {
			case uv.MouseWheelUp:
				a.v.Wheel(1)
			case uv.MouseWheelDown:
				a.v.Wheel(-1)
			}
		}
	}
}

func (a *viewApp) handleKey(ctx context.Context, ev uv.KeyPressEvent) {
	var err error
	switch {
	case ev.MatchString("escape"), ev.MatchString("ctrl+c"):
		a.cancel()
	case ev.MatchString("?"), ev.MatchString("shift+/"):
		a.mu.Lock()
		a.hud.show = !a.hud.show
		a.mu.Unlock()
	case ev.MatchString("["):
		err = a.v.RotateSelected(-90)
	case ev.MatchString("]"):
		err = a.v.RotateSelected(90)
	case ev.MatchString("x", "delete", "backspace"):
		err = a.v.DeleteSelected()
	case ev.MatchString("m"):
		a.v.ToggleDimensions()
	case ev.MatchString("c"):
		a.v.FrameAll()
	case ev.MatchString("w", "up"):
		err = a.v.NudgeSelected(0, -1)
	case ev.MatchString("s", "down"):
		err = a.v.NudgeSelected(0, 1)
	case ev.MatchString("a", "left"):
		err = a.v.NudgeSelected(-1, 0)
	case ev.MatchString("d", "right"):
		err = a.v.NudgeSelected(1, 0)
	case ev.MatchString("h"):
		a.v.Orbit(-orbitStep, 0)
	case ev.MatchString("l"):
		a.v.Orbit(orbitStep, 0)
	case ev.MatchString("j"):
		a.v.Orbit(0, polarStep)
	case ev.MatchString("k"):
		a.v.Orbit(0, -polarStep)
	case ev.MatchString("+", "="):
		a.v.Wheel(1)
	case ev.MatchString("-", "_"):
		a.v.Wheel(-1)
	case ev.MatchString("tab"):
		err = a.selectNext()
	case ev.MatchString("e"):
		err = a.exportLayout()
	case ev.MatchString("r"):
		go func() {
			if err := a.v.Retry(ctx); err != nil && !stderrors.Is(err, context.Canceled) {
				a.log.Warn("retry failed", zap.Error(err))
			}
		}()
	}
	if err != nil && !errors.Is(err, errors.ErrCodeNoSelection) {
		a.log.Warn("action failed", zap.String("key", ev.String()), zap.Error(err))
	}
}

// selectNext cycles the selection through the modules in insertion order.
func (a *viewApp) selectNext() error {
	mods := a.v.Modules()
	if len(mods) == 0 {
		return nil
	}
	next := 0
	for i, m := range mods {
		if m.Selected {
			next = (i + 1) % len(mods)
			break
		}
	}
	return a.v.Select(mods[next].ID)
}

func (a *viewApp) exportLayout() error {
	l := a.v.ExportLayout()
	data, err := l.YAML()
	if filepath.Ext(a.out) == ".json" {
		data, err = l.JSON()
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(a.out, data, 0o644); err != nil {
		return err
	}
	a.log.Info("layout exported", zap.String("path", a.out), zap.Int("modules", len(l.Modules)))
	return nil
}
