// Package server exposes viewers over HTTP. Each viewer is a mount keyed by
// its mount id; the imperative viewer API maps onto JSON routes under
// /mounts/{mount}, and /mounts/{mount}/events streams viewer events over a
// websocket.
package server

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/taigrr/plinth/pkg/errors"
	"github.com/taigrr/plinth/pkg/viewer"
)

// Server owns the mounts and their HTTP surface.
type Server struct {
	log      *zap.Logger
	base     viewer.Config
	fetcher  viewer.Fetcher
	resolve  func(id string) (string, error)
	fps      int
	upgrader websocket.Upgrader

	mu     sync.Mutex
	mounts map[string]*mount
	closed bool
}

// mount is one hosted viewer plus its optional frame ticker.
type mount struct {
	v    *viewer.Viewer
	stop context.CancelFunc
	done chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithBaseConfig sets the configuration new mounts start from.
func WithBaseConfig(cfg viewer.Config) Option {
	return func(s *Server) { s.base = cfg }
}

// WithFetcher sets the asset fetcher shared by every mount.
func WithFetcher(f viewer.Fetcher) Option {
	return func(s *Server) { s.fetcher = f }
}

// WithCatalog sets the base URL layout ids resolve against. See
// CatalogResolver.
func WithCatalog(base string) Option {
	return func(s *Server) { s.resolve = CatalogResolver(base) }
}

// WithFrameRate drives every mount's Frame at fps in the background. Zero
// leaves frames to the frame.png route.
func WithFrameRate(fps int) Option {
	return func(s *Server) { s.fps = max(fps, 0) }
}

// New creates a Server with no mounts.
func New(opts ...Option) *Server {
	s := &Server{
		log:     zap.NewNop(),
		base:    viewer.DefaultConfig("plinth"),
		resolve: CatalogResolver(""),
		mounts:  make(map[string]*mount),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/mounts", func(r chi.Router) {
		r.Get("/", s.handleListMounts)
		r.Post("/", s.handleCreateMount)

		r.Route("/{mount}", func(r chi.Router) {
			r.Use(s.withMount)
			r.Delete("/", s.handleDispose)

			r.Put("/model", s.handleLoadModel)
			r.Delete("/model", s.handleClearModel)
			r.Put("/environment", s.handleLoadEnvironment)
			r.Post("/retry", s.handleRetry)

			r.Get("/modules", s.handleModules)
			r.Post("/modules", s.handleAddModule)
			r.Delete("/modules", s.handleRemoveAll)
			r.Post("/finalize", s.handleFinalize)

			r.Get("/layout", s.handleExportLayout)
			r.Put("/layout", s.handleApplyLayout)

			r.Put("/outline", s.handleSetOutlined)
			r.Put("/selection", s.handleSelect)
			r.Delete("/selection", s.handleDeleteSelected)
			r.Post("/selection/rotate", s.handleRotate)
			r.Post("/selection/nudge", s.handleNudge)
			r.Post("/frame-all", s.handleFrameAll)
			r.Post("/dimensions/toggle", s.handleToggleDimensions)
			r.Post("/pointer", s.handlePointer)

			r.Get("/toolbar", s.handleToolbar)
			r.Get("/overlay", s.handleOverlay)
			r.Get("/camera", s.handleCamera)
			r.Get("/frame.png", s.handleFramePNG)
			r.Get("/events", s.handleEvents)
		})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Create builds and registers a viewer for cfg, generating a mount id when
// cfg has none, then runs its initial loads. A failed initial model load
// leaves the mount in place with its error overlay showing.
func (s *Server) Create(ctx context.Context, cfg viewer.Config) (*viewer.Viewer, error) {
	if cfg.MountID == "" {
		cfg.MountID = uuid.NewString()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New(errors.ErrCodeDisposed, "server is shut down")
	}
	if _, ok := s.mounts[cfg.MountID]; ok {
		s.mu.Unlock()
		return nil, errors.New(errors.ErrCodeInvalidConfig, "mount %q already exists", cfg.MountID)
	}
	opts := []viewer.Option{viewer.WithLogger(s.log)}
	if s.fetcher != nil {
		opts = append(opts, viewer.WithFetcher(s.fetcher))
	}
	v, err := viewer.New(cfg, opts...)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	m := &mount{v: v}
	if s.fps > 0 {
		tctx, stop := context.WithCancel(context.Background())
		m.stop, m.done = stop, make(chan struct{})
		go runFrames(tctx, v, s.fps, m.done)
	}
	s.mounts[cfg.MountID] = m
	s.mu.Unlock()

	s.log.Info("mount created", zap.String("mount", cfg.MountID))
	if err := v.Start(ctx); err != nil {
		s.log.Warn("initial load failed", zap.String("mount", cfg.MountID), zap.Error(err))
	}
	return v, nil
}

// Get returns the viewer for id.
func (s *Server) Get(id string) (*viewer.Viewer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mounts[id]
	if !ok {
		return nil, false
	}
	return m.v, true
}

// Mounts returns the registered mount ids in order.
func (s *Server) Mounts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.mounts))
	for id := range s.mounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dispose tears down and unregisters one mount.
func (s *Server) Dispose(id string) bool {
	s.mu.Lock()
	m, ok := s.mounts[id]
	delete(s.mounts, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	m.close()
	s.log.Info("mount disposed", zap.String("mount", id))
	return true
}

// Close disposes every mount and refuses new ones.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	mounts := s.mounts
	s.mounts = make(map[string]*mount)
	s.mu.Unlock()
	for _, m := range mounts {
		m.close()
	}
}

func (m *mount) close() {
	if m.stop != nil {
		m.stop()
		<-m.done
	}
	m.v.Dispose()
}

func runFrames(ctx context.Context, v *viewer.Viewer, fps int, done chan struct{}) {
	defer close(done)
	interval := time.Second / time.Duration(fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			v.Frame(now.Sub(last))
			last = now
		}
	}
}

// ListenAndServe serves until ctx is done, then shuts down and disposes
// every mount.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// CatalogResolver maps layout ids to module URLs under base: id "sofa"
// becomes base + "/sofa.glb". An empty base resolves nothing.
func CatalogResolver(base string) func(id string) (string, error) {
	base = strings.TrimSuffix(base, "/")
	return func(id string) (string, error) {
		if base == "" {
			return "", errors.New(errors.ErrCodeNotFound, "no catalog configured for %q", id)
		}
		return base + "/" + id + ".glb", nil
	}
}

// SetBaseConfig replaces the configuration later mounts start from.
// Existing mounts keep theirs.
func (s *Server) SetBaseConfig(cfg viewer.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = cfg
}

func (s *Server) baseConfig() viewer.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}
