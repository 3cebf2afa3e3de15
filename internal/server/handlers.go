package server

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/taigrr/plinth/pkg/errors"
	"github.com/taigrr/plinth/pkg/viewer"
)

type ctxKey struct{}

// maxBody bounds request bodies; layouts are the largest payload.
const maxBody = 1 << 20

func (s *Server) withMount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "mount")
		v, ok := s.Get(id)
		if !ok {
			s.writeError(w, errors.New(errors.ErrCodeNotFound, "no mount %q", id))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, v)))
	})
}

func viewerFrom(r *http.Request) *viewer.Viewer {
	return r.Context().Value(ctxKey{}).(*viewer.Viewer)
}

// statusFor maps error codes onto HTTP statuses.
func statusFor(err error) int {
	if stderrors.Is(err, context.Canceled) {
		return http.StatusConflict
	}
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidConfig, errors.ErrCodeMissingMount:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeDecodeFailed, errors.ErrCodeUnsupported:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeFetchFailed:
		return http.StatusBadGateway
	case errors.ErrCodeDisposed:
		return http.StatusGone
	case errors.ErrCodeNoSelection:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, status, errorBody{Error: err.Error(), Code: string(errors.GetCode(err))})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug("write response", zap.Error(err))
	}
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid request body")
	}
	return nil
}

type urlRequest struct {
	URL string `json:"url"`
}

func (u urlRequest) check() error {
	if strings.TrimSpace(u.URL) == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "url is required")
	}
	return nil
}

type mountResponse struct {
	MountID string         `json:"mountId"`
	Overlay viewer.Overlay `json:"overlay"`
}

func (s *Server) handleListMounts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"mounts": s.Mounts()})
}

// handleCreateMount decodes the body over the base config, so a request
// only names the tunables it changes.
func (s *Server) handleCreateMount(w http.ResponseWriter, r *http.Request) {
	cfg := s.baseConfig()
	cfg.MountID = ""
	if err := decode(r, &cfg); err != nil {
		s.writeError(w, err)
		return
	}
	v, err := s.Create(r.Context(), cfg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, mountResponse{MountID: v.MountID(), Overlay: v.Overlay()})
}

func (s *Server) handleDispose(w http.ResponseWriter, r *http.Request) {
	s.Dispose(chi.URLParam(r, "mount"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoadModel(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := req.check(); err != nil {
		s.writeError(w, err)
		return
	}
	v := viewerFrom(r)
	if err := v.LoadModel(r.Context(), req.URL); err != nil {
		s.writeError(w, err)
		return
	}
	info, _ := v.Model()
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleClearModel(w http.ResponseWriter, r *http.Request) {
	viewerFrom(r).ClearModel()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoadEnvironment(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := req.check(); err != nil {
		s.writeError(w, err)
		return
	}
	if err := viewerFrom(r).LoadEnvironment(r.Context(), req.URL); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	v := viewerFrom(r)
	if err := v.Retry(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v.Overlay())
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, viewerFrom(r).Modules())
}

type addRequest struct {
	URL string `json:"url"`
	// Transform places the module explicitly; nil auto-places it.
	Transform *viewer.Transform `json:"transform,omitempty"`
}

type addResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleAddModule(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := (urlRequest{URL: req.URL}).check(); err != nil {
		s.writeError(w, err)
		return
	}
	v := viewerFrom(r)
	var (
		id  string
		err error
	)
	if req.Transform != nil {
		id, err = v.AddModuleAt(r.Context(), req.URL, *req.Transform)
	} else {
		id, err = v.AddModule(r.Context(), req.URL)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, addResponse{ID: id})
}

func (s *Server) handleRemoveAll(w http.ResponseWriter, r *http.Request) {
	viewerFrom(r).RemoveAll()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	viewerFrom(r).FinalizeLayout()
	w.WriteHeader(http.StatusNoContent)
}

// handleExportLayout answers JSON unless the client asks for YAML via
// ?format=yaml or the Accept header.
func (s *Server) handleExportLayout(w http.ResponseWriter, r *http.Request) {
	l := viewerFrom(r).ExportLayout()
	if r.URL.Query().Get("format") == "yaml" || strings.Contains(r.Header.Get("Accept"), "yaml") {
		data, err := l.YAML()
		if err != nil {
			s.writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(data)
		return
	}
	s.writeJSON(w, http.StatusOK, l)
}

type applyResponse struct {
	IDs []string `json:"ids"`
}

// handleApplyLayout accepts an exported layout in JSON or YAML and adds its
// modules, resolving ids through the catalog.
func (s *Server) handleApplyLayout(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read layout"))
		return
	}
	l, err := viewer.ParseLayout(bytes.TrimSpace(data))
	if err != nil {
		s.writeError(w, err)
		return
	}
	ids, err := viewerFrom(r).ApplyLayout(r.Context(), l, s.resolve)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, applyResponse{IDs: ids})
}

type outlineRequest struct {
	Names []string `json:"names"`
}

func (s *Server) handleSetOutlined(w http.ResponseWriter, r *http.Request) {
	var req outlineRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	viewerFrom(r).SetOutlined(req.Names...)
	w.WriteHeader(http.StatusNoContent)
}

type selectRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	v := viewerFrom(r)
	if err := v.Select(req.ID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v.Toolbar())
}

func (s *Server) handleDeleteSelected(w http.ResponseWriter, r *http.Request) {
	v := viewerFrom(r)
	if err := v.DeleteSelected(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v.Toolbar())
}

type rotateRequest struct {
	DeltaDeg float64 `json:"deltaDeg"`
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	var req rotateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	v := viewerFrom(r)
	if err := v.RotateSelected(req.DeltaDeg); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v.Modules())
}

type nudgeRequest struct {
	StepsX int `json:"stepsX"`
	StepsZ int `json:"stepsZ"`
}

func (s *Server) handleNudge(w http.ResponseWriter, r *http.Request) {
	var req nudgeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	v := viewerFrom(r)
	if err := v.NudgeSelected(req.StepsX, req.StepsZ); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v.Modules())
}

func (s *Server) handleFrameAll(w http.ResponseWriter, r *http.Request) {
	v := viewerFrom(r)
	v.FrameAll()
	s.writeJSON(w, http.StatusOK, v.Camera())
}

func (s *Server) handleToggleDimensions(w http.ResponseWriter, r *http.Request) {
	active := viewerFrom(r).ToggleDimensions()
	s.writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

// pointerRequest replays one input event in viewport pixels.
type pointerRequest struct {
	Type   string  `json:"type"` // down, move, up, wheel, orbit
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button string  `json:"button,omitempty"` // left, middle, right
	Steps  float64 `json:"steps,omitempty"`
	DTheta float64 `json:"dTheta,omitempty"`
	DPhi   float64 `json:"dPhi,omitempty"`
}

func parseButton(s string) (viewer.Button, error) {
	switch s {
	case "", "left":
		return viewer.ButtonLeft, nil
	case "middle":
		return viewer.ButtonMiddle, nil
	case "right":
		return viewer.ButtonRight, nil
	}
	return 0, errors.New(errors.ErrCodeInvalidConfig, "unknown button %q", s)
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	v := viewerFrom(r)
	switch req.Type {
	case "down":
		b, err := parseButton(req.Button)
		if err != nil {
			s.writeError(w, err)
			return
		}
		v.PointerDown(req.X, req.Y, b)
	case "move":
		v.PointerMove(req.X, req.Y)
	case "up":
		v.PointerUp()
	case "wheel":
		v.Wheel(req.Steps)
	case "orbit":
		v.Orbit(req.DTheta, req.DPhi)
	default:
		s.writeError(w, errors.New(errors.ErrCodeInvalidConfig, "unknown pointer event %q", req.Type))
		return
	}
	s.writeJSON(w, http.StatusOK, v.Toolbar())
}

func (s *Server) handleToolbar(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, viewerFrom(r).Toolbar())
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, viewerFrom(r).Overlay())
}

func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, viewerFrom(r).Camera())
}

// settleSteps bounds the frames handleFramePNG runs to let the camera
// springs come to rest.
const settleSteps = 120

// handleFramePNG renders the current state. Without a background ticker
// the route advances frames itself until nothing changes.
func (s *Server) handleFramePNG(w http.ResponseWriter, r *http.Request) {
	v := viewerFrom(r)
	if s.fps == 0 {
		for range settleSteps {
			if !v.Frame(time.Second / 60) {
				break
			}
		}
	}
	var buf bytes.Buffer
	if err := v.EncodePNG(&buf); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}
