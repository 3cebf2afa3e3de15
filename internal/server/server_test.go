package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taigrr/plinth/pkg/errors"
	"github.com/taigrr/plinth/pkg/fetch"
	"github.com/taigrr/plinth/pkg/math3d"
	"github.com/taigrr/plinth/pkg/models"
	"github.com/taigrr/plinth/pkg/viewer"
)

// writeCube saves a 1m cube resting on the ground as dir/name.glb.
func writeCube(t *testing.T, dir, name string) string {
	t.Helper()
	box := models.NewBox("Cube", math3d.BoxFromCenterSize(math3d.V3(0, 0.5, 0), math3d.V3(1, 1, 1)))
	data, err := models.EncodeGLB(models.NewModel(name, box))
	require.NoError(t, err)

	path := filepath.Join(dir, name+".glb")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

type harness struct {
	t       *testing.T
	srv     *Server
	ts      *httptest.Server
	catalog string
	cube    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	catalog := t.TempDir()
	cube := writeCube(t, catalog, "cube")

	base := viewer.DefaultConfig("base")
	base.Width, base.Height = 160, 90
	base.Shadow.Resolution = 32
	base.AllowEmpty = true

	srv := New(
		WithBaseConfig(base),
		WithFetcher(fetch.New(fetch.WithRetry(1, 0))),
		WithCatalog(catalog),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return &harness{t: t, srv: srv, ts: ts, catalog: catalog, cube: cube}
}

func (h *harness) do(method, path string, body any) (*http.Response, []byte) {
	h.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	case []byte:
		r = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(h.t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, r)
	require.NoError(h.t, err)
	resp, err := h.ts.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp, data
}

func (h *harness) mount(id string) {
	h.t.Helper()
	resp, body := h.do(http.MethodPost, "/mounts", map[string]any{"mountId": id})
	require.Equal(h.t, http.StatusCreated, resp.StatusCode, string(body))
}

func (h *harness) addAt(mount string, x float64) string {
	h.t.Helper()
	resp, body := h.do(http.MethodPost, "/mounts/"+mount+"/modules", map[string]any{
		"url":       h.cube,
		"transform": map[string]any{"position": map[string]float64{"x": x}, "rotationYDeg": 0},
	})
	require.Equal(h.t, http.StatusCreated, resp.StatusCode, string(body))
	var out addResponse
	require.NoError(h.t, json.Unmarshal(body, &out))
	return out.ID
}

func TestCreateMount(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(http.MethodPost, "/mounts", map[string]any{"mountId": "showroom"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created mountResponse
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "showroom", created.MountID)
	assert.Equal(t, viewer.OverlayReady, created.Overlay.Kind)

	resp, _ = h.do(http.MethodPost, "/mounts", map[string]any{"mountId": "showroom"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "duplicate mount")

	resp, body = h.do(http.MethodPost, "/mounts", map[string]any{"fov": 500})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "INVALID_CONFIG")

	resp, _ = h.do(http.MethodPost, "/mounts", `{"noSuchTunable": 1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = h.do(http.MethodPost, "/mounts", "{}")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created.MountID, "generated id")

	assert.ElementsMatch(t, []string{"showroom", created.MountID}, h.srv.Mounts())

	resp, _ = h.do(http.MethodGet, "/mounts/nope/modules", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestModuleRoutes(t *testing.T) {
	h := newHarness(t)
	h.mount("m1")

	resp, body := h.do(http.MethodPost, "/mounts/m1/modules", map[string]any{"url": h.cube})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	first := h.addAt("m1", 3)

	resp, body = h.do(http.MethodGet, "/mounts/m1/modules", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mods []viewer.ModuleInfo
	require.NoError(t, json.Unmarshal(body, &mods))
	require.Len(t, mods, 2)

	resp, body = h.do(http.MethodDelete, "/mounts/m1/selection", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "NO_SELECTION")

	resp, body = h.do(http.MethodPut, "/mounts/m1/selection", map[string]string{"id": first})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tb viewer.ToolbarState
	require.NoError(t, json.Unmarshal(body, &tb))
	assert.Equal(t, first, tb.Selected)
	assert.True(t, tb.Delete)

	resp, _ = h.do(http.MethodPost, "/mounts/m1/selection/rotate", map[string]float64{"deltaDeg": 90})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = h.do(http.MethodGet, "/mounts/m1/layout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var l viewer.Layout
	require.NoError(t, json.Unmarshal(body, &l))
	require.Len(t, l.Modules, 2)
	assert.Equal(t, "cube", l.Modules[1].ID)
	assert.InDelta(t, 3, l.Modules[1].Position.X, 1e-9)
	assert.InDelta(t, 90, l.Modules[1].Rotation, 1e-9)

	resp, body = h.do(http.MethodGet, "/mounts/m1/layout?format=yaml", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "id: cube")

	resp, _ = h.do(http.MethodDelete, "/mounts/m1/selection", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(http.MethodDelete, "/mounts/m1/modules", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, body = h.do(http.MethodGet, "/mounts/m1/layout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"modules":[]}`, string(body))
}

func TestAddFailures(t *testing.T) {
	h := newHarness(t)
	h.mount("m1")

	resp, _ := h.do(http.MethodPost, "/mounts/m1/modules", map[string]any{"url": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := h.do(http.MethodPost, "/mounts/m1/modules",
		map[string]any{"url": filepath.Join(h.catalog, "missing.glb")})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, string(body))

	resp, body = h.do(http.MethodGet, "/mounts/m1/overlay", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ov viewer.Overlay
	require.NoError(t, json.Unmarshal(body, &ov))
	assert.Equal(t, viewer.OverlayError, ov.Kind)
	assert.True(t, ov.CanRetry)
}

func TestApplyLayoutAcrossMounts(t *testing.T) {
	h := newHarness(t)
	h.mount("a")
	h.mount("b")
	h.addAt("a", 0)
	h.addAt("a", 2.5)

	_, exported := h.do(http.MethodGet, "/mounts/a/layout?format=yaml", nil)
	resp, body := h.do(http.MethodPut, "/mounts/b/layout", exported)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var applied applyResponse
	require.NoError(t, json.Unmarshal(body, &applied))
	assert.Len(t, applied.IDs, 2)

	_, fromA := h.do(http.MethodGet, "/mounts/a/layout", nil)
	_, fromB := h.do(http.MethodGet, "/mounts/b/layout", nil)
	assert.JSONEq(t, string(fromA), string(fromB))

	resp, _ = h.do(http.MethodPut, "/mounts/b/layout", `{"modules":[{"id":"ghost"}]}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(http.MethodPut, "/mounts/b/layout", `not a layout`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestFramePNG(t *testing.T) {
	h := newHarness(t)
	h.mount("m1")
	h.addAt("m1", 0)

	resp, body := h.do(http.MethodGet, "/mounts/m1/frame.png", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 160, img.Bounds().Dx())
	assert.Equal(t, 90, img.Bounds().Dy())
}

func TestPointerRoute(t *testing.T) {
	h := newHarness(t)
	h.mount("m1")

	resp, _ := h.do(http.MethodPost, "/mounts/m1/pointer", map[string]any{"type": "wheel", "steps": 1})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = h.do(http.MethodPost, "/mounts/m1/pointer", map[string]any{"type": "down", "button": "thumb"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = h.do(http.MethodPost, "/mounts/m1/pointer", map[string]any{"type": "hover"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type wireEvent struct {
	Type     string `json:"type"`
	MountID  string `json:"mountId"`
	URL      string `json:"url"`
	ModuleID string `json:"moduleId"`
}

func TestEventStream(t *testing.T) {
	h := newHarness(t)
	h.mount("m1")

	wsURL := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/mounts/m1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var e wireEvent
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, "viewer-ready", e.Type)
	assert.Equal(t, "m1", e.MountID)

	resp, _ := h.do(http.MethodPut, "/mounts/m1/model", map[string]string{"url": h.cube})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, "model-loaded", e.Type)
	assert.Equal(t, h.cube, e.URL)

	resp, _ = h.do(http.MethodDelete, "/mounts/m1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	resp, _ = h.do(http.MethodGet, "/mounts/m1/overlay", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFrameTicker(t *testing.T) {
	srv := New(WithFrameRate(120), WithFetcher(fetch.New()))
	cfg := viewer.DefaultConfig("tick")
	cfg.Width, cfg.Height = 64, 36
	cfg.Shadow.Resolution = 16
	cfg.AllowEmpty = true
	v, err := srv.Create(context.Background(), cfg)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return v.Stats().MainPasses > 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, srv.Dispose("tick"))
	assert.False(t, srv.Dispose("tick"))
	srv.Close()
	_, err = srv.Create(context.Background(), cfg)
	assert.True(t, errors.Is(err, errors.ErrCodeDisposed))
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errors.New(errors.ErrCodeInvalidConfig, "x"), http.StatusBadRequest},
		{errors.New(errors.ErrCodeNotFound, "x"), http.StatusNotFound},
		{errors.New(errors.ErrCodeDecodeFailed, "x"), http.StatusUnprocessableEntity},
		{errors.New(errors.ErrCodeFetchFailed, "x"), http.StatusBadGateway},
		{errors.New(errors.ErrCodeDisposed, "x"), http.StatusGone},
		{errors.New(errors.ErrCodeNoSelection, "x"), http.StatusConflict},
		{context.Canceled, http.StatusConflict},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), "%v", tc.err)
	}
}

func TestCatalogResolver(t *testing.T) {
	resolve := CatalogResolver("https://cdn.example.com/modules/")
	url, err := resolve("sofa-left")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/modules/sofa-left.glb", url)

	_, err = CatalogResolver("")("sofa-left")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestSetBaseConfigAffectsNewMounts(t *testing.T) {
	h := newHarness(t)
	h.mount("before")

	cfg := viewer.DefaultConfig("ignored")
	cfg.Width, cfg.Height = 96, 54
	cfg.Shadow.Resolution = 16
	cfg.AllowEmpty = true
	h.srv.SetBaseConfig(cfg)
	h.mount("after")

	before, ok := h.srv.Get("before")
	require.True(t, ok)
	after, ok := h.srv.Get("after")
	require.True(t, ok)
	w, _ := before.Size()
	assert.Equal(t, 160, w)
	w, hgt := after.Size()
	assert.Equal(t, 96, w)
	assert.Equal(t, 54, hgt)
}
