package viewer

import (
	"context"
	"fmt"
	"math"
)

// OverlayKind selects what a front-end shows on top of the viewport.
type OverlayKind int

const (
	OverlayNone OverlayKind = iota
	OverlayReady
	OverlayLoading
	OverlayError
)

func (k OverlayKind) String() string {
	switch k {
	case OverlayReady:
		return "ready"
	case OverlayLoading:
		return "loading"
	case OverlayError:
		return "error"
	default:
		return "none"
	}
}

// MarshalText encodes the kind by name.
func (k OverlayKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name; unknown names are an error.
func (k *OverlayKind) UnmarshalText(b []byte) error {
	for _, c := range []OverlayKind{OverlayNone, OverlayReady, OverlayLoading, OverlayError} {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown overlay kind %q", b)
}

// Overlay is the in-viewport status. Front-ends draw it; the viewer never
// draws it into the framebuffer.
type Overlay struct {
	Kind     OverlayKind `json:"kind"`
	Message  string      `json:"message,omitempty"`
	Progress int         `json:"progress,omitempty"` // 0-100 while loading
	CanRetry bool        `json:"canRetry,omitempty"`
}

const readyMessage = "Ready to configure"

// retryFunc re-issues the load that produced an error overlay.
type retryFunc func(ctx context.Context) error

func (v *Viewer) showReady() {
	if v.overlay.Kind == OverlayError {
		return
	}
	v.overlay = Overlay{Kind: OverlayReady, Message: readyMessage}
}

func (v *Viewer) hideReady() {
	if v.overlay.Kind == OverlayReady {
		v.overlay = Overlay{}
	}
}

func (v *Viewer) showLoading(msg string) {
	v.overlay = Overlay{Kind: OverlayLoading, Message: msg}
}

// setProgress maps a byte count onto the loading bar. Unknown totals nudge
// the bar forward without reaching the end.
func (v *Viewer) setProgress(loaded, total int64) {
	if v.overlay.Kind != OverlayLoading {
		return
	}
	if total > 0 {
		pct := int(math.Round(float64(loaded) / float64(total) * 100))
		v.overlay.Progress = max(5, min(100, pct))
		return
	}
	v.overlay.Progress = min(90, v.overlay.Progress+5)
}

func (v *Viewer) hideLoading() {
	if v.overlay.Kind == OverlayLoading {
		v.overlay = Overlay{}
	}
}

func (v *Viewer) showError(msg string, retry retryFunc) {
	v.overlay = Overlay{Kind: OverlayError, Message: msg, CanRetry: retry != nil}
	v.retry = retry
}

func (v *Viewer) hideError() {
	if v.overlay.Kind == OverlayError {
		v.overlay = Overlay{}
	}
	v.retry = nil
}

// Overlay returns the current overlay state.
func (v *Viewer) Overlay() Overlay {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.overlay
}

// Retry re-issues the load behind the current error overlay. It is a no-op
// when no error is showing.
func (v *Viewer) Retry(ctx context.Context) error {
	v.mu.Lock()
	retry := v.retry
	if retry != nil {
		v.hideError()
	}
	v.mu.Unlock()
	if retry == nil {
		return nil
	}
	return retry(ctx)
}
