package viewer

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/taigrr/plinth/pkg/math3d"
)

// EventKind names a viewer notification.
type EventKind int

const (
	EventViewerReady EventKind = iota
	EventEnvironmentLoaded
	EventEnvironmentError
	EventModelLoaded
	EventModelError
	EventPick
	EventCameraChange
)

var eventNames = [...]string{
	EventViewerReady:       "viewer-ready",
	EventEnvironmentLoaded: "environment-loaded",
	EventEnvironmentError:  "environment-error",
	EventModelLoaded:       "model-loaded",
	EventModelError:        "model-error",
	EventPick:              "pick",
	EventCameraChange:      "camera-change",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// CameraState describes the orbit camera at the time of an event.
type CameraState struct {
	Position math3d.Vec3 `json:"position"`
	Target   math3d.Vec3 `json:"target"`
	Radius   float64     `json:"radius"`
	ThetaDeg float64     `json:"thetaDeg"`
	PhiDeg   float64     `json:"phiDeg"`
}

// Event is one notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind     EventKind    `json:"type"`
	MountID  string       `json:"mountId"`
	URL      string       `json:"url,omitempty"`
	Error    string       `json:"error,omitempty"`
	ModuleID string       `json:"moduleId,omitempty"`
	Point    *math3d.Vec3 `json:"point,omitempty"`
	Camera   *CameraState `json:"camera,omitempty"`
}

// eventBus fans events out to buffered subscriber channels. Slow
// subscribers lose events rather than stall the viewer.
type eventBus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	buf    int
	ready  *Event
	closed bool
	log    *zap.Logger
}

func newEventBus(buf int, log *zap.Logger) *eventBus {
	return &eventBus{subs: make(map[int]chan Event), buf: buf, log: log}
}

// subscribe registers a channel. A subscriber that joins after the viewer
// became ready still receives the ready event first.
func (b *eventBus) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, max(b.buf, 1))
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	if b.ready != nil {
		ch <- *b.ready
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *eventBus) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if e.Kind == EventViewerReady {
		b.ready = &e
	}
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.log.Debug("event dropped",
				zap.Stringer("kind", e.Kind),
				zap.Int("subscriber", id))
		}
	}
}

func (b *eventBus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
