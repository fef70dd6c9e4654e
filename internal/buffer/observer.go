package buffer

import (
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
)

// Mode names the reason for a slot toggle.
type Mode uint8

const (
	ModeAcquire Mode = iota + 1
	ModeRelease
	// ModeCleanup marks a release triggered by an unreachable Slice.
	ModeCleanup
)

func (m Mode) String() string {
	switch m {
	case ModeAcquire:
		return "acquire"
	case ModeRelease:
		return "release"
	case ModeCleanup:
		return "cleanup"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ToggleEvent records one slot bit flip.
type ToggleEvent struct {
	Index  uint8
	Mode   Mode
	Before uint8
	After  uint8
	At     time.Time
}

func (e ToggleEvent) String() string {
	return fmt.Sprintf("slot=%d mode=%s %08b -> %08b", e.Index, e.Mode, e.Before, e.After)
}

// Observer receives slot toggles. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	OnToggle(ToggleEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ToggleEvent)

func (f ObserverFunc) OnToggle(ev ToggleEvent) { f(ev) }

// Observers fans one toggle out to several observers.
type Observers []Observer

func (o Observers) OnToggle(ev ToggleEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.OnToggle(ev)
		}
	}
}

// History keeps the most recent toggles for debugging pool exhaustion.
type History struct {
	mu    sync.Mutex
	q     *queue.Queue
	limit int
}

// NewHistory keeps at most limit events; older ones are dropped first.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 256
	}
	return &History{q: queue.New(), limit: limit}
}

func (h *History) OnToggle(ev ToggleEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.q.Add(ev)
	for h.q.Length() > h.limit {
		h.q.Remove()
	}
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.q.Length()
}

// Events returns the retained toggles oldest first.
func (h *History) Events() []ToggleEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ToggleEvent, 0, h.q.Length())
	for i := 0; i < h.q.Length(); i++ {
		out = append(out, h.q.Get(i).(ToggleEvent))
	}
	return out
}
