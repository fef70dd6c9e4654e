package observability

import (
	"errors"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/sv2wire/internal/buffer"
	"github.com/danmuck/sv2wire/internal/protocol/codec"
	"github.com/danmuck/sv2wire/internal/protocol/frame"
	"github.com/danmuck/sv2wire/internal/protocol/noise"
	"github.com/danmuck/sv2wire/internal/protocol/session"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sv2wire"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"app", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"app", "method", "path", "status"},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "frames_total",
			Help:      "Frames moved by sessions.",
		},
		[]string{"dir", "kind"},
	)
	framingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "errors_total",
			Help:      "Errors that closed a session.",
		},
		[]string{"dir", "reason"},
	)
	slotToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "slot_toggles_total",
			Help:      "Pool slot bit flips by mode.",
		},
		[]string{"pool", "mode"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, framesTotal, framingErrors, slotToggles)
	})
}

func RecordHTTPRequest(app, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(app, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(app, method, path, statusLabel).Observe(duration.Seconds())
}

// SessionMetrics counts frames and closing errors. It satisfies
// session.Observer.
type SessionMetrics struct{}

var _ session.Observer = SessionMetrics{}

func NewSessionMetrics() SessionMetrics {
	RegisterMetrics()
	return SessionMetrics{}
}

func (SessionMetrics) FrameDone(dir session.Direction, h frame.Header, handshake bool) {
	framesTotal.WithLabelValues(dir.String(), frameKind(h, handshake)).Inc()
}

func (SessionMetrics) FrameFailed(dir session.Direction, err error) {
	framingErrors.WithLabelValues(dir.String(), ErrorReason(err)).Inc()
}

func frameKind(h frame.Header, handshake bool) string {
	switch {
	case handshake:
		return "handshake"
	case h.ChannelMsg():
		return "channel"
	default:
		return "standard"
	}
}

// ErrorReason maps a session error to a low-cardinality label.
func ErrorReason(err error) string {
	switch {
	case errors.Is(err, frame.ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, frame.ErrMalformedHeader):
		return "malformed_header"
	case errors.Is(err, codec.ErrDecrypt):
		return "decrypt"
	case errors.Is(err, noise.ErrConfirmation), errors.Is(err, noise.ErrBadMessage):
		return "handshake"
	case errors.Is(err, noise.ErrNonceExhausted):
		return "nonce_exhausted"
	case errors.Is(err, os.ErrDeadlineExceeded):
		return "timeout"
	case errors.Is(err, io.ErrUnexpectedEOF):
		return "truncated"
	default:
		return "io"
	}
}

// PoolToggles returns a buffer.Observer counting slot flips for the pool
// labelled name.
func PoolToggles(name string) buffer.Observer {
	RegisterMetrics()
	return buffer.ObserverFunc(func(ev buffer.ToggleEvent) {
		slotToggles.WithLabelValues(name, ev.Mode.String()).Inc()
	})
}

// PoolCollector exports a pool's Stats on every scrape.
type PoolCollector struct {
	name string
	pool *buffer.Pool

	slots         *prometheus.Desc
	inUse         *prometheus.Desc
	poolAcquires  *prometheus.Desc
	heapFallbacks *prometheus.Desc
	releases      *prometheus.Desc
}

func NewPoolCollector(name string, pool *buffer.Pool) *PoolCollector {
	labels := prometheus.Labels{"pool": name}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", metric), help, nil, labels)
	}
	return &PoolCollector{
		name:          name,
		pool:          pool,
		slots:         desc("slots", "Configured pool slots."),
		inUse:         desc("slots_in_use", "Slots currently handed out."),
		poolAcquires:  desc("acquires_total", "Acquires served from a slot."),
		heapFallbacks: desc("heap_fallbacks_total", "Acquires served from the heap."),
		releases:      desc("releases_total", "Slots returned to the pool."),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.slots
	ch <- c.inUse
	ch <- c.poolAcquires
	ch <- c.heapFallbacks
	ch <- c.releases
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stats()
	ch <- prometheus.MustNewConstMetric(c.slots, prometheus.GaugeValue, float64(s.Slots))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(s.InUse))
	ch <- prometheus.MustNewConstMetric(c.poolAcquires, prometheus.CounterValue, float64(s.PoolAcquires))
	ch <- prometheus.MustNewConstMetric(c.heapFallbacks, prometheus.CounterValue, float64(s.HeapFallbacks))
	ch <- prometheus.MustNewConstMetric(c.releases, prometheus.CounterValue, float64(s.Releases))
}

// RegisterPool exports pool under name. Registering the same name twice is
// not an error.
func RegisterPool(name string, pool *buffer.Pool) error {
	RegisterMetrics()
	err := prometheus.Register(NewPoolCollector(name, pool))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}
