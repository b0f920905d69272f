package client

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is a derived view of the accumulated metrics.
type Snapshot struct {
	RequestCount      int64   `json:"requestCount"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
	ErrorRate         float64 `json:"errorRate"`
}

// Metrics accumulates per-attempt counters for one Client. It lives as
// long as the Client and is never reset.
//
// Transport failures increment errorCount without requestCount, so the
// error rate can exceed 1.
type Metrics struct {
	mu                  sync.Mutex
	requestCount        int64
	totalResponseTimeMs float64
	errorCount          int64
}

// recordResponse accounts for an attempt that produced a status code.
func (m *Metrics) recordResponse(d time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount++
	m.totalResponseTimeMs += float64(d) / float64(time.Millisecond)
	if failed {
		m.errorCount++
	}
}

// recordError accounts for a failure that has no measurable response.
func (m *Metrics) recordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount++
}

// Snapshot returns the averages. Both are 0 while no request completed.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{RequestCount: m.requestCount}
	if m.requestCount > 0 {
		s.AvgResponseTimeMs = m.totalResponseTimeMs / float64(m.requestCount)
		s.ErrorRate = float64(m.errorCount) / float64(m.requestCount)
	}
	return s
}

// collectors mirrors the attempt accounting into Prometheus when a
// registerer was supplied.
type collectors struct {
	attempts *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	retries  prometheus.Counter
}

func newCollectors(reg prometheus.Registerer) (*collectors, error) {
	c := &collectors{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restdb",
			Subsystem: "client",
			Name:      "attempts_total",
			Help:      "Network attempts by method and status code",
		}, []string{"method", "code"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restdb",
			Subsystem: "client",
			Name:      "errors_total",
			Help:      "Failed attempts by error kind",
		}, []string{"kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "restdb",
			Subsystem: "client",
			Name:      "attempt_duration_seconds",
			Help:      "Round-trip time of attempts that produced a response",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"method"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "restdb",
			Subsystem: "client",
			Name:      "retries_total",
			Help:      "Attempts scheduled after a 5xx response",
		}),
	}

	var err error
	if c.attempts, err = register(reg, c.attempts); err != nil {
		return nil, err
	}
	if c.errors, err = register(reg, c.errors); err != nil {
		return nil, err
	}
	if c.duration, err = register(reg, c.duration); err != nil {
		return nil, err
	}
	if c.retries, err = register(reg, c.retries); err != nil {
		return nil, err
	}
	return c, nil
}

// register adds col to reg, reusing an identical collector registered by
// another Client on the same registerer.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return col, err
	}
	return col, nil
}

func (c *collectors) observeResponse(method string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.attempts.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.duration.WithLabelValues(method).Observe(d.Seconds())
	if status < 200 || status >= 300 {
		c.errors.WithLabelValues("http").Inc()
	}
}

func (c *collectors) observeTransportError(method string) {
	if c == nil {
		return
	}
	c.attempts.WithLabelValues(method, "none").Inc()
	c.errors.WithLabelValues("network").Inc()
}

func (c *collectors) observeDecodeError() {
	if c == nil {
		return
	}
	c.errors.WithLabelValues("decode").Inc()
}

func (c *collectors) observeRetry() {
	if c == nil {
		return
	}
	c.retries.Inc()
}
