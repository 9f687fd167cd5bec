package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultPort = 2112

// ErrPortOutOfRange is returned when configured port is not a valid tcp port.
var ErrPortOutOfRange = errors.New("port out of range")

// Config configures the metrics endpoint.
type Config struct {
	Port int `yaml:"port"` // port /metrics is served on, 2112 when zero
}

// Measurements collects measurements for prometheus.
type Measurements struct {
	mux        sync.RWMutex
	factory    promauto.Factory
	registry   *prometheus.Registry
	histograms map[string]prometheus.Observer
	gauges     map[string]prometheus.Gauge
	counters   map[string]prometheus.Counter
}

// New creates Measurements with its own registry.
func New() *Measurements {
	reg := prometheus.NewRegistry()
	return &Measurements{
		factory:    promauto.With(reg),
		registry:   reg,
		histograms: make(map[string]prometheus.Observer),
		gauges:     make(map[string]prometheus.Gauge),
		counters:   make(map[string]prometheus.Counter),
	}
}

// Registry returns the registry metrics are registered in.
func (m *Measurements) Registry() *prometheus.Registry {
	return m.registry
}

// CreateUpdateObservableHistogram creates observable histogram if it does not exist yet.
func (m *Measurements) CreateUpdateObservableHistogram(name, description string) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if _, ok := m.histograms[name]; ok {
		return
	}
	m.histograms[name] = m.factory.NewHistogram(prometheus.HistogramOpts{
		Name:    name,
		Help:    description,
		Buckets: prometheus.ExponentialBuckets(1000, 2, 14),
	})
}

// RecordHistogramTime records duration in microseconds if histogram with given name exists.
func (m *Measurements) RecordHistogramTime(name string, t time.Duration) bool {
	return m.RecordHistogramValue(name, float64(t.Microseconds()))
}

// RecordHistogramValue records histogram value if histogram with given name exists.
func (m *Measurements) RecordHistogramValue(name string, f float64) bool {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if v, ok := m.histograms[name]; ok {
		v.Observe(f)
		return true
	}
	return false
}

// CreateUpdateObservableGauge creates observable gauge if it does not exist yet.
func (m *Measurements) CreateUpdateObservableGauge(name, description string) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if _, ok := m.gauges[name]; ok {
		return
	}
	m.gauges[name] = m.factory.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: description,
	})
}

// SetGauge sets the gauge to the value if gauge with given name exists.
func (m *Measurements) SetGauge(name string, f float64) bool {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if v, ok := m.gauges[name]; ok {
		v.Set(f)
		return true
	}
	return false
}

// SetToCurrentTimeGauge sets the gauge to the current time if gauge with given name exists.
func (m *Measurements) SetToCurrentTimeGauge(name string) bool {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if v, ok := m.gauges[name]; ok {
		v.SetToCurrentTime()
		return true
	}
	return false
}

// CreateUpdateCounter creates counter if it does not exist yet.
func (m *Measurements) CreateUpdateCounter(name, description string) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if _, ok := m.counters[name]; ok {
		return
	}
	m.counters[name] = m.factory.NewCounter(prometheus.CounterOpts{
		Name: name,
		Help: description,
	})
}

// IncrementCounter increments counter if counter with given name exists.
func (m *Measurements) IncrementCounter(name string) bool {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if v, ok := m.counters[name]; ok {
		v.Inc()
		return true
	}
	return false
}

// Run starts the server with prometheus telemetry endpoint serving m.
// The server stops when ctx is done, cancel is called when the server fails.
func (m *Measurements) Run(ctx context.Context, cancel context.CancelFunc, cfg Config) error {
	port := cfg.Port
	if port > 65535 || port < 0 {
		return errors.Join(ErrPortOutOfRange, fmt.Errorf("port range allowed is from 1 to 65535, received %d", port))
	}
	if port == 0 {
		port = defaultPort
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cancel()
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}()

	return nil
}
