package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusProvider adapts Provider to github.com/prometheus/client_golang,
// registering one prometheus.Counter/Gauge/Histogram per distinct
// instrument name on first use, mirroring BasicProvider's create-once-by-name
// behavior but backing it with real Prometheus collectors instead of plain
// atomics.
type PrometheusProvider struct {
	reg *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	updowns    map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram
}

// NewPrometheusProvider constructs a PrometheusProvider registering its
// instruments against reg. If reg is nil, prometheus.NewRegistry() is used.
func NewPrometheusProvider(reg *prometheus.Registry) *PrometheusProvider {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &PrometheusProvider{
		reg:        reg,
		counters:   make(map[string]prometheus.Counter),
		updowns:    make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// Registry returns the underlying prometheus.Registry, for wiring into an
// HTTP handler via promhttp.HandlerFor.
func (p *PrometheusProvider) Registry() *prometheus.Registry { return p.reg }

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

func (p *PrometheusProvider) Counter(name string, opts ...InstrumentOption) Counter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return prometheusCounter{c}
	}
	cfg := applyOptions(opts)
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        promName(name),
		Help:        helpOrDefault(cfg.Description, name),
		ConstLabels: prometheus.Labels(cfg.Attributes),
	})
	p.reg.MustRegister(c)
	p.counters[name] = c
	return prometheusCounter{c}
}

func (p *PrometheusProvider) UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.updowns[name]; ok {
		return prometheusGauge{g}
	}
	cfg := applyOptions(opts)
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        promName(name),
		Help:        helpOrDefault(cfg.Description, name),
		ConstLabels: prometheus.Labels(cfg.Attributes),
	})
	p.reg.MustRegister(g)
	p.updowns[name] = g
	return prometheusGauge{g}
}

func (p *PrometheusProvider) Histogram(name string, opts ...InstrumentOption) Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.histograms[name]; ok {
		return prometheusHistogram{h}
	}
	cfg := applyOptions(opts)
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        promName(name),
		Help:        helpOrDefault(cfg.Description, name),
		ConstLabels: prometheus.Labels(cfg.Attributes),
	})
	p.reg.MustRegister(h)
	p.histograms[name] = h
	return prometheusHistogram{h}
}

func helpOrDefault(desc, name string) string {
	if desc != "" {
		return desc
	}
	return name
}

type prometheusCounter struct{ c prometheus.Counter }

func (p prometheusCounter) Add(n int64) { p.c.Add(float64(n)) }

type prometheusGauge struct{ g prometheus.Gauge }

func (p prometheusGauge) Add(n int64) { p.g.Add(float64(n)) }

type prometheusHistogram struct{ h prometheus.Histogram }

func (p prometheusHistogram) Record(v float64) { p.h.Observe(v) }
