// Package metrics owns the private Prometheus registry served on /metrics.
// Init binds the tiling, render and persistence instruments to it.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/aoi-tiling/internal/core/observability"
)

type BuildInfo struct {
	Version   string
	Revision  string
	BuildDate string
}

type Config struct {
	Enabled bool
	Addr    string
	Path    string
	Build   BuildInfo

	// configured persistence driver and chunk sink, reported on tiling_server_info
	PersistBackend string
	StreamSink     string
}

type Provider struct {
	cfg  Config
	reg  *prometheus.Registry
	info *prometheus.GaugeVec
}

func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	info := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tiling_server_info",
			Help: "Build and wiring of this tiling server (value is always 1).",
		},
		[]string{"version", "revision", "build_date", "persist_backend", "stream_sink"},
	)
	reg.MustRegister(info)

	if cfg.Build.Version == "" {
		cfg.Build.Version = "dev"
	}
	if cfg.PersistBackend == "" {
		cfg.PersistBackend = "file"
	}
	if cfg.StreamSink == "" {
		cfg.StreamSink = "none"
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	p := &Provider{cfg: cfg, reg: reg, info: info}
	p.setInfo()

	observability.Init(reg, cfg.Enabled)
	return p
}

// SetPersistBackend reports the backend actually serving snapshots, which
// differs from the configured one after a startup fallback.
func (p *Provider) SetPersistBackend(name string) {
	p.cfg.PersistBackend = name
	p.setInfo()
}

func (p *Provider) setInfo() {
	v := p.cfg.Build
	p.info.Reset()
	p.info.WithLabelValues(v.Version, v.Revision, v.BuildDate, p.cfg.PersistBackend, p.cfg.StreamSink).Set(1)
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

// Path is where the handler is mounted, "/metrics" unless configured.
func (p *Provider) Path() string { return p.cfg.Path }

// Addr is the dedicated metrics listener; empty means share the API listener.
func (p *Provider) Addr() string { return p.cfg.Addr }

func (p *Provider) Enabled() bool { return p.cfg.Enabled }

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }
