package metrics

import (
	"net/http"

	"github.com/ahsanhabibakik/rupomoti/internal/platform/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rupomoti"

// NewRegistry returns a registry with the Go runtime and process collectors
// plus a constant rupomoti_build_info series.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		newBuildInfo(version.Get()),
	)
	return reg
}

func newBuildInfo(v version.Info) prometheus.Collector {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information of the running binary. Always 1.",
		ConstLabels: prometheus.Labels{
			"version":    v.Version,
			"commit":     v.Commit,
			"go_version": v.GoVersion,
		},
	})
	g.Set(1)
	return g
}

// Handler serves the registry, including its own scrape error counter.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry:          reg,
		EnableOpenMetrics: true,
	}))
}
