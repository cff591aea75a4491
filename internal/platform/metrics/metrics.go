// Package metrics exposes the process Prometheus registry. Collectors are
// declared with promauto next to the code they measure.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "retireplan_build_info",
	Help: "Build metadata; always 1",
}, []string{"version"})

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo records the running version.
func SetBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}
