package rpc

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aegis-agent/aegis/internal/experiment"
)

// RegisterMetrics wires the server's live gauges into the default
// Prometheus registry. Call once, after New, before Start.
func (s *Server) RegisterMetrics() {
	inFlight := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "aegis_dispatch_pool_in_flight",
		Help: "Worker pool slots currently claimed by a running task.",
	}, func() float64 { return float64(s.dispatcher.InFlight()) })

	width := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "aegis_dispatch_pool_width",
		Help: "Worker pool's configured concurrency cap.",
	}, func() float64 { return float64(s.dispatcher.Width()) })

	activeExperiments := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "aegis_experiments_active",
		Help: "Experiments currently in the RUNNING state.",
	}, func() float64 {
		n := 0
		for _, rec := range s.registry.List() {
			if rec.State == experiment.StateRunning {
				n++
			}
		}
		return float64(n)
	})

	prometheus.MustRegister(inFlight, width, activeExperiments)
}
