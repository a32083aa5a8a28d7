package supervisor

import "github.com/prometheus/client_golang/prometheus"

var (
	startsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vllmd",
		Subsystem: "supervisor",
		Name:      "model_starts_total",
		Help:      "Total accepted model start requests",
	})

	startFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vllmd",
		Subsystem: "supervisor",
		Name:      "model_start_failures_total",
		Help:      "Total startups that ended in an error status",
	})

	stopsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vllmd",
		Subsystem: "supervisor",
		Name:      "model_stops_total",
		Help:      "Total running instances stopped on request",
	})

	runningGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vllmd",
		Subsystem: "supervisor",
		Name:      "instances_running",
		Help:      "Instances currently committed to running",
	})
)

func init() {
	prometheus.MustRegister(startsTotal, startFailuresTotal, stopsTotal, runningGauge)
}
