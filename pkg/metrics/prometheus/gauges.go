package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mezzofs/mezzofs/pkg/admission"
	"github.com/mezzofs/mezzofs/pkg/metrics"
	"github.com/mezzofs/mezzofs/pkg/nashealth"
)

// RegisterAdmissionMetrics exports the admission budget as gauges
// sampled at scrape time. No-op when metrics are disabled.
func RegisterAdmissionMetrics(c *admission.Controller) {
	if !metrics.IsEnabled() {
		return
	}

	reg := metrics.GetRegistry()

	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mezzofs_admission_active_sessions",
		Help: "Multipart upload sessions currently holding admission budget",
	}, func() float64 {
		return float64(c.Stats().ActiveSessions)
	})
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mezzofs_admission_inflight_bytes",
		Help: "Declared bytes of open multipart sessions",
	}, func() float64 {
		return float64(c.Stats().TotalUploadBytes)
	})
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mezzofs_admission_waiting_tickets",
		Help: "Tickets queued behind the admission budget",
	}, func() float64 {
		return float64(c.Stats().WaitingTickets)
	})
}

// RegisterHealthMetrics exports the NAS health state: 0 healthy,
// 1 degraded, 2 unhealthy. No-op when metrics are disabled.
func RegisterHealthMetrics(h *nashealth.Cache) {
	if !metrics.IsEnabled() {
		return
	}

	promauto.With(metrics.GetRegistry()).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mezzofs_nas_health_state",
		Help: "NAS health: 0 healthy, 1 degraded, 2 unhealthy",
	}, func() float64 {
		switch h.Get().State {
		case nashealth.StateHealthy:
			return 0
		case nashealth.StateDegraded:
			return 1
		default:
			return 2
		}
	})
}
