package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SubmissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "regflow_submissions_total",
		Help: "Form submissions accepted.",
	})
	PaymentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "regflow_payments_created_total",
		Help: "Payments created by rule matches.",
	})
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regflow_notifications_total",
		Help: "Notification intents published, by result.",
	}, []string{"result"})
	SweepTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regflow_sweep_transitions_total",
		Help: "Payment transitions applied by the reconciliation sweep, by outcome.",
	}, []string{"outcome"})
	GatewayErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "regflow_gateway_errors_total",
		Help: "Failed or timed-out gateway status queries.",
	})
)

// Handler serves the default registry for the /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
