package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	QuotaReservations *prometheus.CounterVec
	ProviderRequests  *prometheus.CounterVec
	PromptJobs        *prometheus.CounterVec
	FeedbackTriggers  *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QuotaReservations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_reservations_total",
			Help:      "Conversation-minute reservations by outcome.",
		}, []string{"outcome"}),
		ProviderRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Session provider calls by operation and status class.",
		}, []string{"operation", "status"}),
		PromptJobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_jobs_total",
			Help:      "Prompt generation jobs by outcome.",
		}, []string{"outcome"}),
		FeedbackTriggers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_triggers_total",
			Help:      "Feedback processing hand-offs by outcome.",
		}, []string{"outcome"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Conversations started and not yet ended by this process.",
		}),
	}
}

func (m *Metrics) QuotaReservation(outcome string) {
	if m == nil {
		return
	}
	m.QuotaReservations.WithLabelValues(outcome).Inc()
}

// ProviderRequest records a provider call; status 0 means transport error.
func (m *Metrics) ProviderRequest(operation string, status int) {
	if m == nil {
		return
	}
	class := "error"
	if status > 0 {
		class = strconv.Itoa(status/100) + "xx"
	}
	m.ProviderRequests.WithLabelValues(operation, class).Inc()
}

func (m *Metrics) PromptJob(outcome string) {
	if m == nil {
		return
	}
	m.PromptJobs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FeedbackTrigger(outcome string) {
	if m == nil {
		return
	}
	m.FeedbackTriggers.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
