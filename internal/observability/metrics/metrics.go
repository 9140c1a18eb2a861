package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConversationMetrics exposes counters/histograms for the sales conversation flow.
type ConversationMetrics struct {
	webhookTotal      *prometheus.CounterVec
	turnsTotal        *prometheus.CounterVec
	categoriesTotal   *prometheus.CounterVec
	crmActionsTotal   *prometheus.CounterVec
	suppressedTotal   prometheus.Counter
	completionLatency *prometheus.HistogramVec
	webhookLatency    prometheus.Histogram
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alejandria",
			Subsystem: "kommo",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound Kommo webhooks",
		}, []string{"event_type", "status"}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alejandria",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Processed turns by lead tag and result type",
		}, []string{"tag", "result"}),
		categoriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alejandria",
			Subsystem: "leads",
			Name:      "categories_total",
			Help:      "Lead classifications by category",
		}, []string{"category"}),
		crmActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alejandria",
			Subsystem: "leads",
			Name:      "crm_actions_total",
			Help:      "CRM writes by action and status",
		}, []string{"action", "status"}),
		suppressedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alejandria",
			Subsystem: "leads",
			Name:      "suppressed_total",
			Help:      "Inbound messages ignored because the lead carries the STOP tag",
		}),
		completionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "alejandria",
			Subsystem: "conversation",
			Name:      "completion_latency_seconds",
			Help:      "Latency of LLM completions",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"kind", "status"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "alejandria",
			Subsystem: "kommo",
			Name:      "message_latency_seconds",
			Help:      "End-to-end latency of handling one inbound message",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookTotal, m.turnsTotal, m.categoriesTotal, m.crmActionsTotal, m.suppressedTotal, m.completionLatency, m.webhookLatency)
	return m
}

func (m *ConversationMetrics) ObserveWebhook(eventType, status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(eventType, status).Inc()
}

func (m *ConversationMetrics) ObserveTurn(tag, result string) {
	if m == nil {
		return
	}
	if tag == "" {
		tag = "none"
	}
	m.turnsTotal.WithLabelValues(tag, result).Inc()
}

func (m *ConversationMetrics) ObserveCategory(category string) {
	if m == nil {
		return
	}
	m.categoriesTotal.WithLabelValues(category).Inc()
}

func (m *ConversationMetrics) ObserveCRMAction(action string, err error) {
	if m == nil {
		return
	}
	m.crmActionsTotal.WithLabelValues(action, statusLabel(err)).Inc()
}

func (m *ConversationMetrics) ObserveSuppressed() {
	if m == nil {
		return
	}
	m.suppressedTotal.Inc()
}

// ObserveCompletion satisfies conversation.CompletionObserver.
func (m *ConversationMetrics) ObserveCompletion(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.completionLatency.WithLabelValues(kind, statusLabel(err)).Observe(d.Seconds())
}

func (m *ConversationMetrics) ObserveMessageLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.webhookLatency.Observe(d.Seconds())
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
