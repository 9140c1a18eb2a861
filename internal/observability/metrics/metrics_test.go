package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func findMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func TestConversationMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)

	m.ObserveWebhook("message.add", "queued")
	m.ObserveTurn("warm", "text")
	m.ObserveTurn("", "ignored")
	m.ObserveCategory("warm")
	m.ObserveCRMAction("move", nil)
	m.ObserveCRMAction("stop_tag", errors.New("boom"))
	m.ObserveSuppressed()
	m.ObserveSuppressed()
	m.ObserveCompletion("generate", 1500*time.Millisecond, nil)
	m.ObserveMessageLatency(2 * time.Second)

	suppressed := findMetric(t, reg, "alejandria_leads_suppressed_total")
	if got := suppressed.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected 2 suppressed, got %v", got)
	}

	actions := findMetric(t, reg, "alejandria_leads_crm_actions_total")
	if len(actions.GetMetric()) != 2 {
		t.Fatalf("expected ok and error series, got %d", len(actions.GetMetric()))
	}

	turns := findMetric(t, reg, "alejandria_conversation_turns_total")
	found := false
	for _, metric := range turns.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "tag" && label.GetValue() == "none" {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected empty tag to be reported as none")
	}

	latency := findMetric(t, reg, "alejandria_conversation_completion_latency_seconds")
	if got := latency.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Fatalf("expected 1 completion sample, got %d", got)
	}
}

func TestConversationMetricsNilSafe(t *testing.T) {
	var m *ConversationMetrics
	m.ObserveWebhook("event", "status")
	m.ObserveTurn("cold", "text")
	m.ObserveCategory("cold")
	m.ObserveCRMAction("move", nil)
	m.ObserveSuppressed()
	m.ObserveCompletion("generate", time.Second, nil)
	m.ObserveMessageLatency(time.Second)
}
