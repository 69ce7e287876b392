package metrics

import "github.com/prometheus/client_golang/prometheus"

// WidgetMetrics exposes counters/histograms for the chat widget flows.
type WidgetMetrics struct {
	opensTotal        *prometheus.CounterVec
	closesTotal       *prometheus.CounterVec
	messagesTotal     *prometheus.CounterVec
	submissionsTotal  *prometheus.CounterVec
	submissionLatency prometheus.Histogram
}

func NewWidgetMetrics(reg prometheus.Registerer) *WidgetMetrics {
	m := &WidgetMetrics{
		opensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadchat",
			Subsystem: "widget",
			Name:      "opens_total",
			Help:      "Total widget opens",
		}, []string{"trigger"}),
		closesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadchat",
			Subsystem: "widget",
			Name:      "closes_total",
			Help:      "Total widget closes",
		}, []string{"completed"}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadchat",
			Subsystem: "widget",
			Name:      "messages_total",
			Help:      "Total transcript messages",
		}, []string{"role"}),
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadchat",
			Subsystem: "widget",
			Name:      "submissions_total",
			Help:      "Total lead submission attempts",
		}, []string{"outcome"}),
		submissionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "leadchat",
			Subsystem: "widget",
			Name:      "submission_latency_seconds",
			Help:      "Latency of lead submission calls",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.opensTotal, m.closesTotal, m.messagesTotal, m.submissionsTotal, m.submissionLatency)
	return m
}

func (m *WidgetMetrics) ObserveOpen(trigger string) {
	if m == nil {
		return
	}
	m.opensTotal.WithLabelValues(trigger).Inc()
}

func (m *WidgetMetrics) ObserveClose(completed bool) {
	if m == nil {
		return
	}
	label := "false"
	if completed {
		label = "true"
	}
	m.closesTotal.WithLabelValues(label).Inc()
}

func (m *WidgetMetrics) ObserveMessage(role string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(role).Inc()
}

func (m *WidgetMetrics) ObserveSubmission(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(outcome).Inc()
	m.submissionLatency.Observe(seconds)
}
