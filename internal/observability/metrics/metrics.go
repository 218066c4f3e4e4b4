// Package metrics exposes prometheus instrumentation for the bot.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// BotMetrics exposes counters/histograms for message routing and dispatch.
type BotMetrics struct {
	inboundTotal    *prometheus.CounterVec
	outboundTotal   *prometheus.CounterVec
	dispatchTotal   *prometheus.CounterVec
	handlerDuration prometheus.Histogram
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reminders",
			Subsystem: "engine",
			Name:      "inbound_total",
			Help:      "Inbound messages by flow and result",
		}, []string{"flow", "result"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reminders",
			Subsystem: "engine",
			Name:      "outbound_total",
			Help:      "Outbound sends by status",
		}, []string{"status"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reminders",
			Subsystem: "dispatch",
			Name:      "messages_total",
			Help:      "Dispatch batch sends by status",
		}, []string{"status"}),
		handlerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reminders",
			Subsystem: "engine",
			Name:      "handler_duration_seconds",
			Help:      "Duration of one inbound-message handling pass",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.dispatchTotal, m.handlerDuration)
	return m
}

func (m *BotMetrics) ObserveInbound(flow, result string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(flow, result).Inc()
}

func (m *BotMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *BotMetrics) ObserveDispatch(status string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(status).Inc()
}

func (m *BotMetrics) ObserveHandlerDuration(seconds float64) {
	if m == nil {
		return
	}
	m.handlerDuration.Observe(seconds)
}
