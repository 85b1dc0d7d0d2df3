package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics counts business outcomes that do not fail a request but
// still need attention.
type WorkflowMetrics struct {
	stockFailures   *prometheus.CounterVec
	ordersCreated   prometheus.Counter
	returnsRequests prometheus.Counter
	itemsSkipped    prometheus.Counter
	analyticsEvents *prometheus.CounterVec
}

// NewWorkflowMetrics registers the workflow counters on reg. A nil reg yields
// a no-op collector.
func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	if reg == nil {
		return &WorkflowMetrics{}
	}
	m := &WorkflowMetrics{
		stockFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_adjustment_failures_total",
			Help:      "Stock adjustments that failed during order status transitions.",
		}, []string{"direction"}),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders committed.",
		}),
		returnsRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "returns_requested_total",
			Help:      "Return requests committed.",
		}),
		itemsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_items_skipped_total",
			Help:      "Order items skipped because they could not be parsed.",
		}),
		analyticsEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_events_total",
			Help:      "Events consumed by the analytics worker by outcome.",
		}, []string{"event_type", "outcome"}),
	}
	reg.MustRegister(m.stockFailures, m.ordersCreated, m.returnsRequests, m.itemsSkipped, m.analyticsEvents)
	return m
}

// IncStockFailure records a failed adjustment; direction is "decrement" or "restore".
func (m *WorkflowMetrics) IncStockFailure(direction string) {
	if m == nil || m.stockFailures == nil {
		return
	}
	m.stockFailures.WithLabelValues(normalizeLabel(direction)).Inc()
}

func (m *WorkflowMetrics) IncOrderCreated() {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *WorkflowMetrics) AddItemsSkipped(n int) {
	if m == nil || m.itemsSkipped == nil || n <= 0 {
		return
	}
	m.itemsSkipped.Add(float64(n))
}

func (m *WorkflowMetrics) IncReturnRequested() {
	if m == nil || m.returnsRequests == nil {
		return
	}
	m.returnsRequests.Inc()
}

// IncAnalyticsEvent records an analytics delivery by outcome: handled,
// skipped, duplicate, malformed or failed.
func (m *WorkflowMetrics) IncAnalyticsEvent(eventType, outcome string) {
	if m == nil || m.analyticsEvents == nil {
		return
	}
	m.analyticsEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
