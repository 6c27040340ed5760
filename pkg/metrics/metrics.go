package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readerhub_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "readerhub_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	BookingTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readerhub_booking_transitions_total",
			Help: "Booking lifecycle transitions by resulting status",
		},
		[]string{"status"},
	)

	SlotConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "readerhub_slot_conflicts_total",
			Help: "Booking attempts rejected because a slot was already held",
		},
	)

	SlotsReleasedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readerhub_slots_released_total",
			Help: "Slots returned to the open pool",
		},
		[]string{"reason"},
	)

	SweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readerhub_sweep_runs_total",
			Help: "Expiry sweeps by outcome",
		},
		[]string{"outcome"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "readerhub_sweep_duration_seconds",
			Help:    "Duration of one expiry sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	CalendarFeedFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readerhub_calendar_feed_fetches_total",
			Help: "External calendar feed fetches by result",
		},
		[]string{"result"},
	)

	PaymentEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readerhub_payment_events_total",
			Help: "Payment provider events by type and handling result",
		},
		[]string{"source", "type", "result"},
	)

	KafkaMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readerhub_kafka_messages_total",
			Help: "Kafka messages produced or consumed by topic and result",
		},
		[]string{"direction", "topic", "result"},
	)

	KafkaMessageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "readerhub_kafka_message_duration_seconds",
			Help:    "Time spent publishing or handling one Kafka message",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"direction", "topic"},
	)
)

func RecordHTTPRequest(method, route, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration)
}

func RecordBookingTransition(status string) {
	BookingTransitionsTotal.WithLabelValues(status).Inc()
}

func RecordSlotConflict() {
	SlotConflictsTotal.Inc()
}

func RecordSlotsReleased(reason string, n int64) {
	if n > 0 {
		SlotsReleasedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

func RecordSweep(outcome string, seconds float64) {
	SweepRunsTotal.WithLabelValues(outcome).Inc()
	SweepDuration.Observe(seconds)
}

func RecordFeedFetch(result string) {
	CalendarFeedFetchesTotal.WithLabelValues(result).Inc()
}

func RecordPaymentEvent(source, eventType, result string) {
	PaymentEventsTotal.WithLabelValues(source, eventType, result).Inc()
}

func RecordKafkaMessage(direction, topic, result string, seconds float64) {
	KafkaMessagesTotal.WithLabelValues(direction, topic, result).Inc()
	KafkaMessageDuration.WithLabelValues(direction, topic).Observe(seconds)
}
