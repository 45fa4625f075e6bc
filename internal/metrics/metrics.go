package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	appointmentCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotline",
			Name:      "appointment_created_total",
			Help:      "Count of appointments created by status.",
		},
		[]string{"status"},
	)

	appointmentCanceled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotline",
			Name:      "appointment_canceled_total",
			Help:      "Count of appointments canceled.",
		},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotline",
			Name:      "booking_conflict_total",
			Help:      "Count of writes rejected by the store's overlap guarantee.",
		},
	)

	slotQueries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotline",
			Name:      "slot_query_total",
			Help:      "Count of availability slot queries.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotline",
			Name:      "http_requests_total",
			Help:      "Count of HTTP API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(appointmentCreated, appointmentCanceled, bookingConflicts, slotQueries, httpRequests)
	})
}

func IncAppointmentCreated(status string) {
	appointmentCreated.WithLabelValues(status).Inc()
}

func IncAppointmentCanceled() {
	appointmentCanceled.Inc()
}

func IncConflict() {
	bookingConflicts.Inc()
}

func IncSlotQuery() {
	slotQueries.Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
