package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookcore",
			Name:      "reservation_created_total",
			Help:      "Count of reservations created by kind.",
		},
		[]string{"kind"},
	)

	reservationRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookcore",
			Name:      "reservation_rejected_total",
			Help:      "Count of reservation requests rejected by kind and reason.",
		},
		[]string{"kind", "reason"},
	)

	reservationTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookcore",
			Name:      "reservation_transition_total",
			Help:      "Count of reservation status transitions by kind and action.",
		},
		[]string{"kind", "action"},
	)

	availabilityCheck = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookcore",
			Name:      "availability_check_total",
			Help:      "Count of availability queries by check and result.",
		},
		[]string{"check", "result"},
	)

	lockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bookcore",
			Name:      "resource_lock_wait_seconds",
			Help:      "Time spent waiting for a per-resource lock.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookcore",
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"route", "code"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			reservationCreated,
			reservationRejected,
			reservationTransition,
			availabilityCheck,
			lockWait,
			httpRequests,
		)
	})
}

func IncReservationCreated(kind string) {
	reservationCreated.WithLabelValues(kind).Inc()
}

func IncReservationRejected(kind, reason string) {
	reservationRejected.WithLabelValues(kind, reason).Inc()
}

func IncTransition(kind, action string) {
	reservationTransition.WithLabelValues(kind, action).Inc()
}

func IncAvailabilityCheck(check string, ok bool) {
	result := "unavailable"
	if ok {
		result = "available"
	}
	availabilityCheck.WithLabelValues(check, result).Inc()
}

func ObserveLockWait(seconds float64) {
	lockWait.Observe(seconds)
}

func IncHTTPRequest(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}
