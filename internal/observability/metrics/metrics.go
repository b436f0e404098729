package metrics

import "github.com/prometheus/client_golang/prometheus"

// LookupMetrics exposes counters/histograms for appointment lookups and the
// upstream Meevo calls they fan out into.
type LookupMetrics struct {
	lookupsTotal    *prometheus.CounterVec
	lookupLatency   prometheus.Histogram
	pagesTotal      *prometheus.CounterVec
	detailsTotal    *prometheus.CounterVec
	appointmentsErr prometheus.Counter
	tokenRefreshes  *prometheus.CounterVec
}

func NewLookupMetrics(reg prometheus.Registerer) *LookupMetrics {
	m := &LookupMetrics{
		lookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointment_lookup",
			Subsystem: "lookup",
			Name:      "requests_total",
			Help:      "Total lookup requests by outcome",
		}, []string{"outcome"}),
		lookupLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "appointment_lookup",
			Subsystem: "lookup",
			Name:      "duration_seconds",
			Help:      "End-to-end lookup latency",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}),
		pagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointment_lookup",
			Subsystem: "meevo",
			Name:      "listing_pages_total",
			Help:      "Client listing pages fetched, by search phase and result",
		}, []string{"phase", "result"}),
		detailsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointment_lookup",
			Subsystem: "meevo",
			Name:      "client_details_total",
			Help:      "Client detail lookups during linked profile discovery, by result",
		}, []string{"result"}),
		appointmentsErr: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "appointment_lookup",
			Subsystem: "meevo",
			Name:      "appointment_fetch_failures_total",
			Help:      "Booked-service fetches that failed and were degraded to an empty list",
		}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointment_lookup",
			Subsystem: "meevo",
			Name:      "token_refresh_total",
			Help:      "Access token exchanges by status",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.lookupsTotal, m.lookupLatency, m.pagesTotal, m.detailsTotal, m.appointmentsErr, m.tokenRefreshes)
	return m
}

// ObserveLookup records one finished lookup. Outcome is one of found,
// not_found, invalid or error.
func (m *LookupMetrics) ObserveLookup(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.lookupsTotal.WithLabelValues(outcome).Inc()
	m.lookupLatency.Observe(seconds)
}

// ObservePage records a listing page. Phase is search or linked; result is
// ok, empty or error.
func (m *LookupMetrics) ObservePage(phase, result string) {
	if m == nil {
		return
	}
	m.pagesTotal.WithLabelValues(phase, result).Inc()
}

func (m *LookupMetrics) ObserveDetail(result string) {
	if m == nil {
		return
	}
	m.detailsTotal.WithLabelValues(result).Inc()
}

func (m *LookupMetrics) ObserveAppointmentFailure() {
	if m == nil {
		return
	}
	m.appointmentsErr.Inc()
}

func (m *LookupMetrics) ObserveTokenRefresh(success bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !success {
		status = "error"
	}
	m.tokenRefreshes.WithLabelValues(status).Inc()
}
