package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cc_http_requests_total", Help: "HTTP requests by route and status"},
		[]string{"method", "route", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "cc_http_request_duration_seconds", Help: "HTTP request latency", Buckets: prometheus.DefBuckets},
		[]string{"method", "route"},
	)
	SponsorshipsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cc_sponsorships_created_total", Help: "Sponsorships created"},
	)
	SponsorshipsPaid = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cc_sponsorships_paid_total", Help: "Sponsorships settled by the payment webhook"},
	)
	PlatformFeesCents = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cc_platform_fees_cents_total", Help: "Platform fees collected in cents"},
	)
	XPAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cc_xp_awarded_total", Help: "XP awarded by action"},
		[]string{"action"},
	)
	OutboxSent = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cc_outbox_sent_total", Help: "Outbox events delivered"},
	)
	OutboxFailed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cc_outbox_failed_total", Help: "Outbox delivery failures"},
	)
	SearchIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cc_search_indexed_total", Help: "Content documents indexed into search"},
	)
	Corrections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cc_reconcile_corrections_total", Help: "Denormalised values corrected by the reconciler"},
		[]string{"kind"},
	)
)

func Register(r prometheus.Registerer) {
	r.MustRegister(
		HTTPRequests, HTTPDuration,
		SponsorshipsCreated, SponsorshipsPaid, PlatformFeesCents,
		XPAwarded, OutboxSent, OutboxFailed, SearchIndexed, Corrections,
	)
}
