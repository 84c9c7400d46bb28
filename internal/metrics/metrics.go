package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the Botdeck server.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Auth metrics.
	AuthFailuresTotal  *prometheus.CounterVec
	AuthSuccessesTotal *prometheus.CounterVec

	// Invitation metrics.
	InvitationsTotal  *prometheus.CounterVec
	MailFailuresTotal prometheus.Counter

	// Billing metrics.
	FinalizeTotal         *prometheus.CounterVec
	BotsMaterializedTotal prometheus.Counter

	// Rate limiting.
	RateLimitRejectionsTotal *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botdeck_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "botdeck_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botdeck_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_method"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botdeck_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_method"}),

		InvitationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botdeck_invitations_total",
			Help: "Total number of invitation operations by outcome.",
		}, []string{"outcome"}),

		MailFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botdeck_mail_failures_total",
			Help: "Total number of invitation emails that failed to send.",
		}),

		FinalizeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botdeck_checkout_finalize_total",
			Help: "Total number of checkout finalize calls by outcome.",
		}, []string{"outcome"}),

		BotsMaterializedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botdeck_bots_materialized_total",
			Help: "Total number of bots created from completed checkouts.",
		}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botdeck_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"scope"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "botdeck_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	// Register all metrics.
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.InvitationsTotal,
		m.MailFailuresTotal,
		m.FinalizeTotal,
		m.BotsMaterializedTotal,
		m.RateLimitRejectionsTotal,
		m.ServerStartTime,
	)

	// Set server start time.
	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// IncAuthFailure increments the auth failure counter for the given method.
func (m *Metrics) IncAuthFailure(authMethod string) {
	m.AuthFailuresTotal.WithLabelValues(authMethod).Inc()
}

// IncAuthSuccess increments the auth success counter for the given method.
func (m *Metrics) IncAuthSuccess(authMethod string) {
	m.AuthSuccessesTotal.WithLabelValues(authMethod).Inc()
}

// IncInvitation increments the invitation counter for the given outcome
// (created, reissued, redeemed, conflict).
func (m *Metrics) IncInvitation(outcome string) {
	m.InvitationsTotal.WithLabelValues(outcome).Inc()
}

// IncMailFailure increments the failed-mail counter.
func (m *Metrics) IncMailFailure() {
	m.MailFailuresTotal.Inc()
}

// IncFinalize increments the checkout finalize counter for the given outcome
// (created, existing, forbidden, incomplete, not_found, error).
func (m *Metrics) IncFinalize(outcome string) {
	m.FinalizeTotal.WithLabelValues(outcome).Inc()
}

// IncBotMaterialized increments the materialized-bot counter.
func (m *Metrics) IncBotMaterialized() {
	m.BotsMaterializedTotal.Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection(scope string) {
	m.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
}
