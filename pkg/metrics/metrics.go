// Package metrics provides the Prometheus instrument bundle for the
// lending service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument the service exports.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	LoansCreatedTotal  prometheus.Counter
	LoansRepaidTotal   prometheus.Counter
	LoansExtendedTotal prometheus.Counter
	LoansActive        prometheus.Gauge
	LoansAtRisk        prometheus.Gauge
	PriceUpdatesTotal  prometheus.Counter
	CollateralPrice    prometheus.Gauge
}

// New creates and registers the instrument bundle under the lending
// namespace.
func New(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lending",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lending",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		LoansCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lending",
			Subsystem: serviceName,
			Name:      "loans_created_total",
			Help:      "Total loan positions created",
		}),
		LoansRepaidTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lending",
			Subsystem: serviceName,
			Name:      "loans_repaid_total",
			Help:      "Total loan positions fully repaid",
		}),
		LoansExtendedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lending",
			Subsystem: serviceName,
			Name:      "loans_extended_total",
			Help:      "Total loan term extensions",
		}),
		LoansActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lending",
			Subsystem: serviceName,
			Name:      "loans_active",
			Help:      "Number of active loan positions",
		}),
		LoansAtRisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lending",
			Subsystem: serviceName,
			Name:      "loans_at_risk",
			Help:      "Number of active positions flagged as liquidation candidates",
		}),
		PriceUpdatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lending",
			Subsystem: serviceName,
			Name:      "price_updates_total",
			Help:      "Total collateral price updates processed",
		}),
		CollateralPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lending",
			Subsystem: serviceName,
			Name:      "collateral_price_usd",
			Help:      "Last observed collateral price in USD",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoansCreatedTotal,
		m.LoansRepaidTotal,
		m.LoansExtendedTotal,
		m.LoansActive,
		m.LoansAtRisk,
		m.PriceUpdatesTotal,
		m.CollateralPrice,
	)

	return m
}

// Handler returns the scrape endpoint for the bundle's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
