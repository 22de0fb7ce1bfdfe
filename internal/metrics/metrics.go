// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package metrics exposes Prometheus counters for logins, enrollment, email
// verification, mail delivery and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application collectors. A nil *Metrics records nothing.
type Metrics struct {
	Logins             *prometheus.CounterVec
	Registrations      *prometheus.CounterVec
	Enrollments        *prometheus.CounterVec
	EmailVerifications *prometheus.CounterVec
	MailFailures       prometheus.Counter
	RequestCount       *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them with registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mfa_login_attempts_total",
				Help: "Login attempts by result.",
			},
			[]string{"result"},
		),
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mfa_registrations_total",
				Help: "Registration attempts by result.",
			},
			[]string{"result"},
		),
		Enrollments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mfa_enrollment_confirmations_total",
				Help: "TOTP enrollment confirmations by result.",
			},
			[]string{"result"},
		),
		EmailVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mfa_email_verifications_total",
				Help: "Email code verifications by result.",
			},
			[]string{"result"},
		),
		MailFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mfa_mail_delivery_failures_total",
				Help: "Mails given up on after all retries.",
			},
		),
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	registry.MustRegister(
		m.Logins, m.Registrations, m.Enrollments, m.EmailVerifications,
		m.MailFailures, m.RequestCount, m.RequestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Login(result string) {
	if m != nil {
		m.Logins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Registration(result string) {
	if m != nil {
		m.Registrations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Enrollment(result string) {
	if m != nil {
		m.Enrollments.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) EmailVerification(result string) {
	if m != nil {
		m.EmailVerifications.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) MailFailure() {
	if m != nil {
		m.MailFailures.Inc()
	}
}

// Middleware records count and duration of every request by route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if m == nil {
				return err
			}

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}

			labels := []string{c.Request().Method, path, strconv.Itoa(status)}
			m.RequestCount.WithLabelValues(labels...).Inc()
			m.RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
