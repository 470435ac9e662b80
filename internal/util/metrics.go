package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of purchase orders recorded",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed purchase orders",
	}, []string{"reason"})

	EnrollmentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_created_total",
		Help: "Total number of enrollments created",
	})

	EnrollmentsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_failed_total",
		Help: "Total number of failed enrollment attempts",
	}, []string{"reason"})

	LessonsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lessons_completed_total",
		Help: "Total number of lesson completion toggles",
	})

	CoursesCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courses_completed_total",
		Help: "Total number of courses completed by learners",
	})

	CertificatesIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "certificates_issued_total",
		Help: "Total number of certificates issued",
	})

	CertificateIssueFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certificate_issue_failed_total",
		Help: "Total number of failed certificate issuance attempts",
	}, []string{"reason"})

	InvitationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invitations_created_total",
		Help: "Total number of company invitations created",
	})

	InvitationsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invitations_rejected_total",
		Help: "Total number of rejected company invitations",
	}, []string{"reason"})

	ProgressQueryLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "progress_query_latency_seconds",
		Help:    "Latency of course progress aggregation queries",
		Buckets: prometheus.DefBuckets,
	})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of the order ledger plus enrollment write path",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
