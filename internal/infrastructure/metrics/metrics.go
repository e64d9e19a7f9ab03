package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/planty/core/internal/domain/entities"
)

// Metrics holds the prometheus collectors of the API
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	operations      *prometheus.CounterVec
}

// New creates the collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planty_operations_total",
				Help: "Domain operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
	}
	m.registry.MustRegister(m.requestsTotal, m.requestDuration, m.operations)
	return m
}

// Record counts an operation. Rejections are labelled by the domain rule
// that refused them.
func (m *Metrics) Record(operation string, err error) {
	m.operations.WithLabelValues(operation, Outcome(err)).Inc()
}

// Outcome maps an operation error to a low-cardinality label
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, entities.ErrTaskNotFound),
		errors.Is(err, entities.ErrSectionNotFound),
		errors.Is(err, entities.ErrAttachmentNotFound),
		errors.Is(err, entities.ErrUserNotFound):
		return "not_found"
	case errors.Is(err, entities.ErrForbidden):
		return "forbidden"
	case errors.Is(err, entities.ErrIndexOutOfRange):
		return "index_out_of_range"
	case errors.Is(err, entities.ErrHierarchyCycle):
		return "hierarchy_cycle"
	case errors.Is(err, entities.ErrMutualExclusion):
		return "mutual_exclusion"
	case errors.Is(err, entities.ErrRootProtected):
		return "root_protected"
	case errors.Is(err, entities.ErrWrongOwner):
		return "wrong_owner"
	case errors.Is(err, entities.ErrRecurrenceRequiresDueDate),
		errors.Is(err, entities.ErrInvalidRecurrence),
		errors.Is(err, entities.ErrIncorrectDateInterval),
		errors.Is(err, entities.ErrEmptyTitle):
		return "invalid"
	}
	return "error"
}

// Middleware observes every request routed by echo
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			m.requestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				fmt.Sprintf("%d", status),
			).Inc()

			m.requestDuration.WithLabelValues(
				c.Request().Method,
				c.Path(),
			).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// Handler exposes the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
