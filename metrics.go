package main

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for one Blog.
type Metrics struct {
	registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	LoginsTotal     *prometheus.CounterVec
	Entries         prometheus.Gauge
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: reg,
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "postboard",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests handled",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "postboard",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		LoginsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "postboard",
				Name:      "logins_total",
				Help:      "Login attempts by result",
			},
			[]string{"result"}, // success, invalid_username, invalid_password
		),
		Entries: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "postboard",
				Name:      "entries",
				Help:      "Number of stored entries",
			},
		),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeLogin(msg string) {
	switch msg {
	case "":
		m.LoginsTotal.WithLabelValues("success").Inc()
	case msgInvalidUsername:
		m.LoginsTotal.WithLabelValues("invalid_username").Inc()
	case msgInvalidPassword:
		m.LoginsTotal.WithLabelValues("invalid_password").Inc()
	}
}

// refreshEntries sets the entries gauge from the store.
func (m *Metrics) refreshEntries(db *sql.DB) error {
	n, err := countPosts(db)
	if err != nil {
		return err
	}
	m.Entries.Set(float64(n))
	return nil
}

// instrument records request count and latency, labelled by route template
// so that /delete/{id} does not fan out per id. Requests that matched no
// route are labelled "unmatched".
func (m *Metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
