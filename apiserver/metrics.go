// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package apiserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "kernel_restfulapi"

// Metrics instruments the REST handlers. All collectors live on a
// private registry so the exposition endpoint carries only ours.
type Metrics struct {
	registry   *prometheus.Registry
	inProgress prometheus.Gauge
	duration   *prometheus.HistogramVec
	responses  *prometheus.CounterVec
}

// NewMetrics builds and registers the handler collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "requests_inprogress",
			Help:      "Number of requests currently being served.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent serving requests.",
		}, []string{"handler", "method"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "responses_total",
			Help:      "Number of responses served, by status code.",
		}, []string{"handler", "method", "code"}),
	}
	m.registry.MustRegister(m.inProgress, m.duration, m.responses)
	return m
}

// Handler returns the exposition endpoint for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (m *Metrics) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inProgress.Inc()
		defer m.inProgress.Dec()

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)
		if recorder.status == 0 {
			recorder.status = http.StatusOK
		}

		m.duration.WithLabelValues(name, r.Method).Observe(time.Since(start).Seconds())
		m.responses.WithLabelValues(name, r.Method, strconv.Itoa(recorder.status)).Inc()
	})
}
