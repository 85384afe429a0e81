package core

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports operation latency and outcome counters.
type PrometheusMetricsRecorder struct {
	latency    *prometheus.HistogramVec
	operations *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the caseledger service collectors
// with reg (prometheus.DefaultRegisterer when nil). Registering twice against
// the same registry reuses the existing collectors.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "caseledger",
		Subsystem: "service",
		Name:      "operation_duration_seconds",
		Help:      "Latency of registry service operations.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"operation"})
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caseledger",
		Subsystem: "service",
		Name:      "operations_total",
		Help:      "Registry service operations by outcome.",
	}, []string{"operation", "status"})

	var err error
	if latency, err = register(reg, latency); err != nil {
		return nil, err
	}
	if operations, err = register(reg, operations); err != nil {
		return nil, err
	}
	return &PrometheusMetricsRecorder{latency: latency, operations: operations}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := AuditStatusError
	if success {
		status = AuditStatusSuccess
	}
	r.latency.WithLabelValues(operation).Observe(duration.Seconds())
	r.operations.WithLabelValues(operation, string(status)).Inc()
}
