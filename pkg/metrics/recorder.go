// Package metrics provides Prometheus counters for measurement sessions.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"spineforge/pkg/measurement"
)

const defaultNamespace = "spineforge"

// Recorder records session activity. A nil *Recorder is a no-op.
type Recorder struct {
	namespace string
	registry  prometheus.Registerer

	landmarkEvents    *prometheus.CounterVec
	recomputations    prometheus.Counter
	invalidParameters *prometheus.CounterVec
	piDisagreements   prometheus.Counter
	placedLandmarks   prometheus.Gauge
	validParameters   prometheus.Gauge
}

// Option configures a Recorder
type Option func(*Recorder)

// WithNamespace sets the metric namespace
func WithNamespace(ns string) Option {
	return func(r *Recorder) {
		if ns != "" {
			r.namespace = ns
		}
	}
}

// WithRegistry sets the registerer metrics are registered on.
// The default is a fresh private registry.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(r *Recorder) {
		if reg != nil {
			r.registry = reg
		}
	}
}

// NewRecorder creates and registers the session metrics
func NewRecorder(opts ...Option) (*Recorder, error) {
	r := &Recorder{namespace: defaultNamespace}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = prometheus.NewRegistry()
	}

	r.landmarkEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      "landmark_events_total",
		Help:      "Landmark store changes by kind (placed, cleared, reset).",
	}, []string{"kind"})
	r.recomputations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      "recomputations_total",
		Help:      "Parameter recomputation passes.",
	})
	r.invalidParameters = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      "invalid_parameters_total",
		Help:      "Invalid parameter results observed after recomputation, by reason.",
	}, []string{"reason"})
	r.piDisagreements = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      "pi_cross_check_disagreements_total",
		Help:      "Recomputations where vector and PT+SS pelvic incidence disagree.",
	})
	r.placedLandmarks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Name:      "placed_landmarks",
		Help:      "Landmarks currently placed.",
	})
	r.validParameters = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Name:      "valid_parameters",
		Help:      "Parameters currently valid.",
	})

	collectors := []prometheus.Collector{
		r.landmarkEvents, r.recomputations, r.invalidParameters,
		r.piDisagreements, r.placedLandmarks, r.validParameters,
	}
	for _, c := range collectors {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("error registering metrics: %w", err)
		}
	}
	return r, nil
}

// LandmarkEvent counts one store change
func (r *Recorder) LandmarkEvent(kind string) {
	if r == nil {
		return
	}
	r.landmarkEvents.WithLabelValues(kind).Inc()
}

// ObserveResults records one recomputation pass
func (r *Recorder) ObserveResults(rs measurement.Results, placed int) {
	if r == nil {
		return
	}
	r.recomputations.Inc()
	r.placedLandmarks.Set(float64(placed))

	valid := 0
	for _, p := range rs.Params {
		switch {
		case p.Valid:
			valid++
		case errors.Is(p.Err, measurement.ErrDegenerateGeometry):
			r.invalidParameters.WithLabelValues("degenerate_geometry").Inc()
		default:
			r.invalidParameters.WithLabelValues("insufficient_landmarks").Inc()
		}
	}
	r.validParameters.Set(float64(valid))

	if rs.CrossCheck.Checked && !rs.CrossCheck.Agrees {
		r.piDisagreements.Inc()
	}
}

// WriteTextfile dumps the current metric values in the text exposition format.
// It fails when the registry cannot be gathered from.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	g, ok := r.registry.(prometheus.Gatherer)
	if !ok {
		return errors.New("metrics registry does not support gathering")
	}
	return prometheus.WriteToTextfile(path, g)
}
