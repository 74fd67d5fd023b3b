// Package metrics exports run results as Prometheus metrics, written to a
// node_exporter textfile collector file.
package metrics

import (
	"fmt"

	"github.com/fgeck/poecheck/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder turns observations and run results into gauges.
type Recorder struct {
	registry *prometheus.Registry

	power          *prometheus.GaugeVec
	classification *prometheus.GaugeVec
	enabled        *prometheus.GaugeVec
	observations   *prometheus.CounterVec
	attempts       prometheus.Gauge
	success        prometheus.Gauge
	interrupted    prometheus.Gauge
	duration       prometheus.Gauge
	lastRun        prometheus.Gauge
}

func newGaugeVec(name, help string, constLabels prometheus.Labels, labelNames []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		},
		labelNames,
	)
}

func newGauge(name, help string, constLabels prometheus.Labels) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        name,
		Help:        help,
		ConstLabels: constLabels,
	})
}

// NewRecorder creates a recorder labelled with the switch host.
func NewRecorder(switchHost string) *Recorder {
	labels := prometheus.Labels{"switch": switchHost}
	r := &Recorder{
		registry:       prometheus.NewRegistry(),
		power:          newGaugeVec("poe_port_power_watts", "Last power reading of the port in watts", labels, []string{"port"}),
		classification: newGaugeVec("poe_port_activation_success", "Activation test outcome 1 = success, 0 = failed", labels, []string{"port"}),
		enabled:        newGaugeVec("poe_port_enabled", "Reported PoE output state 1 = enabled or delivering, 0 = other", labels, []string{"port"}),
		observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "poe_observations_total",
			Help:        "Observations emitted by the engine",
			ConstLabels: labels,
		}, []string{"kind"}),
		attempts:    newGauge("poe_run_attempts", "Attempts used by the last run", labels),
		success:     newGauge("poe_run_success", "Last run completed without error 1 = yes, 0 = no", labels),
		interrupted: newGauge("poe_run_interrupted", "Last run was interrupted by the operator 1 = yes, 0 = no", labels),
		duration:    newGauge("poe_run_duration_seconds", "Duration of the last run", labels),
		lastRun:     newGauge("poe_run_timestamp_seconds", "Start of the last run as unix time", labels),
	}
	r.registry.MustRegister(
		r.power,
		r.classification,
		r.enabled,
		r.observations,
		r.attempts,
		r.success,
		r.interrupted,
		r.duration,
		r.lastRun,
	)
	return r
}

// Observe records one engine observation.
func (r *Recorder) Observe(obs models.Observation) {
	r.observations.WithLabelValues(string(obs.Kind)).Inc()

	switch obs.Kind {
	case models.ObservationActivation:
		if obs.PowerPresent {
			r.power.WithLabelValues(obs.Port).Set(float64(obs.Watts))
		}
		v := 0.0
		if obs.Classification == models.ClassSuccess {
			v = 1
		}
		r.classification.WithLabelValues(obs.Port).Set(v)
	case models.ObservationPower:
		if obs.PowerPresent {
			r.power.WithLabelValues(obs.Port).Set(float64(obs.Watts))
		}
		r.enabled.WithLabelValues(obs.Port).Set(1)
	case models.ObservationStatus:
		r.power.WithLabelValues(obs.Port).Set(0)
		r.enabled.WithLabelValues(obs.Port).Set(0)
	}
}

// RecordRun records the outcome of a finished run.
func (r *Recorder) RecordRun(result *models.RunResult, interrupted bool) {
	r.attempts.Set(float64(result.Attempts))
	r.duration.Set(result.Duration.Seconds())
	r.lastRun.Set(float64(result.StartTime.Unix()))
	if result.Error == nil {
		r.success.Set(1)
	} else {
		r.success.Set(0)
	}
	if interrupted {
		r.interrupted.Set(1)
	} else {
		r.interrupted.Set(0)
	}
}

// Gatherer exposes the underlying registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes all metrics in the text exposition format. The file is
// replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
