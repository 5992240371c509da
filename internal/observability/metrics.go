package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "openaq_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for a featurization run.
type Metrics struct {
	ObservationsRead  prometheus.Counter
	Entities          prometheus.Counter
	GapHoursFilled    prometheus.Counter
	LeadingGapHours   prometheus.Counter
	RecordsWritten    *prometheus.CounterVec // labels: dataset={all,train,test}
	RecordsDropped    *prometheus.CounterVec // labels: dataset={train,test}
	QueryWaitDuration prometheus.Histogram
	RunDuration       prometheus.Histogram
	PipelineRunning   prometheus.Gauge
	LastSuccessfulRun prometheus.Gauge

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// Register adds every metric to reg. Used by the Pushgateway pusher and by
// tests that want to gather values.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ObservationsRead,
		m.Entities,
		m.GapHoursFilled,
		m.LeadingGapHours,
		m.RecordsWritten,
		m.RecordsDropped,
		m.QueryWaitDuration,
		m.RunDuration,
		m.PipelineRunning,
		m.LastSuccessfulRun,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	}
}

func newMetrics() *Metrics {
	return &Metrics{
		ObservationsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_read_total",
			Help:      "Raw observations read from the source.",
		}),
		Entities: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_total",
			Help:      "Distinct (country, city, location, parameter) series resampled.",
		}),
		GapHoursFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gap_hours_filled_total",
			Help:      "Hourly buckets with no observation that were filled by interpolation or carry.",
		}),
		LeadingGapHours: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leading_gap_hours_total",
			Help:      "Hourly buckets before the first known value of a series.",
		}),
		RecordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Feature records written by dataset.",
		}, []string{"dataset"}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Feature records left empty by the date filter, by dataset.",
		}, []string{"dataset"}),
		QueryWaitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_wait_seconds",
			Help:      "Time spent waiting for the Athena query to finish.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete extract-featurize-split-write run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		LastSuccessfulRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_run_timestamp_seconds",
			Help:      "Unix time of the last run that wrote every dataset.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Reverse geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when metadata enrichment via reverse geocoding is enabled, 0 otherwise.",
		}),
	}
}
