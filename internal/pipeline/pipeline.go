// Package pipeline runs one extract-featurize-split-write pass over the
// OpenAQ observations.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
	"github.com/couchcryptid/openaq-forecast-etl/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Source reads the raw observations for a run.
type Source interface {
	Extract(ctx context.Context) ([]domain.RawObservation, error)
}

// Sink persists the datasets of a run.
type Sink interface {
	Name() string
	Load(ctx context.Context, out domain.Output) error
}

// Summary describes a completed run. It is served on /status.
type Summary struct {
	RunID           string                 `json:"run_id"`
	StartedAt       time.Time              `json:"started_at"`
	FinishedAt      time.Time              `json:"finished_at"`
	Cutoff          time.Time              `json:"cutoff"`
	Observations    int                    `json:"observations"`
	Entities        int                    `json:"entities"`
	Hours           int                    `json:"hours"`
	GapHours        int                    `json:"gap_hours"`
	LeadingGapHours int                    `json:"leading_gap_hours"`
	Records         map[domain.Dataset]int `json:"records"`
	Dropped         map[domain.Dataset]int `json:"dropped"`
	Sinks           []string               `json:"sinks"`
}

// Pipeline wires a source through the featurization stages into its sinks.
type Pipeline struct {
	source   Source
	sinks    []Sink
	geocoder domain.ReverseGeocoder
	settings domain.Settings
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
	runID    string

	ready   atomic.Bool
	lastRun atomic.Pointer[Summary]
}

// New creates a Pipeline. Sinks are loaded in order and the run stops at the
// first failing sink, so the local file sink should come first. A nil
// geocoder leaves metadata without place names.
func New(source Source, sinks []Sink, geocoder domain.ReverseGeocoder, settings domain.Settings, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, runID string) *Pipeline {
	return &Pipeline{
		source:   source,
		sinks:    sinks,
		geocoder: geocoder,
		settings: settings,
		clock:    clock,
		logger:   logger.With("run_id", runID),
		metrics:  metrics,
		runID:    runID,
	}
}

// CheckReadiness returns nil once a run has written every dataset.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no run has completed yet")
	}
	return nil
}

// LastRun returns the summary of the last successful run.
func (p *Pipeline) LastRun() (Summary, bool) {
	s := p.lastRun.Load()
	if s == nil {
		return Summary{}, false
	}
	return *s, true
}

// Run extracts the observations, builds the feature records, splits them at
// the cutoff and hands the result to every sink.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	if err := p.settings.Validate(); err != nil {
		return Summary{}, fmt.Errorf("validate settings: %w", err)
	}

	start := p.clock.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	summary := Summary{
		RunID:     p.runID,
		StartedAt: start.UTC(),
		Cutoff:    p.settings.Cutoff(start),
	}
	p.logger.Info("run started",
		"split_days", p.settings.SplitDays,
		"cutoff", summary.Cutoff,
		"leading_gap", p.settings.LeadingGap,
	)

	obs, err := p.source.Extract(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("extract observations: %w", err)
	}

	series, stats := domain.Resample(obs, p.settings)
	p.recordResample(&summary, stats)

	fs := domain.Featurize(series)
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	metadata := domain.EnrichMetadata(ctx, fs.Metadata, p.geocoder, p.logger)

	train, test := domain.TrainTestSplit(fs.Records, summary.Cutoff, p.settings.Frequency)
	out := domain.Output{
		RunID:    p.runID,
		Cutoff:   summary.Cutoff,
		All:      fs.Records,
		Train:    train,
		Test:     test,
		Metadata: metadata,
	}
	p.recordSplit(&summary, out)

	for _, s := range p.sinks {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		if err := s.Load(ctx, out); err != nil {
			return Summary{}, fmt.Errorf("load %s sink: %w", s.Name(), err)
		}
		summary.Sinks = append(summary.Sinks, s.Name())
		p.logger.Info("sink loaded", "sink", s.Name())
	}

	for _, d := range domain.Datasets {
		p.metrics.RecordsWritten.WithLabelValues(string(d)).Add(float64(summary.Records[d]))
	}

	end := p.clock.Now()
	summary.FinishedAt = end.UTC()
	p.metrics.RunDuration.Observe(end.Sub(start).Seconds())
	p.metrics.LastSuccessfulRun.Set(float64(end.Unix()))
	p.lastRun.Store(&summary)
	p.ready.Store(true)

	p.logger.Info("run finished",
		"all", summary.Records[domain.DatasetAll],
		"train", summary.Records[domain.DatasetTrain],
		"test", summary.Records[domain.DatasetTest],
		"duration", end.Sub(start),
	)
	return summary, nil
}

func (p *Pipeline) recordResample(summary *Summary, stats domain.ResampleStats) {
	summary.Observations = stats.Observations
	summary.Entities = stats.Entities
	summary.Hours = stats.Hours
	summary.GapHours = stats.GapHours
	summary.LeadingGapHours = stats.LeadingGapHours

	p.metrics.ObservationsRead.Add(float64(stats.Observations))
	p.metrics.Entities.Add(float64(stats.Entities))
	p.metrics.LeadingGapHours.Add(float64(stats.LeadingGapHours))

	filled := stats.GapHours - stats.LeadingGapHours
	if p.settings.LeadingGap == domain.LeadingGapBackfill {
		filled = stats.GapHours
	}
	p.metrics.GapHoursFilled.Add(float64(filled))

	p.logger.Info("observations resampled",
		"observations", stats.Observations,
		"entities", stats.Entities,
		"hours", stats.Hours,
		"gap_hours", stats.GapHours,
	)
	if stats.LeadingGapHours > 0 {
		p.logger.Warn("series start without a known value",
			"leading_gap_hours", stats.LeadingGapHours,
			"policy", p.settings.LeadingGap,
		)
	}
}

func (p *Pipeline) recordSplit(summary *Summary, out domain.Output) {
	summary.Records = make(map[domain.Dataset]int, len(domain.Datasets))
	summary.Dropped = make(map[domain.Dataset]int, 2)
	for _, d := range domain.Datasets {
		summary.Records[d] = len(out.Records(d))
	}
	for _, d := range []domain.Dataset{domain.DatasetTrain, domain.DatasetTest} {
		dropped := len(out.All) - len(out.Records(d))
		summary.Dropped[d] = dropped
		p.metrics.RecordsDropped.WithLabelValues(string(d)).Add(float64(dropped))
	}
}
