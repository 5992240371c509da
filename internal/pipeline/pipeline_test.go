package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/openaq-forecast-etl/internal/adapter/codec"
	"github.com/couchcryptid/openaq-forecast-etl/internal/adapter/filesink"
	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
	"github.com/couchcryptid/openaq-forecast-etl/internal/observability"
	"github.com/couchcryptid/openaq-forecast-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockSource struct {
	obs []domain.RawObservation
	err error
}

func (m *mockSource) Extract(_ context.Context) ([]domain.RawObservation, error) {
	return m.obs, m.err
}

type recordingSink struct {
	name  string
	err   error
	loads []domain.Output
	order *[]string
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Load(_ context.Context, out domain.Output) error {
	if s.order != nil {
		*s.order = append(*s.order, s.name)
	}
	if s.err != nil {
		return s.err
	}
	s.loads = append(s.loads, out)
	return nil
}

type staticGeocoder struct{}

func (staticGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	return domain.GeocodingResult{PlaceName: "Randwick", FormattedAddress: "Randwick, New South Wales, Australia"}, nil
}

// --- helpers ---

// now is 2026-10-16 15:10 UTC, so with 30 split days the cutoff is
// 2026-09-16 00:00 UTC.
var (
	now    = time.Date(2026, time.October, 16, 15, 10, 0, 0, time.UTC)
	cutoff = time.Date(2026, time.September, 16, 0, 0, 0, 0, time.UTC)
)

func obs(location, parameter string, ts time.Time, value float64) domain.RawObservation {
	return domain.RawObservation{
		Country:   "AU",
		City:      "Sydney",
		Location:  location,
		Parameter: parameter,
		Timestamp: ts,
		Value:     value,
		Latitude:  -33.9178,
		Longitude: 151.2417,
	}
}

func hourly(location, parameter string, start time.Time, n int) []domain.RawObservation {
	out := make([]domain.RawObservation, n)
	for i := range n {
		out[i] = obs(location, parameter, start.Add(time.Duration(i)*time.Hour), float64(i))
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPipeline(src pipeline.Source, sinks []pipeline.Sink, metrics *observability.Metrics) *pipeline.Pipeline {
	return pipeline.New(src, sinks, nil, domain.DefaultSettings(), clockwork.NewFakeClockAt(now), discardLogger(), metrics, "run-1")
}

// --- tests ---

func TestPipeline_Run_InterpolatesGap(t *testing.T) {
	base := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	src := &mockSource{obs: []domain.RawObservation{
		obs("Randwick", "pm25", base, 5),
		obs("Randwick", "pm25", base.Add(2*time.Hour), 7),
	}}
	sink := &recordingSink{name: "memory"}

	summary, err := newPipeline(src, []pipeline.Sink{sink}, observability.NewMetricsForTesting()).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.loads, 1)
	out := sink.loads[0]
	require.Len(t, out.All, 1)
	assert.Equal(t, []float64{5, 6, 7}, out.All[0].Target)
	assert.Equal(t, base, out.All[0].Start)
	assert.Equal(t, 1, summary.GapHours)
	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, cutoff, out.Cutoff)
}

func TestPipeline_Run_SplitsAtCutoff(t *testing.T) {
	src := &mockSource{obs: hourly("Randwick", "pm25", cutoff.Add(-24*time.Hour), 48)}
	sink := &recordingSink{name: "memory"}

	summary, err := newPipeline(src, []pipeline.Sink{sink}, observability.NewMetricsForTesting()).Run(context.Background())
	require.NoError(t, err)

	out := sink.loads[0]
	require.Len(t, out.Train, 1)
	require.Len(t, out.Test, 1)
	assert.Len(t, out.Train[0].Target, 24)
	assert.Len(t, out.Test[0].Target, 24)
	assert.Equal(t, cutoff, out.Test[0].Start)
	assert.Equal(t, append(out.Train[0].Target, out.Test[0].Target...), out.All[0].Target)
	assert.Equal(t, map[domain.Dataset]int{domain.DatasetAll: 1, domain.DatasetTrain: 1, domain.DatasetTest: 1}, summary.Records)
	assert.Equal(t, map[domain.Dataset]int{domain.DatasetTrain: 0, domain.DatasetTest: 0}, summary.Dropped)
}

func TestPipeline_Run_OldRecordOnlyInTrain(t *testing.T) {
	old := now.AddDate(0, 0, -40)
	src := &mockSource{obs: append(
		hourly("Randwick", "pm25", old, 24),
		hourly("Rozelle", "no2", cutoff.Add(-time.Hour), 3)...,
	)}
	sink := &recordingSink{name: "memory"}
	metrics := observability.NewMetricsForTesting()

	summary, err := newPipeline(src, []pipeline.Sink{sink}, metrics).Run(context.Background())
	require.NoError(t, err)

	out := sink.loads[0]
	require.Len(t, out.All, 2)
	require.Len(t, out.Train, 2)
	require.Len(t, out.Test, 1)
	assert.Equal(t, "Rozelle", out.Test[0].Key.Location)
	assert.Equal(t, 1, summary.Dropped[domain.DatasetTest])
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RecordsDropped.WithLabelValues("test")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.RecordsWritten.WithLabelValues("train")), 0)
}

func TestPipeline_Run_AssignsIDsAndCategories(t *testing.T) {
	base := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	src := &mockSource{obs: []domain.RawObservation{
		obs("Rozelle", "pm25", base, 1),
		obs("Randwick", "pm25", base, 2),
		obs("Randwick", "no2", base, 3),
	}}
	sink := &recordingSink{name: "memory"}

	_, err := newPipeline(src, []pipeline.Sink{sink}, observability.NewMetricsForTesting()).Run(context.Background())
	require.NoError(t, err)

	got := sink.loads[0].All
	require.Len(t, got, 3)
	want := []domain.FeatureRecord{
		{ID: 0, Key: domain.EntityKey{Country: "AU", City: "Sydney", Location: "Randwick", Parameter: "no2"}, Start: base, Target: []float64{3}, Cat: []int{0, 0, 0, 0}},
		{ID: 1, Key: domain.EntityKey{Country: "AU", City: "Sydney", Location: "Randwick", Parameter: "pm25"}, Start: base, Target: []float64{2}, Cat: []int{0, 0, 0, 1}},
		{ID: 2, Key: domain.EntityKey{Country: "AU", City: "Sydney", Location: "Rozelle", Parameter: "pm25"}, Start: base, Target: []float64{1}, Cat: []int{0, 0, 1, 1}},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(domain.FeatureRecord{}, "Point")); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestPipeline_Run_SourceError(t *testing.T) {
	src := &mockSource{err: errors.New("query failed")}
	sink := &recordingSink{name: "memory"}
	p := newPipeline(src, []pipeline.Sink{sink}, observability.NewMetricsForTesting())

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract observations")
	assert.Empty(t, sink.loads)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_StopsAtFailingSink(t *testing.T) {
	var order []string
	first := &recordingSink{name: "file", order: &order, err: errors.New("disk full")}
	second := &recordingSink{name: "kafka", order: &order}
	src := &mockSource{obs: hourly("Randwick", "pm25", cutoff, 2)}
	p := newPipeline(src, []pipeline.Sink{first, second}, observability.NewMetricsForTesting())

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load file sink")
	assert.Equal(t, []string{"file"}, order)
	_, ok := p.LastRun()
	assert.False(t, ok)
}

func TestPipeline_Run_CancelledContext(t *testing.T) {
	sink := &recordingSink{name: "memory"}
	src := &mockSource{obs: hourly("Randwick", "pm25", cutoff, 2)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newPipeline(src, []pipeline.Sink{sink}, observability.NewMetricsForTesting()).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.loads)
}

func TestPipeline_Run_InvalidSettings(t *testing.T) {
	s := domain.DefaultSettings()
	s.Frequency = 0
	p := pipeline.New(&mockSource{}, nil, nil, s, clockwork.NewFakeClockAt(now), discardLogger(), observability.NewMetricsForTesting(), "run-1")

	_, err := p.Run(context.Background())
	assert.ErrorContains(t, err, "validate settings")
}

func TestPipeline_ReadinessAndLastRun(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	p := newPipeline(&mockSource{obs: hourly("Randwick", "pm25", cutoff, 2)}, []pipeline.Sink{&recordingSink{name: "memory"}}, metrics)

	require.Error(t, p.CheckReadiness(context.Background()))

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.CheckReadiness(context.Background()))
	last, ok := p.LastRun()
	require.True(t, ok)
	assert.Equal(t, summary, last)
	assert.Equal(t, []string{"memory"}, last.Sinks)
	assert.Equal(t, now, last.StartedAt)
	assert.InDelta(t, float64(now.Unix()), testutil.ToFloat64(metrics.LastSuccessfulRun), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.ObservationsRead), 0)
}

func TestPipeline_Run_EnrichesMetadata(t *testing.T) {
	sink := &recordingSink{name: "memory"}
	p := pipeline.New(&mockSource{obs: hourly("Randwick", "pm25", cutoff, 2)}, []pipeline.Sink{sink}, staticGeocoder{},
		domain.DefaultSettings(), clockwork.NewFakeClockAt(now), discardLogger(), observability.NewMetricsForTesting(), "run-1")

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	md := sink.loads[0].Metadata
	require.Len(t, md, 1)
	assert.Equal(t, "Randwick", md[0].PlaceName)
	assert.InDelta(t, -33.9178, md[0].Point.Lat(), 1e-9)
}

func TestPipeline_Run_LeadingGapCounted(t *testing.T) {
	src := &mockSource{obs: []domain.RawObservation{
		obs("Randwick", "pm25", cutoff, math.NaN()),
		obs("Randwick", "pm25", cutoff.Add(time.Hour), 4),
	}}
	sink := &recordingSink{name: "memory"}
	metrics := observability.NewMetricsForTesting()

	summary, err := newPipeline(src, []pipeline.Sink{sink}, metrics).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.LeadingGapHours)
	assert.True(t, math.IsNaN(sink.loads[0].All[0].Target[0]))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.LeadingGapHours), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.GapHoursFilled), 0)
}

func TestPipeline_Run_WritesFiles(t *testing.T) {
	dir := t.TempDir()
	src := &mockSource{obs: hourly("Randwick", "pm25", cutoff.Add(-24*time.Hour), 48)}
	fs := filesink.New(dir, codec.Encoder{Format: codec.FormatJSONLines}, discardLogger())

	_, err := newPipeline(src, []pipeline.Sink{fs}, observability.NewMetricsForTesting()).Run(context.Background())
	require.NoError(t, err)

	lengths := map[domain.Dataset]int{domain.DatasetAll: 48, domain.DatasetTrain: 24, domain.DatasetTest: 24}
	for d, n := range lengths {
		f, err := os.Open(filepath.Join(dir, filepath.FromSlash(codec.DatasetPath(d, codec.FormatJSONLines))))
		require.NoError(t, err)
		records, err := codec.ReadJSONLines(f)
		require.NoError(t, f.Close())
		require.NoError(t, err)
		require.Len(t, records, 1, d)
		assert.Len(t, records[0].Target, n, d)
	}
	assert.FileExists(t, filepath.Join(dir, filepath.FromSlash(codec.MetadataPath)))
}
