package mapbox

import (
	"context"
	"errors"
	"testing"

	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
	"github.com/couchcryptid/openaq-forecast-etl/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingGeocoder struct {
	calls  int
	result domain.GeocodingResult
	err    error
}

func (m *countingGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	m.calls++
	return m.result, m.err
}

// --- CachedGeocoder tests ---

func TestCachedGeocoder_CacheHit(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{PlaceName: "Randwick", FormattedAddress: "Randwick, NSW"},
	}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedGeocoder(inner, 10, metrics)

	r1, err := cached.ReverseGeocode(context.Background(), -33.9178, 151.2417)
	require.NoError(t, err)
	assert.Equal(t, "Randwick", r1.PlaceName)

	r2, err := cached.ReverseGeocode(context.Background(), -33.9178, 151.2417)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)

	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("miss")), 0)
}

func TestCachedGeocoder_DifferentCoordinatesMiss(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{PlaceName: "Place", FormattedAddress: "Place, NSW"},
	}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.ReverseGeocode(context.Background(), -33.9178, 151.2417)
	_, _ = cached.ReverseGeocode(context.Background(), -33.9328, 150.9058)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoder_EmptyAndErrorsNotCached(t *testing.T) {
	inner := &countingGeocoder{}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.ReverseGeocode(context.Background(), 1, 2)
	_, _ = cached.ReverseGeocode(context.Background(), 1, 2)
	assert.Equal(t, 2, inner.calls, "empty results are retried")

	inner.err = errors.New("rate limited")
	_, err := cached.ReverseGeocode(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Zero(t, cached.cache.len())
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache[string](3)

	c.put("a", "A")
	c.put("b", "B")

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", result)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A")
	c.put("b", "B")
	c.put("c", "C") // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	result, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, "B", result)

	result, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", result)
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A")
	c.put("b", "B")

	// Access "a" to promote it
	c.get("a")

	// Insert "c"; should evict "b" (LRU), not "a"
	c.put("c", "C")

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A1")
	c.put("a", "A2")

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result)
	assert.Equal(t, 1, c.len())
}

func TestLRUCache_ZeroCapacityHoldsOne(t *testing.T) {
	c := newLRUCache[string](0)
	c.put("a", "A")
	c.put("b", "B")

	_, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, 1, c.len())
}
