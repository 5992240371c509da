package domain

import (
	"maps"
	"math"
	"slices"
	"time"
)

// ResampledSeries is one entity's observations aligned onto a contiguous grid
// of Frequency-sized steps beginning at Start. The three slices always have
// the same length.
type ResampledSeries struct {
	Key        EntityKey
	Start      time.Time
	Frequency  time.Duration
	Values     []float64
	Latitudes  []float64
	Longitudes []float64
}

// Len returns the number of steps in the series.
func (s ResampledSeries) Len() int {
	return len(s.Values)
}

// TimestampAt returns the timestamp of step i.
func (s ResampledSeries) TimestampAt(i int) time.Time {
	return s.Start.Add(time.Duration(i) * s.Frequency)
}

// End returns the exclusive end of the series.
func (s ResampledSeries) End() time.Time {
	return s.TimestampAt(len(s.Values))
}

// ResampleStats summarizes a Resample call for logging and metrics.
type ResampleStats struct {
	Observations    int
	Entities        int
	Hours           int
	GapHours        int // steps with no value after downsampling
	LeadingGapHours int // gap steps before the first known value
}

// Resample groups observations by entity, downsamples each entity to one value
// per step (the maximum), reindexes onto a contiguous grid between its first
// and last step and fills the gaps. Series are returned in ascending key order.
func Resample(obs []RawObservation, s Settings) ([]ResampledSeries, ResampleStats) {
	groups := make(map[EntityKey][]RawObservation)
	for _, o := range obs {
		k := o.Key()
		groups[k] = append(groups[k], o)
	}

	keys := slices.SortedFunc(maps.Keys(groups), EntityKey.Compare)
	stats := ResampleStats{Observations: len(obs), Entities: len(keys)}

	out := make([]ResampledSeries, 0, len(keys))
	for _, k := range keys {
		series, gaps, leading := resampleEntity(k, groups[k], s)
		stats.Hours += series.Len()
		stats.GapHours += gaps
		stats.LeadingGapHours += leading
		out = append(out, series)
	}
	return out, stats
}

func resampleEntity(key EntityKey, obs []RawObservation, s Settings) (ResampledSeries, int, int) {
	freq := s.Frequency
	slices.SortStableFunc(obs, func(a, b RawObservation) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	first := obs[0].Timestamp.UTC().Truncate(freq)
	last := obs[len(obs)-1].Timestamp.UTC().Truncate(freq)
	n := int(last.Sub(first)/freq) + 1

	series := ResampledSeries{
		Key:        key,
		Start:      first,
		Frequency:  freq,
		Values:     nanSlice(n),
		Latitudes:  nanSlice(n),
		Longitudes: nanSlice(n),
	}

	for _, o := range obs {
		i := int(o.Timestamp.UTC().Truncate(freq).Sub(first) / freq)
		series.Values[i] = nanMax(series.Values[i], o.Value)
		series.Latitudes[i] = nanMax(series.Latitudes[i], o.Latitude)
		series.Longitudes[i] = nanMax(series.Longitudes[i], o.Longitude)
	}

	gaps := countNaN(series.Values)
	leading := interpolate(series.Values)
	for i, v := range series.Values {
		series.Values[i] = round2(v)
	}
	forwardFill(series.Latitudes)
	forwardFill(series.Longitudes)

	return applyLeadingGap(series, leading, s.LeadingGap), gaps, leading
}

// interpolate fills interior NaN runs linearly between their known neighbours
// and carries the last known value over trailing NaNs. It returns the number
// of leading NaNs, which it leaves untouched.
func interpolate(values []float64) int {
	prev := -1
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (v - values[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				values[j] = values[prev] + step*float64(j-prev)
			}
		}
		prev = i
	}
	if prev < 0 {
		return len(values)
	}
	for j := prev + 1; j < len(values); j++ {
		values[j] = values[prev]
	}

	leading := 0
	for leading < len(values) && math.IsNaN(values[leading]) {
		leading++
	}
	return leading
}

// applyLeadingGap leaves a series with no known value untouched under every
// policy, so each entity still yields a non-empty record.
func applyLeadingGap(s ResampledSeries, leading int, policy LeadingGapPolicy) ResampledSeries {
	if leading == 0 || leading == len(s.Values) {
		return s
	}
	switch policy {
	case LeadingGapDrop:
		s.Start = s.TimestampAt(leading)
		s.Values = s.Values[leading:]
		s.Latitudes = s.Latitudes[leading:]
		s.Longitudes = s.Longitudes[leading:]
	case LeadingGapBackfill:
		for i := range leading {
			s.Values[i] = s.Values[leading]
		}
	}
	return s
}

func forwardFill(values []float64) {
	last := math.NaN()
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = last
			continue
		}
		last = v
	}
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// nanMax returns the larger of cur and v, ignoring NaN on either side.
func nanMax(cur, v float64) float64 {
	if math.IsNaN(v) {
		return cur
	}
	if math.IsNaN(cur) || v > cur {
		return v
	}
	return cur
}

func countNaN(values []float64) int {
	n := 0
	for _, v := range values {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// round2 rounds to two decimals, halves to even.
func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.RoundToEven(v*100) / 100
}
