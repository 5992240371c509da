package domain

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
)

// Featurize converts resampled series into feature records, one per series,
// with ids assigned in input order. Each categorical level is factorized
// across the whole set to build the records' cat vectors.
func Featurize(series []ResampledSeries) FeatureSet {
	fs := FeatureSet{
		Records:  make([]FeatureRecord, len(series)),
		Metadata: make([]Metadata, len(series)),
	}

	for i, s := range series {
		point := orb.Point{firstKnown(s.Longitudes), firstKnown(s.Latitudes)}
		fs.Records[i] = FeatureRecord{
			ID:     i,
			Key:    s.Key,
			Start:  s.Start,
			Target: slices.Clone(s.Values),
			Cat:    make([]int, len(CategoryFields)),
			Point:  point,
		}
		fs.Metadata[i] = Metadata{ID: i, Key: s.Key, Point: point}
	}

	for level := range CategoryFields {
		values := make([]string, len(series))
		for i, s := range series {
			values[i] = s.Key.Levels()[level]
		}
		f := Factorize(values)
		for i, code := range f.Codes {
			fs.Records[i].Cat[level] = code
		}
		fs.Categories[level] = f.Levels
	}

	return fs
}

func firstKnown(values []float64) float64 {
	for _, v := range values {
		if !math.IsNaN(v) {
			return v
		}
	}
	return math.NaN()
}
