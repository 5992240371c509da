package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
)

// StartLayout is the timestamp format DeepAR expects for "start".
const StartLayout = "2006-01-02 15:04:05"

// FeatureRecord is one entity's series in model input shape.
// Key and Point are kept for traceability and metadata but are not serialized.
type FeatureRecord struct {
	ID     int
	Key    EntityKey
	Start  time.Time
	Target []float64
	Cat    []int
	Point  orb.Point // (longitude, latitude)
}

// End returns the exclusive end of the record given the series frequency.
func (r FeatureRecord) End(freq time.Duration) time.Time {
	return r.Start.Add(time.Duration(len(r.Target)) * freq)
}

type featureRecordJSON struct {
	ID     int        `json:"id"`
	Start  string     `json:"start"`
	Target []*float64 `json:"target"`
	Cat    []int      `json:"cat"`
}

// MarshalJSON emits {"id","start","target","cat"} with NaN targets as null.
func (r FeatureRecord) MarshalJSON() ([]byte, error) {
	target := make([]*float64, len(r.Target))
	for i, v := range r.Target {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		target[i] = &r.Target[i]
	}
	cat := r.Cat
	if cat == nil {
		cat = []int{}
	}
	return json.Marshal(featureRecordJSON{
		ID:     r.ID,
		Start:  r.Start.UTC().Format(StartLayout),
		Target: target,
		Cat:    cat,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON; null targets become NaN.
func (r *FeatureRecord) UnmarshalJSON(data []byte) error {
	var raw featureRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode feature record: %w", err)
	}
	start, err := time.ParseInLocation(StartLayout, raw.Start, time.UTC)
	if err != nil {
		return fmt.Errorf("decode feature record start: %w", err)
	}
	target := make([]float64, len(raw.Target))
	for i, v := range raw.Target {
		if v == nil {
			target[i] = math.NaN()
			continue
		}
		target[i] = *v
	}
	*r = FeatureRecord{ID: raw.ID, Start: start, Target: target, Cat: raw.Cat}
	return nil
}

// Metadata is one row of the geolocation table that accompanies a feature set.
type Metadata struct {
	ID        int
	Key       EntityKey
	Point     orb.Point
	PlaceName string
	Address   string
}

// HasPoint reports whether both coordinates are known.
func (m Metadata) HasPoint() bool {
	return !math.IsNaN(m.Point.Lon()) && !math.IsNaN(m.Point.Lat())
}

// Categories holds, per categorical level, the distinct values in code order.
type Categories [4][]string

// FeatureSet is the output of Featurize.
type FeatureSet struct {
	Records    []FeatureRecord
	Metadata   []Metadata
	Categories Categories
}

// Output is everything a sink persists for one run.
type Output struct {
	RunID    string
	Cutoff   time.Time
	All      []FeatureRecord
	Train    []FeatureRecord
	Test     []FeatureRecord
	Metadata []Metadata
}

// Dataset names one of the three record collections in an Output.
type Dataset string

const (
	DatasetAll   Dataset = "all"
	DatasetTrain Dataset = "train"
	DatasetTest  Dataset = "test"
)

// Datasets lists the record collections in write order.
var Datasets = []Dataset{DatasetAll, DatasetTrain, DatasetTest}

// Records returns the collection for d.
func (o Output) Records(d Dataset) []FeatureRecord {
	switch d {
	case DatasetAll:
		return o.All
	case DatasetTrain:
		return o.Train
	case DatasetTest:
		return o.Test
	default:
		return nil
	}
}
