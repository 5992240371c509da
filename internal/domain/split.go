package domain

import (
	"slices"
	"time"
)

// Bounds is a time window for FilterDates. A zero Min or Max leaves that side
// open.
type Bounds struct {
	Min time.Time
	Max time.Time
}

// FilterDates truncates every record to the window and drops records left
// with no values. Input records are not modified.
//
// The leading cut removes floor((Min-start)/freq) steps and the trailing cut
// removes ceil((end-Max)/freq) steps, so a record filtered with Max=c and again
// with Min=c yields two pieces that concatenate back to the original target.
func FilterDates(records []FeatureRecord, b Bounds, freq time.Duration) []FeatureRecord {
	out := make([]FeatureRecord, 0, len(records))
	for _, r := range records {
		r = truncate(r, b, freq)
		if len(r.Target) == 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

func truncate(r FeatureRecord, b Bounds, freq time.Duration) FeatureRecord {
	target := r.Target

	if !b.Min.IsZero() && r.Start.Before(b.Min) {
		startIdx := min(int(b.Min.Sub(r.Start)/freq), len(target))
		target = target[startIdx:]
		r.Start = r.Start.Add(time.Duration(startIdx) * freq)
	}

	end := r.Start.Add(time.Duration(len(target)) * freq)
	if !b.Max.IsZero() && end.After(b.Max) {
		over := end.Sub(b.Max)
		endIdx := min(int((over+freq-1)/freq), len(target))
		target = target[:len(target)-endIdx]
	}

	r.Target = slices.Clone(target)
	r.Cat = slices.Clone(r.Cat)
	return r
}

// TrainTestSplit returns the part of every record before cutoff (train) and
// the part from cutoff on (test).
func TrainTestSplit(records []FeatureRecord, cutoff time.Time, freq time.Duration) (train, test []FeatureRecord) {
	train = FilterDates(records, Bounds{Max: cutoff}, freq)
	test = FilterDates(records, Bounds{Min: cutoff}, freq)
	return train, test
}
