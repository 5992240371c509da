// Package domain turns OpenAQ air quality observations into per-location
// hourly time series for a DeepAR-style forecasting model.
//
// # Data Source
//
// Observations come from the public OpenAQ dataset, queried through Athena as a
// single flat table. Each row is one reading:
//
//	country, city, location, parameter, timestamp, value, point_latitude, point_longitude
//
// The four categorical columns identify an entity ("AU", "Sydney", "Randwick",
// "pm25"). Stations report irregularly: several readings may land in the same
// hour, hours may be skipped entirely, and coordinates are occasionally left
// blank on individual rows.
//
// # Pipeline
//
//	RawObservation -> Resample -> ResampledSeries -> Featurize -> FeatureRecord -> TrainTestSplit
//
// Resample buckets readings per entity into hourly slots, keeps the peak value
// per hour (the usual reporting convention for pollutant concentrations),
// reindexes onto a contiguous hourly grid and fills the holes:
//
//	value:     linear interpolation, trailing holes carry the last value,
//	           everything rounded to 2 decimals
//	lat / lon: forward fill
//
// Hours before the first known value cannot be interpolated; what happens to
// them is a [LeadingGapPolicy] choice and defaults to keeping them as NaN.
//
// Featurize collapses each series into a [FeatureRecord]: start, target, and a
// "cat" vector of per-level integer codes produced by [Factorize]. Ids and
// codes are stable within one run only.
//
// # Splitting
//
// A record covers [start, start + len(target)·freq). [FilterDates] cuts the
// prefix with a floored index and the suffix with a ceiled index, so the train
// window (max = cutoff) and the test window (min = cutoff) partition every
// record's timesteps exactly. Records left with no values are dropped.
//
// # Serialization
//
// Records serialize to the DeepAR JSON lines shape:
//
//	{"id":0,"start":"2021-03-01 00:00:00","target":[null,5,6,7],"cat":[0,0,1,2]}
//
// NaN values are written as null.
package domain
