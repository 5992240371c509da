// Package csvsource decodes OpenAQ observation exports. The same parser reads
// Athena query results and local CSV files.
package csvsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
	"github.com/mitchellh/mapstructure"
)

// Accepted timestamp layouts. Zone-less values are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999 MST",
	"2006-01-02",
}

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

var requiredColumns = []string{"country", "city", "location", "parameter", "timestamp", "value"}

// row mirrors one CSV line. Column names follow the OpenAQ Athena table.
type row struct {
	Country   string    `mapstructure:"country"`
	City      string    `mapstructure:"city"`
	Location  string    `mapstructure:"location"`
	Parameter string    `mapstructure:"parameter"`
	Timestamp time.Time `mapstructure:"timestamp"`
	Value     float64   `mapstructure:"value"`
	Latitude  float64   `mapstructure:"point_latitude"`
	Longitude float64   `mapstructure:"point_longitude"`
}

// Parse reads a header-led CSV stream into observations. Column order is free
// and unknown columns are ignored. Empty numeric cells become NaN.
func Parse(r io.Reader) ([]domain.RawObservation, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	if err := checkColumns(columns); err != nil {
		return nil, err
	}

	dec, err := newRowDecoder()
	if err != nil {
		return nil, err
	}

	var out []domain.RawObservation
	fields := make(map[string]any, len(columns))
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		clear(fields)
		for i, col := range columns {
			if i < len(rec) {
				fields[col] = rec[i]
			}
		}

		obs, err := dec.decode(fields)
		if err != nil {
			return nil, fmt.Errorf("decode csv line %d: %w", line, err)
		}
		out = append(out, obs)
	}
	return out, nil
}

func checkColumns(columns []string) error {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}
	for _, c := range requiredColumns {
		if !present[c] {
			return fmt.Errorf("%w %q", ErrMissingColumn, c)
		}
	}
	return nil
}

// rowDecoder decodes CSV fields into a reused row.
type rowDecoder struct {
	row     row
	decoder *mapstructure.Decoder
}

func newRowDecoder() (*rowDecoder, error) {
	d := &rowDecoder{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &d.row,
		TagName: "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToFloatHook,
			stringToTimeHook,
		),
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	d.decoder = decoder
	return d, nil
}

func (d *rowDecoder) decode(fields map[string]any) (domain.RawObservation, error) {
	d.row = row{Value: math.NaN(), Latitude: math.NaN(), Longitude: math.NaN()}
	if err := d.decoder.Decode(fields); err != nil {
		return domain.RawObservation{}, err
	}
	r := d.row
	if r.Timestamp.IsZero() {
		return domain.RawObservation{}, errors.New("empty timestamp")
	}

	return domain.RawObservation{
		Country:   r.Country,
		City:      r.City,
		Location:  r.Location,
		Parameter: r.Parameter,
		Timestamp: r.Timestamp,
		Value:     r.Value,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}, nil
}

func stringToFloatHook(f, t reflect.Type, data any) (any, error) {
	if f.Kind() != reflect.String || t.Kind() != reflect.Float64 {
		return data, nil
	}
	s := strings.TrimSpace(data.(string))
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parse number %q: %w", s, err)
	}
	return v, nil
}

func stringToTimeHook(f, t reflect.Type, data any) (any, error) {
	if f.Kind() != reflect.String || t != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	s := strings.TrimSpace(data.(string))
	if s == "" {
		return time.Time{}, nil
	}
	return ParseTimestamp(s)
}

// ParseTimestamp accepts the layouts Athena and pandas exports use and
// returns the instant in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: unrecognized layout", s)
}
