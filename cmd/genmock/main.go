// Command genmock writes a synthetic OpenAQ observation export for local runs.
// Readings are irregular: several per hour for some stations, none for hours
// at a time for others, and the occasional empty value. The file is parsed
// back and resampled with the ETL packages so the summary matches what the
// job will see.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/sydney.csv -days 45
//	SOURCE_FILE=data/mock/sydney.csv go run ./cmd/etl
package main

import (
	"bytes"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/openaq-forecast-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
)

type station struct {
	location string
	lat, lon float64
}

// Sydney monitoring stations with their published coordinates.
var stations = []station{
	{"Randwick", -33.9178, 151.2417},
	{"Rozelle", -33.8658, 151.1625},
	{"Liverpool", -33.9328, 150.9058},
	{"Earlwood", -33.9178, 151.1347},
	{"Chullora", -33.8939, 151.0453},
}

type parameter struct {
	name     string
	baseline float64
	swing    float64 // diurnal amplitude
}

var parameters = []parameter{
	{"pm25", 8, 4},
	{"pm10", 18, 8},
	{"no2", 12, 9},
	{"o3", 20, 12},
}

var header = []string{"country", "city", "location", "parameter", "timestamp", "value", "unit", "point_latitude", "point_longitude"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the CSV export")
	days := flag.Int("days", 45, "number of days of observations ending today (UTC)")
	seed := flag.Uint64("seed", 1, "random seed, for reproducible files")
	missing := flag.Float64("missing", 0.15, "probability that an hour has no reading")
	flag.Parse()

	if *out == "" || *days <= 0 {
		flag.Usage()
		return fmt.Errorf("missing required flags: -out, -days")
	}

	y, m, d := time.Now().UTC().Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -*days)

	data, err := generate(start, end, rand.New(rand.NewPCG(*seed, *seed)), *missing)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}

	obs, err := csvsource.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse generated csv: %w", err)
	}
	_, stats := domain.Resample(obs, domain.DefaultSettings())
	log.Printf("wrote %s: %d observations, %d entities, %d hours, %d gap hours",
		*out, stats.Observations, stats.Entities, stats.Hours, stats.GapHours)
	return nil
}

func generate(start, end time.Time, rng *rand.Rand, missing float64) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, st := range stations {
		for _, param := range parameters {
			// Not every station measures every pollutant.
			if rng.Float64() < 0.3 {
				continue
			}
			// Some series begin later than others.
			first := start.Add(time.Duration(rng.IntN(72)) * time.Hour)
			for hour := first; hour.Before(end); hour = hour.Add(time.Hour) {
				if rng.Float64() < missing {
					continue
				}
				for range 1 + rng.IntN(3) {
					ts := hour.Add(time.Duration(rng.IntN(60)) * time.Minute)
					if err := w.Write(reading(st, param, ts, rng)); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

func reading(st station, param parameter, ts time.Time, rng *rand.Rand) []string {
	value := ""
	if rng.Float64() >= 0.01 {
		phase := 2 * math.Pi * float64(ts.Hour()) / 24
		v := max(param.baseline+param.swing*math.Sin(phase)+rng.NormFloat64()*param.swing/3, 0)
		value = strconv.FormatFloat(math.Round(v*10)/10, 'f', 1, 64)
	}
	return []string{
		"AU",
		"Sydney",
		st.location,
		param.name,
		ts.Format("2006-01-02 15:04:05.000"),
		value,
		"µg/m³",
		strconv.FormatFloat(st.lat, 'f', 4, 64),
		strconv.FormatFloat(st.lon, 'f', 4, 64),
	}
}
