// Command validate checks a featurization run's JSON lines output: record
// integrity, that train and test pieces reassemble every record, and that the
// date filter only dropped records that have no values on that side of the
// cutoff.
//
// Usage:
//
//	go run ./cmd/validate -dir /opt/ml/processing/output -split-days 30
//	go run ./cmd/validate -dir out -cutoff 2026-09-16
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/couchcryptid/openaq-forecast-etl/internal/adapter/codec"
	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
	"github.com/jonboulle/clockwork"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dir := flag.String("dir", "", "output directory written by the etl job")
	splitDays := flag.Int("split-days", 30, "split days the job ran with; ignored when -cutoff is set")
	cutoffFlag := flag.String("cutoff", "", "cutoff date (YYYY-MM-DD, UTC); defaults to today minus -split-days")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	settings := domain.DefaultSettings()
	settings.SplitDays = *splitDays
	cutoff := settings.Cutoff(clockwork.NewRealClock().Now())
	if *cutoffFlag != "" {
		var err error
		cutoff, err = time.Parse(time.DateOnly, *cutoffFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: parse -cutoff: %v\n", err)
			os.Exit(1)
		}
	}

	if code := run(*dir, cutoff, settings.Frequency); code != 0 {
		os.Exit(code)
	}
}

func run(dir string, cutoff time.Time, freq time.Duration) int {
	fmt.Println("=== Feature Output Validation ===")
	fmt.Printf("cutoff: %s\n\n", cutoff.Format(time.RFC3339))

	datasets := make(map[domain.Dataset][]domain.FeatureRecord, len(domain.Datasets))
	for _, d := range domain.Datasets {
		records, err := loadDataset(dir, d)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load %s: %v\n", d, err)
			return 1
		}
		datasets[d] = records
	}

	all := datasets[domain.DatasetAll]
	train := byID(datasets[domain.DatasetTrain])
	test := byID(datasets[domain.DatasetTest])

	phases := []*phase{
		validateRecords(all),
		validateCompleteness(all, train, test, cutoff, freq),
		validateDropRule(all, train, test, cutoff, freq),
		validateCategories(all, train, test),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d all, %d train, %d test\n", len(all), len(train), len(test))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadDataset(dir string, d domain.Dataset) ([]domain.FeatureRecord, error) {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(codec.DatasetPath(d, codec.FormatJSONLines))))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return codec.ReadJSONLines(f)
}

func byID(records []domain.FeatureRecord) map[int]domain.FeatureRecord {
	m := make(map[int]domain.FeatureRecord, len(records))
	for _, r := range records {
		m[r.ID] = r
	}
	return m
}

// ── Phase 1: Record integrity ──
// Ids are 0..n-1 in order, every record has values and four category codes,
// and no value is missing after the first known one.

func validateRecords(all []domain.FeatureRecord) *phase {
	p := &phase{name: "Phase 1: Record Integrity (all)"}

	for i, r := range all {
		if r.ID != i {
			p.errorf("line %d: id %d, want %d", i+1, r.ID, i)
		}
		if len(r.Target) == 0 {
			p.errorf("id %d: empty target", r.ID)
		}
		if len(r.Cat) != len(domain.CategoryFields) {
			p.errorf("id %d: %d cat codes, want %d", r.ID, len(r.Cat), len(domain.CategoryFields))
		}
		seen := false
		for j, v := range r.Target {
			if !math.IsNaN(v) {
				seen = true
				continue
			}
			if seen {
				p.errorf("id %d: missing value at step %d after the series started", r.ID, j)
				break
			}
		}
	}
	return p
}

// ── Phase 2: Split completeness ──
// Train followed by test reproduces each record exactly.

func validateCompleteness(all []domain.FeatureRecord, train, test map[int]domain.FeatureRecord, cutoff time.Time, freq time.Duration) *phase {
	p := &phase{name: "Phase 2: Split Completeness"}

	for _, r := range all {
		var joined []float64
		start := r.Start
		if tr, ok := train[r.ID]; ok {
			joined = append(joined, tr.Target...)
			start = tr.Start
			if tr.End(freq).After(cutoff) {
				p.errorf("id %d: train piece ends %s, after cutoff", r.ID, tr.End(freq).Format(time.RFC3339))
			}
		}
		if te, ok := test[r.ID]; ok {
			if len(joined) == 0 {
				start = te.Start
			}
			joined = append(joined, te.Target...)
			if te.Start.Before(cutoff) {
				p.errorf("id %d: test piece starts %s, before cutoff", r.ID, te.Start.Format(time.RFC3339))
			}
		}
		if !start.Equal(r.Start) {
			p.errorf("id %d: pieces start %s, record starts %s", r.ID, start.Format(time.RFC3339), r.Start.Format(time.RFC3339))
		}
		if !sameValues(joined, r.Target) {
			p.errorf("id %d: train+test has %d values, all has %d or values differ", r.ID, len(joined), len(r.Target))
		}
	}
	return p
}

// ── Phase 3: Drop rule ──
// A record is missing from a split only when none of its steps fall on that
// side of the cutoff, and the splits hold no unknown ids.

func validateDropRule(all []domain.FeatureRecord, train, test map[int]domain.FeatureRecord, cutoff time.Time, freq time.Duration) *phase {
	p := &phase{name: "Phase 3: Drop Rule"}

	ids := make(map[int]bool, len(all))
	for _, r := range all {
		ids[r.ID] = true
		if _, ok := train[r.ID]; !ok && r.Start.Before(cutoff) {
			p.errorf("id %d: starts %s before cutoff but is missing from train", r.ID, r.Start.Format(time.RFC3339))
		}
		if _, ok := test[r.ID]; !ok && r.End(freq).After(cutoff) {
			p.errorf("id %d: ends %s after cutoff but is missing from test", r.ID, r.End(freq).Format(time.RFC3339))
		}
	}
	for name, split := range map[string]map[int]domain.FeatureRecord{"train": train, "test": test} {
		for id, r := range split {
			if !ids[id] {
				p.errorf("%s: id %d not in all", name, id)
			}
			if len(r.Target) == 0 {
				p.errorf("%s: id %d has an empty target", name, id)
			}
		}
	}
	return p
}

// ── Phase 4: Category consistency ──
// Each id carries the same cat vector in every dataset.

func validateCategories(all []domain.FeatureRecord, train, test map[int]domain.FeatureRecord) *phase {
	p := &phase{name: "Phase 4: Category Consistency"}

	for _, r := range all {
		for name, split := range map[string]map[int]domain.FeatureRecord{"train": train, "test": test} {
			piece, ok := split[r.ID]
			if !ok {
				continue
			}
			if !slices.Equal(piece.Cat, r.Cat) {
				p.errorf("id %d: %s cat %v, all cat %v", r.ID, name, piece.Cat, r.Cat)
			}
		}
	}
	return p
}

func sameValues(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.IsNaN(a[i]) && math.IsNaN(b[i]) {
			continue
		}
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
