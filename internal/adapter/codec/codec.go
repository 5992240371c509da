// Package codec encodes a run's output into the files sinks persist: one
// record file per dataset plus a GeoJSON metadata table.
package codec

import (
	"bytes"
	"fmt"

	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
)

// Format selects the record file encoding.
type Format string

const (
	FormatJSONLines Format = "jsonl"
	FormatParquet   Format = "parquet"
)

// MetadataPath is where the geolocation table is written, relative to the
// output root.
const MetadataPath = "all/metadata.geojson"

// Artifact is one encoded output file.
type Artifact struct {
	Path        string // relative to the output root, slash separated
	ContentType string
	Data        []byte
	Dataset     domain.Dataset // empty for the metadata table
	Records     int
}

// Encoder turns a domain.Output into artifacts.
type Encoder struct {
	Format      Format
	Compression string // parquet only: SNAPPY, GZIP or UNCOMPRESSED
}

// DatasetPath returns the relative file path for a dataset.
func DatasetPath(d domain.Dataset, f Format) string {
	ext := ".json"
	if f == FormatParquet {
		ext = ".parquet"
	}
	switch d {
	case domain.DatasetAll:
		return "all/all_features" + ext
	default:
		return string(d) + "/" + string(d) + ext
	}
}

// Encode produces the three dataset files followed by the metadata table.
func (e Encoder) Encode(out domain.Output) ([]Artifact, error) {
	artifacts := make([]Artifact, 0, len(domain.Datasets)+1)

	for _, d := range domain.Datasets {
		records := out.Records(d)
		var buf bytes.Buffer
		var contentType string

		switch e.Format {
		case FormatJSONLines, "":
			contentType = "application/x-ndjson"
			if err := WriteJSONLines(&buf, records); err != nil {
				return nil, fmt.Errorf("encode %s dataset: %w", d, err)
			}
		case FormatParquet:
			contentType = "application/vnd.apache.parquet"
			if err := WriteParquet(&buf, records, e.Compression); err != nil {
				return nil, fmt.Errorf("encode %s dataset: %w", d, err)
			}
		default:
			return nil, fmt.Errorf("unsupported output format %q", e.Format)
		}

		artifacts = append(artifacts, Artifact{
			Path:        DatasetPath(d, e.Format),
			ContentType: contentType,
			Data:        buf.Bytes(),
			Dataset:     d,
			Records:     len(records),
		})
	}

	var buf bytes.Buffer
	if err := WriteGeoJSON(&buf, out.Metadata); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	artifacts = append(artifacts, Artifact{
		Path:        MetadataPath,
		ContentType: "application/geo+json",
		Data:        buf.Bytes(),
		Records:     len(out.Metadata),
	})

	return artifacts, nil
}
