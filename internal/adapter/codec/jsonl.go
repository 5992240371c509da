package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
)

// WriteJSONLines writes one JSON object per line.
func WriteJSONLines(w io.Writer, records []domain.FeatureRecord) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return fmt.Errorf("write record %d: %w", records[i].ID, err)
		}
	}
	return nil
}

// ReadJSONLines reads records written by WriteJSONLines.
func ReadJSONLines(r io.Reader) ([]domain.FeatureRecord, error) {
	dec := json.NewDecoder(r)
	var out []domain.FeatureRecord
	for {
		var rec domain.FeatureRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read record %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
}
