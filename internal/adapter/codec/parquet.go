package codec

import (
	"fmt"
	"io"
	"strings"

	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// parquetRecord is the columnar shape of a feature record. Missing target
// values stay NaN.
type parquetRecord struct {
	ID     int64     `parquet:"name=id, type=INT64"`
	Start  int64     `parquet:"name=start, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Target []float64 `parquet:"name=target, type=MAP, convertedtype=LIST, valuetype=DOUBLE"`
	Cat    []int32   `parquet:"name=cat, type=MAP, convertedtype=LIST, valuetype=INT32"`
}

const parquetParallelism = 4

// WriteParquet writes records as a single Parquet file.
func WriteParquet(w io.Writer, records []domain.FeatureRecord, compression string) (err error) {
	codec, err := compressionCodec(compression)
	if err != nil {
		return err
	}

	pw, err := writer.NewParquetWriterFromWriter(w, new(parquetRecord), parquetParallelism)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = codec

	// Write and WriteStop can panic on schema mismatches inside the library.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("write parquet file: %v", r)
		}
	}()

	for i := range records {
		if err := pw.Write(toParquet(records[i])); err != nil {
			return fmt.Errorf("write parquet record %d: %w", records[i].ID, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize parquet file: %w", err)
	}
	return nil
}

func toParquet(r domain.FeatureRecord) parquetRecord {
	cat := make([]int32, len(r.Cat))
	for i, c := range r.Cat {
		cat[i] = int32(c)
	}
	return parquetRecord{
		ID:     int64(r.ID),
		Start:  r.Start.UnixMilli(),
		Target: r.Target,
		Cat:    cat,
	}
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(name) {
	case "SNAPPY", "":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "UNCOMPRESSED", "NONE":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported parquet compression %q", name)
	}
}
