package config

import (
	"testing"
	"time"

	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMapboxToken = "pk.test-token"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.SplitDays)
	assert.Equal(t, domain.LeadingGapKeep, cfg.LeadingGap)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)
	assert.Empty(t, cfg.SourceFile)
	assert.Equal(t, "/opt/ml/processing/sql/openaq.ddl", cfg.AthenaDDLFile)
	assert.Equal(t, "/opt/ml/processing/sql/sydney.dml", cfg.AthenaQueryFile)
	assert.Empty(t, cfg.AthenaOutputLocation)
	assert.Equal(t, 3*time.Second, cfg.AthenaPollInterval)
	assert.Zero(t, cfg.AthenaWaitTimeout)
	assert.True(t, cfg.AthenaWaitStrict)
	assert.Equal(t, "/opt/ml/processing/output", cfg.OutputDir)
	assert.Equal(t, FormatJSONLines, cfg.OutputFormat)
	assert.Equal(t, "SNAPPY", cfg.ParquetCompression)
	assert.Empty(t, cfg.UploadURI)
	assert.Empty(t, cfg.GCSCredentials)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "openaq-features", cfg.KafkaFeaturesTopic)
	assert.False(t, cfg.MapboxEnabled)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Zero(t, cfg.HTTPLinger)
	assert.Empty(t, cfg.PushgatewayURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("SPLIT_DAYS", "14")
	t.Setenv("LEADING_GAP_POLICY", "backfill")
	t.Setenv("AWS_REGION", "ap-southeast-2")
	t.Setenv("SOURCE_FILE", "testdata/openaq.csv")
	t.Setenv("ATHENA_OUTPUT_LOCATION", "s3://bucket/results/")
	t.Setenv("ATHENA_POLL_INTERVAL", "500ms")
	t.Setenv("ATHENA_WAIT_TIMEOUT", "10m")
	t.Setenv("ATHENA_WAIT_STRICT", "false")
	t.Setenv("OUTPUT_DIR", "/tmp/out")
	t.Setenv("OUTPUT_FORMAT", "Parquet")
	t.Setenv("PARQUET_COMPRESSION", "gzip")
	t.Setenv("UPLOAD_URI", "gs://features/openaq/")
	t.Setenv("GCS_CREDENTIALS_FILE", "/secrets/gcs.json")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_FEATURES_TOPIC", "features")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_TIMEOUT", "10s")
	t.Setenv("MAPBOX_CACHE_SIZE", "500")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("HTTP_LINGER", "2m")
	t.Setenv("PUSHGATEWAY_URL", "http://pushgateway:9091")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 14, cfg.SplitDays)
	assert.Equal(t, domain.LeadingGapBackfill, cfg.LeadingGap)
	assert.Equal(t, "ap-southeast-2", cfg.AWSRegion)
	assert.Equal(t, "testdata/openaq.csv", cfg.SourceFile)
	assert.Equal(t, "s3://bucket/results/", cfg.AthenaOutputLocation)
	assert.Equal(t, 500*time.Millisecond, cfg.AthenaPollInterval)
	assert.Equal(t, 10*time.Minute, cfg.AthenaWaitTimeout)
	assert.False(t, cfg.AthenaWaitStrict)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, FormatParquet, cfg.OutputFormat)
	assert.Equal(t, "GZIP", cfg.ParquetCompression)
	assert.Equal(t, "gs://features/openaq/", cfg.UploadURI)
	assert.Equal(t, "/secrets/gcs.json", cfg.GCSCredentials)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "features", cfg.KafkaFeaturesTopic)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 2*time.Minute, cfg.HTTPLinger)
	assert.Equal(t, "http://pushgateway:9091", cfg.PushgatewayURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SPLIT_DAYS", "-1"},
		{"SPLIT_DAYS", "thirty"},
		{"LEADING_GAP_POLICY", "zero"},
		{"ATHENA_POLL_INTERVAL", "soon"},
		{"ATHENA_WAIT_TIMEOUT", "-5s"},
		{"ATHENA_WAIT_STRICT", "maybe"},
		{"OUTPUT_FORMAT", "csv"},
		{"PARQUET_COMPRESSION", "LZ4"},
		{"MAPBOX_TIMEOUT", "bad"},
		{"HTTP_LINGER", "-1s"},
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_MapboxEnabledWithoutToken(t *testing.T) {
	t.Setenv("MAPBOX_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
}

func TestLoad_MapboxExplicitlyDisabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MapboxEnabled)
}

func TestConfig_Settings(t *testing.T) {
	t.Setenv("SPLIT_DAYS", "7")
	t.Setenv("LEADING_GAP_POLICY", "drop")
	cfg, err := Load()
	require.NoError(t, err)

	s := cfg.Settings()
	assert.Equal(t, time.Hour, s.Frequency)
	assert.Equal(t, 7, s.SplitDays)
	assert.Equal(t, domain.LeadingGapDrop, s.LeadingGap)
	require.NoError(t, s.Validate())
}

func TestConfig_ValidateAfterFlagOverride(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.AWSRegion = ""
	assert.ErrorContains(t, cfg.Validate(), "AWS_REGION")
}
