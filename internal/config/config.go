package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Output formats accepted by OUTPUT_FORMAT.
const (
	FormatJSONLines = "jsonl"
	FormatParquet   = "parquet"
)

// Config holds all job settings, populated from environment variables.
type Config struct {
	SplitDays  int
	LeadingGap domain.LeadingGapPolicy
	AWSRegion  string
	SourceFile string

	// Athena source configuration.
	AthenaDDLFile        string
	AthenaQueryFile      string
	AthenaOutputLocation string
	AthenaPollInterval   time.Duration
	AthenaWaitTimeout    time.Duration
	AthenaWaitStrict     bool

	// Sinks.
	OutputDir          string
	OutputFormat       string
	ParquetCompression string
	UploadURI          string
	GCSCredentials     string
	KafkaBrokers       []string
	KafkaFeaturesTopic string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	HTTPAddr        string
	HTTPLinger      time.Duration
	PushgatewayURL  string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	splitDays, err := parseNonNegativeInt("SPLIT_DAYS", "30")
	if err != nil {
		return nil, err
	}

	leadingGap, err := domain.ParseLeadingGapPolicy(sharedcfg.EnvOrDefault("LEADING_GAP_POLICY", string(domain.LeadingGapKeep)))
	if err != nil {
		return nil, fmt.Errorf("invalid LEADING_GAP_POLICY: %w", err)
	}

	pollInterval, err := parseDuration("ATHENA_POLL_INTERVAL", "3s", true)
	if err != nil {
		return nil, err
	}
	waitTimeout, err := parseDuration("ATHENA_WAIT_TIMEOUT", "0s", true)
	if err != nil {
		return nil, err
	}
	waitStrict, err := parseBool("ATHENA_WAIT_STRICT", true)
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s", false)
	if err != nil {
		return nil, err
	}

	httpLinger, err := parseDuration("HTTP_LINGER", "0s", true)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		SplitDays:  splitDays,
		LeadingGap: leadingGap,
		AWSRegion:  sharedcfg.EnvOrDefault("AWS_REGION", "us-east-1"),
		SourceFile: os.Getenv("SOURCE_FILE"),

		AthenaDDLFile:        sharedcfg.EnvOrDefault("ATHENA_DDL_FILE", "/opt/ml/processing/sql/openaq.ddl"),
		AthenaQueryFile:      sharedcfg.EnvOrDefault("ATHENA_QUERY_FILE", "/opt/ml/processing/sql/sydney.dml"),
		AthenaOutputLocation: os.Getenv("ATHENA_OUTPUT_LOCATION"),
		AthenaPollInterval:   pollInterval,
		AthenaWaitTimeout:    waitTimeout,
		AthenaWaitStrict:     waitStrict,

		OutputDir:          sharedcfg.EnvOrDefault("OUTPUT_DIR", "/opt/ml/processing/output"),
		OutputFormat:       strings.ToLower(sharedcfg.EnvOrDefault("OUTPUT_FORMAT", FormatJSONLines)),
		ParquetCompression: strings.ToUpper(sharedcfg.EnvOrDefault("PARQUET_COMPRESSION", "SNAPPY")),
		UploadURI:          os.Getenv("UPLOAD_URI"),
		GCSCredentials:     os.Getenv("GCS_CREDENTIALS_FILE"),
		KafkaBrokers:       brokers,
		KafkaFeaturesTopic: sharedcfg.EnvOrDefault("KAFKA_FEATURES_TOPIC", "openaq-features"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),

		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		HTTPLinger:      httpLinger,
		PushgatewayURL:  os.Getenv("PUSHGATEWAY_URL"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. It is called by Load and again by
// the job after command-line flags are applied.
func (c *Config) Validate() error {
	if c.SplitDays < 0 {
		return errors.New("SPLIT_DAYS must not be negative")
	}
	if c.AWSRegion == "" {
		return errors.New("AWS_REGION is required")
	}
	switch c.OutputFormat {
	case FormatJSONLines, FormatParquet:
	default:
		return fmt.Errorf("invalid OUTPUT_FORMAT %q: want %s or %s", c.OutputFormat, FormatJSONLines, FormatParquet)
	}
	switch c.ParquetCompression {
	case "SNAPPY", "GZIP", "UNCOMPRESSED":
	default:
		return fmt.Errorf("invalid PARQUET_COMPRESSION %q", c.ParquetCompression)
	}
	if c.OutputDir == "" {
		return errors.New("OUTPUT_DIR is required")
	}
	if c.SourceFile == "" && c.AthenaQueryFile == "" {
		return errors.New("ATHENA_QUERY_FILE is required when SOURCE_FILE is not set")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaFeaturesTopic == "" {
		return errors.New("KAFKA_FEATURES_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

// Settings returns the featurization parameters for this run.
func (c *Config) Settings() domain.Settings {
	s := domain.DefaultSettings()
	s.SplitDays = c.SplitDays
	s.LeadingGap = c.LeadingGap
	return s
}

func parseNonNegativeInt(key, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
