package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsathena "github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/couchcryptid/openaq-forecast-etl/internal/adapter/athena"
	"github.com/couchcryptid/openaq-forecast-etl/internal/adapter/codec"
	"github.com/couchcryptid/openaq-forecast-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/openaq-forecast-etl/internal/adapter/filesink"
	"github.com/couchcryptid/openaq-forecast-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/openaq-forecast-etl/internal/adapter/kafka"
	"github.com/couchcryptid/openaq-forecast-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/openaq-forecast-etl/internal/adapter/objectstore"
	"github.com/couchcryptid/openaq-forecast-etl/internal/config"
	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
	"github.com/couchcryptid/openaq-forecast-etl/internal/observability"
	"github.com/couchcryptid/openaq-forecast-etl/internal/pipeline"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	flag.IntVar(&cfg.SplitDays, "split-days", cfg.SplitDays, "days before today that start the test window")
	flag.StringVar(&cfg.AWSRegion, "region", cfg.AWSRegion, "AWS region for Athena, S3 and STS")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid flags", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("featurization failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			if cerr := c.Close(); cerr != nil {
				err = multierror.Append(err, cerr)
			}
		}
	}()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	stores := objectstore.Mux{objectstore.SchemeS3: objectstore.NewS3Store(s3.NewFromConfig(awsCfg))}
	if cfg.UploadURI != "" {
		loc, err := objectstore.ParseURI(cfg.UploadURI)
		if err != nil {
			return fmt.Errorf("parse UPLOAD_URI: %w", err)
		}
		if loc.Scheme == objectstore.SchemeGCS {
			gcs, err := objectstore.NewGCSStore(ctx, cfg.GCSCredentials)
			if err != nil {
				return err
			}
			closers = append(closers, gcs)
			stores[objectstore.SchemeGCS] = gcs
		}
	}

	source, err := newSource(ctx, cfg, awsCfg, stores, logger, metrics)
	if err != nil {
		return err
	}

	sinks, err := newSinks(cfg, stores, logger)
	if err != nil {
		return err
	}
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			closers = append(closers, c)
		}
	}

	var geocoder domain.ReverseGeocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	p := pipeline.New(source, sinks, geocoder, cfg.Settings(), clockwork.NewRealClock(), logger, metrics, runID)

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			if err := srv.ShutdownAfter(ctx, clockwork.NewRealClock(), cfg.HTTPLinger, cfg.ShutdownTimeout); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	_, runErr := p.Run(ctx)

	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := observability.Push(pushCtx, cfg.PushgatewayURL, prometheus.DefaultGatherer); err != nil {
			logger.Warn("metrics push failed", "url", cfg.PushgatewayURL, "error", err)
		}
	}
	return runErr
}

// newSource reads SOURCE_FILE when set and queries Athena otherwise.
func newSource(ctx context.Context, cfg *config.Config, awsCfg aws.Config, store objectstore.Store, logger *slog.Logger, metrics *observability.Metrics) (pipeline.Source, error) {
	if cfg.SourceFile != "" {
		logger.Info("reading observations from file", "path", cfg.SourceFile)
		return csvsource.NewFileSource(cfg.SourceFile, logger), nil
	}

	location := cfg.AthenaOutputLocation
	if location == "" {
		var err error
		location, err = athena.DefaultOutputLocation(ctx, sts.NewFromConfig(awsCfg))
		if err != nil {
			return nil, fmt.Errorf("resolve athena output location: %w", err)
		}
	}
	logger.Info("reading observations from athena", "output_location", location, "query_file", cfg.AthenaQueryFile)

	runner := athena.NewRunner(awsathena.NewFromConfig(awsCfg), athena.RunnerConfig{
		OutputLocation: location,
		PollInterval:   cfg.AthenaPollInterval,
		WaitTimeout:    cfg.AthenaWaitTimeout,
		Strict:         cfg.AthenaWaitStrict,
	}, clockwork.NewRealClock(), logger, metrics)
	return athena.NewSource(runner, store, cfg.AthenaDDLFile, cfg.AthenaQueryFile, logger), nil
}

// newSinks returns the file sink first, followed by the optional upload and
// Kafka sinks.
func newSinks(cfg *config.Config, store objectstore.Store, logger *slog.Logger) ([]pipeline.Sink, error) {
	encoder := codec.Encoder{Format: codec.Format(cfg.OutputFormat), Compression: cfg.ParquetCompression}
	sinks := []pipeline.Sink{filesink.New(cfg.OutputDir, encoder, logger)}

	if cfg.UploadURI != "" {
		upload, err := objectstore.NewSink(store, cfg.UploadURI, encoder, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, upload)
	}
	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaFeaturesTopic, logger))
	}
	return sinks, nil
}
