package athena

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/openaq-forecast-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/openaq-forecast-etl/internal/adapter/objectstore"
	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
)

// Source creates the OpenAQ table, runs the observation query and parses its
// CSV result.
type Source struct {
	runner    *Runner
	store     objectstore.Store
	ddlFile   string
	queryFile string
	logger    *slog.Logger
}

// NewSource creates a Source. An empty ddlFile skips the table creation step.
func NewSource(runner *Runner, store objectstore.Store, ddlFile, queryFile string, logger *slog.Logger) *Source {
	return &Source{
		runner:    runner,
		store:     store,
		ddlFile:   ddlFile,
		queryFile: queryFile,
		logger:    logger,
	}
}

// Extract runs the DDL and the query, then downloads and parses the result.
func (s *Source) Extract(ctx context.Context) ([]domain.RawObservation, error) {
	if s.ddlFile != "" {
		ddl, err := os.ReadFile(s.ddlFile)
		if err != nil {
			return nil, fmt.Errorf("read ddl file: %w", err)
		}
		if _, err := s.runner.Execute(ctx, string(ddl), "txt"); err != nil {
			return nil, fmt.Errorf("create openaq table: %w", err)
		}
	}

	query, err := os.ReadFile(s.queryFile)
	if err != nil {
		return nil, fmt.Errorf("read query file: %w", err)
	}
	resultURI, err := s.runner.Execute(ctx, string(query), "csv")
	if err != nil {
		return nil, fmt.Errorf("query openaq table: %w", err)
	}

	loc, err := objectstore.ParseURI(resultURI)
	if err != nil {
		return nil, err
	}
	s.logger.Info("reading query result", "uri", resultURI, "bucket", loc.Bucket, "key", loc.Key)

	body, err := s.store.Download(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("download query result: %w", err)
	}
	defer body.Close()

	obs, err := csvsource.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse query result: %w", err)
	}
	return obs, nil
}
