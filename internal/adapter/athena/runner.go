// Package athena runs OpenAQ queries on Amazon Athena and reads their CSV
// results from S3.
package athena

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/couchcryptid/openaq-forecast-etl/internal/observability"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrQueryFailed is wrapped by every *QueryError.
	ErrQueryFailed = errors.New("athena query failed")
	// ErrQueryTimeout is returned in strict mode when the wait budget runs out
	// before the query reaches a terminal state.
	ErrQueryTimeout = errors.New("athena query did not finish within the wait budget")
)

// QueryError describes a query that ended in a state other than SUCCEEDED.
type QueryError struct {
	QueryID string
	State   string
	Reason  string
}

func (e *QueryError) Error() string {
	msg := fmt.Sprintf("query %s failed with status %s", e.QueryID, e.State)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *QueryError) Unwrap() error { return ErrQueryFailed }

// API is the subset of the Athena client used by Runner.
type API interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
}

// RunnerConfig controls where results land and how long Execute waits.
type RunnerConfig struct {
	OutputLocation string        // s3:// prefix ending in a slash
	PollInterval   time.Duration // zero polls back to back
	WaitTimeout    time.Duration // zero waits until a terminal state
	Strict         bool          // fail instead of returning an unverified URI when WaitTimeout expires
}

// Runner submits queries and blocks until they finish.
type Runner struct {
	api     API
	cfg     RunnerConfig
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRunner creates a Runner.
func NewRunner(api API, cfg RunnerConfig, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	if !strings.HasSuffix(cfg.OutputLocation, "/") {
		cfg.OutputLocation += "/"
	}
	return &Runner{api: api, cfg: cfg, clock: clock, logger: logger, metrics: metrics}
}

// Execute runs query and returns the URI of its result file, which Athena
// names <output location><query id>.<ext>.
func (r *Runner) Execute(ctx context.Context, query, ext string) (string, error) {
	out, err := r.api.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(query),
		ResultConfiguration: &types.ResultConfiguration{
			OutputLocation: aws.String(r.cfg.OutputLocation),
		},
	})
	if err != nil {
		return "", fmt.Errorf("start query execution: %w", err)
	}
	id := aws.ToString(out.QueryExecutionId)
	resultURI := fmt.Sprintf("%s%s.%s", r.cfg.OutputLocation, id, ext)
	r.logger.Info("athena query started", "query_id", id, "output", resultURI)

	start := r.clock.Now()
	defer func() {
		r.metrics.QueryWaitDuration.Observe(r.clock.Since(start).Seconds())
	}()

	for {
		if r.cfg.WaitTimeout > 0 && r.clock.Since(start) >= r.cfg.WaitTimeout {
			if r.cfg.Strict {
				return "", fmt.Errorf("query %s: %w", id, ErrQueryTimeout)
			}
			r.logger.Warn("athena wait budget exhausted, using unverified result location",
				"query_id", id, "wait_timeout", r.cfg.WaitTimeout, "output", resultURI)
			return resultURI, nil
		}

		res, err := r.api.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{QueryExecutionId: aws.String(id)})
		if err != nil {
			return "", fmt.Errorf("get query execution %s: %w", id, err)
		}
		state, reason, location := queryStatus(res)

		switch state {
		case types.QueryExecutionStateSucceeded:
			if location != "" {
				resultURI = location
			}
			r.logger.Info("athena query succeeded", "query_id", id, "elapsed", r.clock.Since(start))
			return resultURI, nil
		case types.QueryExecutionStateQueued, types.QueryExecutionStateRunning:
			r.logger.Debug("athena query pending", "query_id", id, "state", string(state))
		case "":
			return "", &QueryError{QueryID: id, State: "UNKNOWN", Reason: "no status in response"}
		default:
			return "", &QueryError{QueryID: id, State: string(state), Reason: reason}
		}

		if err := r.sleep(ctx); err != nil {
			return "", err
		}
	}
}

func (r *Runner) sleep(ctx context.Context) error {
	if r.cfg.PollInterval <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.clock.After(r.cfg.PollInterval):
		return nil
	}
}

func queryStatus(out *athena.GetQueryExecutionOutput) (state types.QueryExecutionState, reason, location string) {
	if out == nil || out.QueryExecution == nil {
		return "", "", ""
	}
	qe := out.QueryExecution
	if qe.Status != nil {
		state = qe.Status.State
		reason = aws.ToString(qe.Status.StateChangeReason)
	}
	if qe.ResultConfiguration != nil {
		location = aws.ToString(qe.ResultConfiguration.OutputLocation)
	}
	return state, reason, location
}
