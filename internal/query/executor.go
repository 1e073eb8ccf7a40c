package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/codecheck/internal/dbconn"
)

// Executor runs requests off the caller's goroutine. A new submission
// cancels the one in flight; only the latest job is current.
type Executor struct {
	opener  dbconn.Opener
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	seq     uint64
	current uint64
	cancel  context.CancelFunc
}

// NewExecutor creates an executor. A zero timeout leaves runs unbounded.
// If logger is nil, a discard logger is used.
func NewExecutor(opener dbconn.Opener, timeout time.Duration, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		opener:  opener,
		timeout: timeout,
		logger:  logger,
	}
}

// Job is one submitted request. It resolves exactly once.
type Job struct {
	ID      uint64
	TraceID string
	Request Request

	done    chan struct{}
	outcome Outcome
}

// Done is closed once the outcome is available.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job resolves and returns its outcome.
func (j *Job) Wait() Outcome {
	<-j.done
	return j.outcome
}

// Submit starts req on a new goroutine, cancelling any job still in flight.
func (e *Executor) Submit(ctx context.Context, req Request) *Job {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.seq++
	id := e.seq
	e.current = id
	jobCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	job := &Job{
		ID:      id,
		TraceID: uuid.NewString(),
		Request: req,
		done:    make(chan struct{}),
	}

	go func() {
		defer cancel()
		job.outcome = e.run(jobCtx, req, job.TraceID)
		close(job.done)
	}()
	return job
}

// IsCurrent reports whether id is the most recent submission.
func (e *Executor) IsCurrent(id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return id == e.current
}

// Run executes req synchronously.
func (e *Executor) Run(ctx context.Context, req Request) Outcome {
	return e.run(ctx, req, uuid.NewString())
}

func (e *Executor) run(ctx context.Context, req Request, traceID string) (out Outcome) {
	logger := e.logger.With(slog.String("trace_id", traceID), slog.String("line", req.LineName))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out = Failure{Message: fmt.Sprintf("internal error: %v", r), Reason: ReasonError}
		}
		logOutcome(logger, out, time.Since(start))
	}()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	logger.Debug("running query", slog.String("predicate", req.Predicate()))

	db, err := e.opener.Open(ctx, req.Line)
	if err != nil {
		return e.failure(ctx, err)
	}
	// Closed before the outcome leaves this function.
	defer func() { _ = db.Close() }()

	columns, rows, err := fetchAll(ctx, db, req)
	if err != nil {
		return e.failure(ctx, err)
	}
	if len(rows) == 0 {
		return Empty{}
	}
	return Success{Columns: columns, Rows: rows}
}

// fetchAll materializes every row and the column names.
func fetchAll(ctx context.Context, db *sql.DB, req Request) ([]string, [][]any, error) {
	sqlStr, args := req.Statement()

	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var result [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		valuePtrs := make([]any, len(cols))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, nil, err
		}
		for i, v := range values {
			// Convert []byte to string for readability
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result = append(result, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return cols, result, nil
}

func (e *Executor) failure(ctx context.Context, err error) Failure {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return Failure{
			Message: fmt.Sprintf("query timed out after %s", e.timeout),
			Reason:  ReasonTimeout,
		}
	case errors.Is(ctx.Err(), context.Canceled):
		return Failure{Message: "query canceled", Reason: ReasonCanceled}
	default:
		return Failure{Message: err.Error(), Reason: ReasonError}
	}
}

func logOutcome(logger *slog.Logger, out Outcome, elapsed time.Duration) {
	switch o := out.(type) {
	case Success:
		logger.Info("query finished", slog.Int("rows", len(o.Rows)), slog.Duration("elapsed", elapsed))
	case Empty:
		logger.Info("query finished", slog.Int("rows", 0), slog.Duration("elapsed", elapsed))
	case Failure:
		logger.Warn("query failed",
			slog.String("reason", o.Reason.String()),
			slog.String("error", o.Message),
			slog.Duration("elapsed", elapsed))
	}
}
