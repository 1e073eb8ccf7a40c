package query

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/codecheck/internal/dbconn"
	"github.com/leapstack-labs/codecheck/internal/registry"
	"github.com/leapstack-labs/codecheck/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	openEndedSQL = "SELECT * FROM codes WHERE code LIKE $1 AND dtime_ins::date >= $2"
	boundedSQL   = "SELECT * FROM codes WHERE code LIKE $1 AND dtime_ins::date >= $2 AND dtime_ins::date <= $3"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	return db, mock
}

func staticOpener(db *sql.DB) dbconn.Opener {
	return dbconn.OpenerFunc(func(context.Context, registry.Line) (*sql.DB, error) {
		return db, nil
	})
}

func testRequest(t *testing.T) Request {
	return Request{
		LineName:     "Line 1",
		Line:         testLine,
		ProductName:  "Milk 1L",
		CodeFragment: "04600000000000",
		From:         date(t, "2024-01-01"),
	}
}

func TestExecutor_Run(t *testing.T) {
	tests := []struct {
		name      string
		bounded   bool
		setupMock func(mock sqlmock.Sqlmock)
		check     func(t *testing.T, out Outcome)
	}{
		{
			name: "rows",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(openEndedSQL).
					WithArgs("%04600000000000%", "2024-01-01").
					WillReturnRows(sqlmock.NewRows([]string{"id", "code", "sscc"}).
						AddRow(int64(1), []byte("0104600000000000215abc"), nil).
						AddRow(int64(2), "0104600000000000215abd", "146000000000000001"))
				mock.ExpectClose()
			},
			check: func(t *testing.T, out Outcome) {
				s, ok := out.(Success)
				require.True(t, ok, "want Success, got %#v", out)
				assert.Equal(t, []string{"id", "code", "sscc"}, s.Columns)
				require.Len(t, s.Rows, 2)
				assert.Equal(t, "0104600000000000215abc", s.Rows[0][1], "[]byte converted to string")
				assert.Nil(t, s.Rows[0][2])
				assert.Equal(t, "146000000000000001", s.Rows[1][2])
			},
		},
		{
			name:    "bounded range",
			bounded: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(boundedSQL).
					WithArgs("%04600000000000%", "2024-01-01", "2024-01-31").
					WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("x"))
				mock.ExpectClose()
			},
			check: func(t *testing.T, out Outcome) {
				assert.IsType(t, Success{}, out)
			},
		},
		{
			name: "no rows",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(openEndedSQL).
					WillReturnRows(sqlmock.NewRows([]string{"id", "code"}))
				mock.ExpectClose()
			},
			check: func(t *testing.T, out Outcome) {
				assert.Equal(t, Empty{}, out)
			},
		},
		{
			name: "query error keeps driver message and still closes",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(openEndedSQL).
					WillReturnError(errors.New(`ERROR: relation "codes" does not exist (SQLSTATE 42P01)`))
				mock.ExpectClose()
			},
			check: func(t *testing.T, out Outcome) {
				assert.Equal(t, Failure{
					Message: `ERROR: relation "codes" does not exist (SQLSTATE 42P01)`,
					Reason:  ReasonError,
				}, out)
			},
		},
		{
			name: "row error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(openEndedSQL).
					WillReturnRows(sqlmock.NewRows([]string{"code"}).
						AddRow("a").
						RowError(0, errors.New("connection reset")))
				mock.ExpectClose()
			},
			check: func(t *testing.T, out Outcome) {
				f, ok := out.(Failure)
				require.True(t, ok)
				assert.Equal(t, "connection reset", f.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			tt.setupMock(mock)

			req := testRequest(t)
			if tt.bounded {
				to := date(t, "2024-01-31")
				req.To = &to
			}

			e := NewExecutor(staticOpener(db), 0, testutil.NewTestLogger(t))
			tt.check(t, e.Run(context.Background(), req))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestExecutor_Run_ConnectionRefused(t *testing.T) {
	opener := dbconn.OpenerFunc(func(context.Context, registry.Line) (*sql.DB, error) {
		return nil, errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")
	})

	out := NewExecutor(opener, 0, nil).Run(context.Background(), testRequest(t))

	assert.Equal(t, Failure{
		Message: "dial tcp 10.0.0.5:5432: connect: connection refused",
		Reason:  ReasonError,
	}, out)
}

func TestExecutor_Run_Timeout(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(openEndedSQL).
		WillDelayFor(2 * time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("x"))
	mock.ExpectClose()

	e := NewExecutor(staticOpener(db), 50*time.Millisecond, nil)
	out := e.Run(context.Background(), testRequest(t))

	f, ok := out.(Failure)
	require.True(t, ok, "want Failure, got %#v", out)
	assert.Equal(t, ReasonTimeout, f.Reason)
	assert.Contains(t, f.Message, "timed out after 50ms")
	assert.NoError(t, mock.ExpectationsWereMet(), "connection must be closed on timeout")
}

func TestExecutor_Run_RecoversPanic(t *testing.T) {
	opener := dbconn.OpenerFunc(func(context.Context, registry.Line) (*sql.DB, error) {
		panic("boom")
	})

	out := NewExecutor(opener, 0, nil).Run(context.Background(), testRequest(t))

	f, ok := out.(Failure)
	require.True(t, ok)
	assert.Contains(t, f.Message, "boom")
}

func TestExecutor_Submit(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(openEndedSQL).
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("x"))
	mock.ExpectClose()

	e := NewExecutor(staticOpener(db), time.Second, nil)
	job := e.Submit(context.Background(), testRequest(t))

	select {
	case <-job.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("job did not resolve")
	}

	assert.IsType(t, Success{}, job.Wait())
	assert.IsType(t, Success{}, job.Wait(), "outcome is stable across reads")
	assert.True(t, e.IsCurrent(job.ID))
	assert.NotEmpty(t, job.TraceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_Submit_CancelAndReplace(t *testing.T) {
	slowDB, slowMock := newMock(t)
	slowMock.ExpectQuery(openEndedSQL).
		WillDelayFor(5 * time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("stale"))
	slowMock.ExpectClose()

	fastDB, fastMock := newMock(t)
	fastMock.ExpectQuery(openEndedSQL).
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("fresh"))
	fastMock.ExpectClose()

	var mu sync.Mutex
	opener := dbconn.OpenerFunc(func(_ context.Context, line registry.Line) (*sql.DB, error) {
		mu.Lock()
		defer mu.Unlock()
		if line.Database == "slow" {
			return slowDB, nil
		}
		return fastDB, nil
	})

	e := NewExecutor(opener, 0, nil)

	slowReq := testRequest(t)
	slowReq.Line.Database = "slow"
	first := e.Submit(context.Background(), slowReq)
	second := e.Submit(context.Background(), testRequest(t))

	require.Greater(t, second.ID, first.ID)

	firstOut := waitJob(t, first)
	secondOut := waitJob(t, second)

	f, ok := firstOut.(Failure)
	require.True(t, ok, "superseded job resolves with a failure, got %#v", firstOut)
	assert.Equal(t, ReasonCanceled, f.Reason)
	assert.False(t, e.IsCurrent(first.ID))

	s, ok := secondOut.(Success)
	require.True(t, ok)
	assert.Equal(t, "fresh", s.Rows[0][0])
	assert.True(t, e.IsCurrent(second.ID))

	// The superseded query may be cancelled before it reaches the driver,
	// so only the replacement's expectations are deterministic.
	assert.NoError(t, fastMock.ExpectationsWereMet())
}

func waitJob(t *testing.T, j *Job) Outcome {
	t.Helper()
	select {
	case <-j.Done():
		return j.Wait()
	case <-time.After(3 * time.Second):
		t.Fatalf("job %d did not resolve", j.ID)
		return nil
	}
}

func TestFailureReason_String(t *testing.T) {
	assert.Equal(t, "error", ReasonError.String())
	assert.Equal(t, "timeout", ReasonTimeout.String())
	assert.Equal(t, "canceled", ReasonCanceled.String())
}
