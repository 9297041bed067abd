package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/sirupsen/logrus"

	"github.com/axmon/axmon-backend-go/internal/core/alerting"
)

// AX 2012 batch job status values as stored in BATCHJOB.STATUS.
const (
	batchStatusWaiting   = 1
	batchStatusExecuting = 2
	batchStatusError     = 4
)

// metricQueries maps metric names to the scalar queries that produce them.
// Each query runs under the per-environment timeout; a failing query drops
// its metric from the snapshot instead of failing the whole poll.
var metricQueries = map[string]string{
	"batch_backlog": `SELECT COUNT(*) FROM BATCHJOB WHERE STATUS = 1`,
	"batch_executing": `SELECT COUNT(*) FROM BATCHJOB WHERE STATUS = 2`,
	"batch_errors_last_hour": `SELECT COUNT(*) FROM BATCHJOBHISTORY
		WHERE STATUS = 4 AND ENDDATETIME >= DATEADD(HOUR, -1, GETUTCDATE())`,
	"blocking_chains": `SELECT COUNT(DISTINCT blocking_session_id)
		FROM sys.dm_exec_requests WHERE blocking_session_id <> 0`,
	"blocked_requests": `SELECT COUNT(*)
		FROM sys.dm_exec_requests WHERE blocking_session_id <> 0`,
	"active_sessions": `SELECT COUNT(*)
		FROM sys.dm_exec_sessions WHERE is_user_process = 1`,
	"long_running_requests": `SELECT COUNT(*)
		FROM sys.dm_exec_requests WHERE total_elapsed_time > 300000`,
	"page_life_expectancy": `SELECT TOP 1 cntr_value
		FROM sys.dm_os_performance_counters
		WHERE counter_name = 'Page life expectancy' AND object_name LIKE '%Buffer Manager%'`,
}

// SQLSource polls batch, session, blocking, and SQL health state from the
// monitored AX 2012 / SQL Server environment via go-mssqldb.
type SQLSource struct {
	db      *sql.DB
	timeout time.Duration
	env     string
	logger  *logrus.Logger
}

// NewSQLSource opens a connection pool against the environment's DSN.
func NewSQLSource(dsn, environment string, timeout time.Duration, logger *logrus.Logger) (*SQLSource, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQL Server connection: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &SQLSource{
		db:      db,
		timeout: timeout,
		env:     environment,
		logger:  logger,
	}, nil
}

// Current polls all metric queries. Individual query failures degrade the
// snapshot; the poll fails only when the server is unreachable entirely.
func (s *SQLSource) Current(ctx context.Context) (alerting.MetricSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return alerting.MetricSnapshot{}, fmt.Errorf("environment %s unreachable: %w", s.env, err)
	}

	values := make(map[string]float64, len(metricQueries))
	for name, query := range metricQueries {
		var value sql.NullFloat64
		if err := s.db.QueryRowContext(ctx, query).Scan(&value); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"environment": s.env,
				"metric":      name,
			}).Warn("Metric query failed")
			continue
		}
		if value.Valid {
			values[name] = value.Float64
		}
	}

	if len(values) == 0 {
		return alerting.MetricSnapshot{}, fmt.Errorf("environment %s returned no metrics", s.env)
	}

	return alerting.NewSnapshot(time.Now(), values), nil
}

// Close releases the connection pool.
func (s *SQLSource) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool for the action executor, which operates on
// the same environment connection.
func (s *SQLSource) DB() *sql.DB {
	return s.db
}
