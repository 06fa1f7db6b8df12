package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/shoeshop/shoeshop/internal/jobs"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SessionPurgeJob removes expired rows from the sessions table.
type SessionPurgeJob struct {
	db      execer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSessionPurgeJob wires dependencies for the purge handler.
func NewSessionPurgeJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionPurgeJob {
	j := &SessionPurgeJob{Logger: logger, Metrics: metrics, clock: func() time.Time { return time.Now().UTC() }}
	if pool != nil {
		j.db = pool
	}
	return j
}

// Handle processes TaskSessionPurge tasks.
func (j *SessionPurgeJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.db == nil {
		return errors.New("session purge: pool not configured")
	}
	var payload SessionPurgePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskSessionPurge)
	defer func() {
		err = tracker.End(err)
	}()

	cutoff := j.clock().Add(-payload.Grace)
	tag, err := j.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return err
	}
	j.Metrics.AddPurgedSessions(tag.RowsAffected())
	if j.Logger != nil {
		j.Logger.Info("purged expired sessions", slog.Int64("rows", tag.RowsAffected()), slog.Time("cutoff", cutoff))
	}
	return nil
}
