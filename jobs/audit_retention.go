package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// AuditPurger removes audit records older than a horizon.
type AuditPurger interface {
	PurgeBefore(ctx context.Context, horizon time.Time) (int64, error)
}

// AuditRetentionJob deletes audit records past the configured retention
// window. Retention is an operational concern: the authorization core
// itself never deletes a record.
type AuditRetentionJob struct {
	purger AuditPurger
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditRetentionJob constructs the job.
func NewAuditRetentionJob(purger AuditPurger, logger *slog.Logger) *AuditRetentionJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRetentionJob{purger: purger, logger: logger, now: time.Now}
}

// Handle processes TaskAuditRetention tasks.
func (j *AuditRetentionJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AuditRetentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionHours <= 0 {
		j.logger.Warn("audit retention task with no horizon, skipping")
		return asynq.SkipRetry
	}
	horizon := j.now().Add(-time.Duration(payload.RetentionHours) * time.Hour)
	removed, err := j.purger.PurgeBefore(ctx, horizon)
	if err != nil {
		return err
	}
	j.logger.Info("audit retention sweep",
		slog.Time("horizon", horizon),
		slog.Int64("removed", removed))
	return nil
}
