package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/channels"
	"github.com/RealZimboGuy/courseflow/internal/config"
	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/pkg/courseflow/core"
)

// Backoff doubles from Base on every attempt and never exceeds Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func BackoffFromSettings() Backoff {
	return Backoff{
		Base: config.GetSystemSettingDuration(config.RETRY_BACKOFF_BASE),
		Max:  config.GetSystemSettingDuration(config.RETRY_BACKOFF_MAX),
	}
}

// Delay returns the wait before the next try after attempt failures.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// RetryManager decides what happens to a running record after a failed dispatch.
type RetryManager struct {
	executions ExecutionRepo
	events     EventRepo
	alerter    *Alerter
	backoff    Backoff
	clock      core.Clock
}

func NewRetryManager(executions ExecutionRepo, events EventRepo, alerter *Alerter, backoff Backoff, clock core.Clock) *RetryManager {
	return &RetryManager{executions: executions, events: events, alerter: alerter, backoff: backoff, clock: clock}
}

// HandleFailure records a failed attempt. It returns true when the record was
// put back to scheduled for another attempt.
func (m *RetryManager) HandleFailure(ctx context.Context, rec *domain.ExecutionRecord, action *domain.FlowAction, out channels.Outcome, workerName string, workerID int64) (bool, error) {
	now := m.clock.Now()
	attempts := rec.AttemptCount + 1
	maxAttempts := action.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	if out.Kind == channels.TransientFailure && attempts < maxAttempts {
		next := now.Add(m.backoff.Delay(attempts))
		ok, err := m.executions.Reschedule(ctx, rec.ID, workerName, attempts, next, out.Reason, now)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("record %d no longer running on %s", rec.ID, workerName)
		}
		slog.InfoContext(ctx, "Dispatch failed, retry scheduled", "record_id", rec.ID, "attempt", attempts, "max_attempts", maxAttempts, "next", next, "error", out.Reason)
		audit(ctx, m.events, workerID, rec.ID, attempts, domain.EventRetry, fmt.Sprintf("Retry at %s: %s", next.Format(time.RFC3339), out.Reason), now)
		rec.Status, rec.AttemptCount = domain.StatusScheduled, attempts
		return true, nil
	}

	ok, err := m.executions.Fail(ctx, rec.ID, workerName, attempts, out.Reason, now)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("record %d no longer running on %s", rec.ID, workerName)
	}
	rec.Status, rec.AttemptCount = domain.StatusFailed, attempts
	permanent := out.Kind == channels.PermanentFailure
	text := out.Reason
	if !permanent {
		text = fmt.Sprintf("Max attempts %d reached: %s", maxAttempts, out.Reason)
	}
	audit(ctx, m.events, workerID, rec.ID, attempts, domain.EventFailed, text, now)
	m.alerter.Alert(ctx, domain.FailureAlert{
		RecordID:       rec.ID,
		FlowActionID:   action.ID,
		OrganizationID: action.OrganizationID,
		Subject:        rec.Subject,
		ChannelType:    string(action.ChannelType),
		AttemptCount:   attempts,
		Reason:         out.Reason,
		Permanent:      permanent,
		FailedAt:       now,
	})
	return false, nil
}
