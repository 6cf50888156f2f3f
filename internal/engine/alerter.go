package engine

import (
	"context"
	"log/slog"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

// Alerter surfaces records that ended in failed: always to the log, and to
// the sink when one is configured.
type Alerter struct {
	sink   AlertSink
	logger *slog.Logger
}

func NewAlerter(sink AlertSink, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{sink: sink, logger: logger}
}

func (a *Alerter) Alert(ctx context.Context, alert domain.FailureAlert) {
	if a == nil {
		return
	}
	a.logger.ErrorContext(ctx, "Flow action failed",
		"record_id", alert.RecordID,
		"action_id", alert.FlowActionID,
		"organization_id", alert.OrganizationID,
		"subject_id", alert.Subject.Key(),
		"channel", alert.ChannelType,
		"attempts", alert.AttemptCount,
		"permanent", alert.Permanent,
		"error", alert.Reason)
	if a.sink == nil {
		return
	}
	if err := a.sink.PublishAlert(ctx, alert); err != nil {
		a.logger.WarnContext(ctx, "Failed to publish failure alert", "record_id", alert.RecordID, "error", err)
	}
}
