package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

// audit appends one event to a record's trail. A failed write is logged and
// never stops the caller.
func audit(ctx context.Context, repo EventRepo, workerID int64, recordID int64, attempt int, typ string, text string, now time.Time) {
	if repo == nil {
		return
	}
	_, err := repo.Save(ctx, &domain.ExecutionEvent{
		ExecutionRecordID: recordID,
		WorkerID:          workerID,
		AttemptCount:      attempt,
		Type:              typ,
		Text:              text,
		DateTime:          now,
	})
	if err != nil {
		slog.WarnContext(ctx, "Failed to write audit event", "record_id", recordID, "type", typ, "error", err)
	}
}

func auditAll(ctx context.Context, repo EventRepo, ids []int64, typ string, text string, now time.Time) {
	for _, id := range ids {
		audit(ctx, repo, 0, id, 0, typ, text, now)
	}
}
