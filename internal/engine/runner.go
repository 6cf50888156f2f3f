package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/RealZimboGuy/courseflow/internal/channels"
	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/internal/repository"
)

// runGroup executes one subject's claimed records in order. When a record
// goes back to scheduled the rest of the group is released so that it waits.
func (s *Scheduler) runGroup(ctx context.Context, group []*domain.ExecutionRecord) {
	// ledger writes must land even when shutdown cancels the dispatch
	ledgerCtx := context.WithoutCancel(ctx)
	for i, rec := range group {
		if ctx.Err() != nil {
			s.release(ledgerCtx, group[i:])
			return
		}
		if !s.execute(ctx, ledgerCtx, rec) {
			s.release(ledgerCtx, group[i+1:])
			return
		}
	}
}

// execute runs one claimed record. It returns false when later actions of the
// same subject must not run yet.
func (s *Scheduler) execute(ctx, ledgerCtx context.Context, rec *domain.ExecutionRecord) bool {
	log := s.logger.With("record_id", rec.ID, "action_id", rec.FlowActionID, "subject_id", rec.Subject.Key(), "worker", s.workerName)
	attempt := rec.AttemptCount + 1

	ok, err := s.repos.Executions.MarkRunning(ledgerCtx, rec.ID, s.workerName, s.clock.Now())
	if err != nil {
		log.ErrorContext(ctx, "Error marking record running", "error", err)
		return false
	}
	if !ok {
		// skipped or cancelled while it sat in the queue
		log.InfoContext(ctx, "Record no longer claimed by this worker, not running it")
		return true
	}
	rec.Status = domain.StatusRunning
	audit(ledgerCtx, s.repos.Events, s.workerID, rec.ID, attempt, domain.EventRunning, "Dispatch attempt "+fmt.Sprint(attempt), s.clock.Now())

	action, err := s.repos.Actions.FindByID(ledgerCtx, rec.FlowActionID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.skip(ledgerCtx, rec, attempt, "flow action no longer exists")
	}
	if err != nil {
		// left running; the repair loop hands it back after the claim timeout
		log.ErrorContext(ctx, "Error loading flow action", "error", err)
		return false
	}
	if !action.IsActive {
		return s.skip(ledgerCtx, rec, attempt, "flow action is inactive")
	}

	subject, err := s.repos.Subjects.Find(ledgerCtx, rec.Subject)
	if errors.Is(err, repository.ErrNotFound) {
		subject = nil
	} else if err != nil {
		log.ErrorContext(ctx, "Error loading subject", "error", err)
		return false
	}
	if subject != nil && subject.IsCancelled() {
		return s.skip(ledgerCtx, rec, attempt, "subject is cancelled")
	}

	out := s.dispatch(ctx, rec, action, subject)
	now := s.clock.Now()
	switch {
	case out.Kind == channels.Completed:
		ok, err := s.repos.Executions.Complete(ledgerCtx, rec.ID, s.workerName, out.ResultRef, now)
		if err != nil || !ok {
			log.ErrorContext(ctx, "Failed to mark record completed", "updated", ok, "error", err)
			return false
		}
		rec.Status = domain.StatusCompleted
		text := "Completed"
		if out.Duplicate {
			text = "Completed, effect was already delivered"
		}
		if out.ResultRef != "" {
			text += ": " + out.ResultRef
		}
		audit(ledgerCtx, s.repos.Events, s.workerID, rec.ID, attempt, domain.EventCompleted, text, now)
		log.InfoContext(ctx, "Flow action completed", "result_ref", out.ResultRef, "duplicate", out.Duplicate)
		return true
	case out.Structural:
		return s.skip(ledgerCtx, rec, attempt, out.Reason)
	default:
		return s.fail(ctx, ledgerCtx, rec, action, out)
	}
}

func (s *Scheduler) fail(ctx, ledgerCtx context.Context, rec *domain.ExecutionRecord, action *domain.FlowAction, out channels.Outcome) bool {
	retrying, err := s.retry.HandleFailure(ledgerCtx, rec, action, out, s.workerName, s.workerID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to record dispatch failure", "record_id", rec.ID, "error", err)
		return false
	}
	return !retrying
}

func (s *Scheduler) skip(ctx context.Context, rec *domain.ExecutionRecord, attempt int, reason string) bool {
	now := s.clock.Now()
	ok, err := s.repos.Executions.Skip(ctx, rec.ID, s.workerName, domain.StatusRunning, reason, now)
	if err != nil || !ok {
		s.logger.ErrorContext(ctx, "Failed to skip record", "record_id", rec.ID, "updated", ok, "error", err)
		return false
	}
	rec.Status = domain.StatusSkipped
	s.logger.InfoContext(ctx, "Flow action skipped", "record_id", rec.ID, "reason", reason)
	audit(ctx, s.repos.Events, s.workerID, rec.ID, attempt, domain.EventSkipped, reason, now)
	return true
}

// dispatch turns an adapter panic into a transient failure.
func (s *Scheduler) dispatch(ctx context.Context, rec *domain.ExecutionRecord, action *domain.FlowAction, subject *domain.SubjectSnapshot) (out channels.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "Panic during dispatch", "record_id", rec.ID, "panic", r, "stack", string(debug.Stack()))
			out = channels.Transient(fmt.Sprintf("panic: %v", r))
		}
	}()
	return s.dispatcher.Dispatch(ctx, rec, action, subject)
}
