package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/internal/events"
	"github.com/RealZimboGuy/courseflow/internal/repository"
	"github.com/RealZimboGuy/courseflow/internal/trigger"
	"github.com/RealZimboGuy/courseflow/pkg/courseflow/core"
)

// Planner keeps the ledger in step with the catalog and subject lifecycles:
// it creates records, resolves pending ones and moves ones whose reference
// date changed.
type Planner struct {
	repos       Repositories
	clock       core.Clock
	defaultZone *time.Location
	logger      *slog.Logger
	onDue       func()
}

func NewPlanner(repos Repositories, clock core.Clock, defaultZone *time.Location, logger *slog.Logger) *Planner {
	if defaultZone == nil {
		defaultZone = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{repos: repos, clock: clock, defaultZone: defaultZone, logger: logger}
}

// OnDue registers fn to be called when planning produced a record that is
// already due, typically Scheduler.Wakeup.
func (p *Planner) OnDue(fn func()) { p.onDue = fn }

// HandleEvent applies a lifecycle event and re-plans the affected subject.
func (p *Planner) HandleEvent(ctx context.Context, ev events.LifecycleEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	now := p.clock.Now()
	log := p.logger.With("kind", ev.Kind, "owner_id", ev.OwnerID)

	if ev.Kind == events.KindOwnerDeleted {
		changed, err := p.repos.Actions.SetActiveByOwner(ctx, ev.OwnerType, ev.OwnerID, false, now)
		if err != nil {
			return fmt.Errorf("deactivate actions of %s %s: %w", ev.OwnerType, ev.OwnerID, err)
		}
		cancelled, err := p.repos.Executions.CancelNonTerminalByOwner(ctx, ev.OwnerType, ev.OwnerID, "owner deleted", now)
		if err != nil {
			return fmt.Errorf("cancel records of %s %s: %w", ev.OwnerType, ev.OwnerID, err)
		}
		auditAll(ctx, p.repos.Events, cancelled, domain.EventCancelled, "Owner deleted", now)
		log.InfoContext(ctx, "Owner deleted", "actions_deactivated", len(changed), "records_cancelled", len(cancelled))
		return nil
	}

	existing, err := p.repos.Subjects.Find(ctx, *ev.Subject)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("load subject %s: %w", ev.Subject, err)
	}
	snap := ev.Apply(existing, now)
	if err := p.repos.Subjects.Upsert(ctx, snap); err != nil {
		return fmt.Errorf("save subject %s: %w", ev.Subject, err)
	}

	if ev.Kind == events.KindSubjectCancelled {
		skipped, err := p.repos.Executions.SkipNonTerminalBySubject(ctx, snap.Subject, "subject cancelled", now)
		if err != nil {
			return fmt.Errorf("skip records of %s: %w", snap.Subject, err)
		}
		auditAll(ctx, p.repos.Events, skipped, domain.EventSkipped, "Subject cancelled", now)
		log.InfoContext(ctx, "Subject cancelled", "subject_id", snap.Subject.Key(), "records_skipped", len(skipped))
		return nil
	}
	return p.RefreshSubject(ctx, snap)
}

// RefreshSubject plans every active action of the subject's owner for it.
func (p *Planner) RefreshSubject(ctx context.Context, snap *domain.SubjectSnapshot) error {
	if snap.IsCancelled() {
		return nil
	}
	actions, err := p.repos.Actions.FindByOwner(ctx, snap.OwnerType, snap.OwnerID, true)
	if err != nil {
		return fmt.Errorf("load actions of %s %s: %w", snap.OwnerType, snap.OwnerID, err)
	}
	if len(actions) == 0 {
		return nil
	}
	loc := p.location(ctx, snap.OrganizationID)
	due := false
	for _, a := range actions {
		d, err := p.plan(ctx, a, snap, loc)
		if err != nil {
			return err
		}
		due = due || d
	}
	p.notifyDue(due)
	return nil
}

// PlanAction plans one action for every active subject of its owner.
func (p *Planner) PlanAction(ctx context.Context, actionID int64) error {
	a, err := p.repos.Actions.FindByID(ctx, actionID)
	if err != nil {
		return err
	}
	if !a.IsActive {
		return nil
	}
	subjects, err := p.repos.Subjects.FindActiveByOwner(ctx, a.OwnerType, a.OwnerID)
	if err != nil {
		return fmt.Errorf("load subjects of %s %s: %w", a.OwnerType, a.OwnerID, err)
	}
	loc := p.location(ctx, a.OrganizationID)
	due := false
	for _, snap := range subjects {
		d, err := p.plan(ctx, a, snap, loc)
		if err != nil {
			return err
		}
		due = due || d
	}
	p.notifyDue(due)
	return nil
}

// plan creates, resolves or moves the record of one action for one subject and
// reports whether it is due now.
func (p *Planner) plan(ctx context.Context, a *domain.FlowAction, snap *domain.SubjectSnapshot, loc *time.Location) (bool, error) {
	now := p.clock.Now()
	at, resolved := trigger.Resolve(snap.Reference(a.Trigger), a.Trigger, loc)

	rec := &domain.ExecutionRecord{
		FlowActionID:   a.ID,
		OrganizationID: a.OrganizationID,
		OwnerType:      a.OwnerType,
		OwnerID:        a.OwnerID,
		ExecutionOrder: a.ExecutionOrder,
		Subject:        snap.Subject,
		Status:         domain.StatusPending,
		IdempotencyKey: domain.IdempotencyKey(a.ID, snap.Subject, 0),
		Created:        now,
		Modified:       now,
	}
	if resolved {
		rec.Status = domain.StatusScheduled
		rec.ScheduledFor.Time, rec.ScheduledFor.Valid = at, true
	}
	inserted, err := p.repos.Executions.InsertIfAbsent(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("insert record for action %d and %s: %w", a.ID, snap.Subject, err)
	}
	if inserted {
		if resolved {
			audit(ctx, p.repos.Events, 0, rec.ID, 0, domain.EventScheduled, "Scheduled for "+at.Format(time.RFC3339), now)
		}
		p.logger.DebugContext(ctx, "Execution record created", "record_id", rec.ID, "action_id", a.ID, "subject_id", snap.Subject.Key(), "status", rec.Status)
		return resolved && !at.After(now), nil
	}
	if !resolved {
		return false, nil
	}

	existing, err := p.repos.Executions.FindByActionAndSubject(ctx, a.ID, snap.Subject)
	if err != nil {
		return false, fmt.Errorf("load record for action %d and %s: %w", a.ID, snap.Subject, err)
	}
	switch {
	case existing.Status == domain.StatusPending:
		ok, err := p.repos.Executions.Schedule(ctx, existing.ID, at, now)
		if err != nil {
			return false, err
		}
		if ok {
			audit(ctx, p.repos.Events, 0, existing.ID, 0, domain.EventScheduled, "Scheduled for "+at.Format(time.RFC3339), now)
			return !at.After(now), nil
		}
	case existing.Status == domain.StatusScheduled && existing.AttemptCount == 0 && !existing.ClaimedBy.Valid &&
		!existing.ScheduledFor.Time.Equal(at):
		key := domain.IdempotencyKey(a.ID, snap.Subject, existing.Epoch+1)
		ok, err := p.repos.Executions.MoveSchedule(ctx, existing.ID, existing.Epoch, at, key, now)
		if err != nil {
			return false, err
		}
		if ok {
			audit(ctx, p.repos.Events, 0, existing.ID, 0, domain.EventMoved,
				fmt.Sprintf("Moved from %s to %s", existing.ScheduledFor.Time.UTC().Format(time.RFC3339), at.Format(time.RFC3339)), now)
			return !at.After(now), nil
		}
	}
	return false, nil
}

// ResolvePending re-resolves every pending record and schedules those whose
// reference date is now known. It returns how many were scheduled.
func (p *Planner) ResolvePending(ctx context.Context) (int, error) {
	var afterID int64
	scheduled := 0
	actions := map[int64]*domain.FlowAction{}
	for {
		page, err := p.repos.Executions.FindPending(ctx, afterID, 200)
		if err != nil {
			return scheduled, err
		}
		if len(page) == 0 {
			break
		}
		for _, rec := range page {
			afterID = rec.ID
			a, ok := actions[rec.FlowActionID]
			if !ok {
				a, err = p.repos.Actions.FindByID(ctx, rec.FlowActionID)
				if err != nil {
					if errors.Is(err, repository.ErrNotFound) {
						continue
					}
					return scheduled, err
				}
				actions[rec.FlowActionID] = a
			}
			if !a.IsActive {
				continue
			}
			snap, err := p.repos.Subjects.Find(ctx, rec.Subject)
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			if err != nil {
				return scheduled, err
			}
			if snap.IsCancelled() {
				continue
			}
			at, resolved := trigger.Resolve(snap.Reference(a.Trigger), a.Trigger, p.location(ctx, a.OrganizationID))
			if !resolved {
				continue
			}
			now := p.clock.Now()
			ok, err = p.repos.Executions.Schedule(ctx, rec.ID, at, now)
			if err != nil {
				return scheduled, err
			}
			if ok {
				scheduled++
				audit(ctx, p.repos.Events, 0, rec.ID, 0, domain.EventScheduled, "Scheduled for "+at.Format(time.RFC3339), now)
			}
		}
	}
	if scheduled > 0 {
		p.logger.InfoContext(ctx, "Resolved pending records", "scheduled", scheduled)
		p.notifyDue(true)
	}
	return scheduled, nil
}

func (p *Planner) location(ctx context.Context, organizationID string) *time.Location {
	org, err := p.repos.Organizations.Find(ctx, organizationID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			p.logger.WarnContext(ctx, "Failed to load organization, using default timezone", "organization_id", organizationID, "error", err)
		}
		return p.defaultZone
	}
	loc, err := org.Location(p.defaultZone)
	if err != nil {
		p.logger.WarnContext(ctx, "Invalid organization timezone, using default", "organization_id", organizationID, "error", err)
		return p.defaultZone
	}
	return loc
}

func (p *Planner) notifyDue(due bool) {
	if due && p.onDue != nil {
		p.onDue()
	}
}
