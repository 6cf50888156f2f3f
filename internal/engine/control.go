package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/pkg/courseflow/core"
)

var ErrInvalidTimezone = errors.New("invalid timezone")

// Control is the operational surface behind the HTTP API and the CLI.
type Control struct {
	repos     Repositories
	planner   *Planner
	validator *domain.ActionValidator
	clock     core.Clock
	logger    *slog.Logger
}

func NewControl(repos Repositories, planner *Planner, clock core.Clock, logger *slog.Logger) *Control {
	if logger == nil {
		logger = slog.Default()
	}
	return &Control{repos: repos, planner: planner, validator: domain.NewActionValidator(), clock: clock, logger: logger}
}

// CreateAction validates and stores a new action, then plans it for the
// owner's known subjects.
func (c *Control) CreateAction(ctx context.Context, a *domain.FlowAction) (*domain.FlowAction, error) {
	a.Normalize()
	if err := c.validator.Validate(a); err != nil {
		return nil, err
	}
	now := c.clock.Now()
	a.Created, a.Modified = now, now
	if _, err := c.repos.Actions.Save(ctx, a); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "Flow action created", "action_id", a.ID, "owner_type", a.OwnerType, "owner_id", a.OwnerID, "channel", a.ChannelType)
	if err := c.planner.PlanAction(ctx, a.ID); err != nil {
		c.logger.ErrorContext(ctx, "Failed to plan new flow action", "action_id", a.ID, "error", err)
	}
	return a, nil
}

// UpdateAction replaces an action's definition. Owner and organization are
// fixed at creation. Scheduled records move to the new trigger time.
func (c *Control) UpdateAction(ctx context.Context, a *domain.FlowAction) (*domain.FlowAction, error) {
	current, err := c.repos.Actions.FindByID(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	a.OrganizationID, a.OwnerType, a.OwnerID = current.OrganizationID, current.OwnerType, current.OwnerID
	a.Normalize()
	if err := c.validator.Validate(a); err != nil {
		return nil, err
	}
	now := c.clock.Now()
	a.Created, a.Modified = current.Created, now
	if err := c.repos.Actions.Update(ctx, a); err != nil {
		return nil, err
	}
	if a.ExecutionOrder != current.ExecutionOrder {
		if _, err := c.repos.Executions.UpdateOrderByAction(ctx, a.ID, a.ExecutionOrder, now); err != nil {
			return nil, err
		}
	}
	if current.IsActive && !a.IsActive {
		if _, err := c.stopAction(ctx, a.ID, now); err != nil {
			return nil, err
		}
		return a, nil
	}
	if err := c.planner.PlanAction(ctx, a.ID); err != nil {
		c.logger.ErrorContext(ctx, "Failed to re-plan flow action", "action_id", a.ID, "error", err)
	}
	return a, nil
}

// DeleteAction hard deletes an action that never produced a record. One with
// history is deactivated instead so the history survives; the returned bool
// reports whether the row was removed.
func (c *Control) DeleteAction(ctx context.Context, id int64) (bool, error) {
	if _, err := c.repos.Actions.FindByID(ctx, id); err != nil {
		return false, err
	}
	n, err := c.repos.Executions.CountByAction(ctx, id)
	if err != nil {
		return false, err
	}
	if n == 0 {
		if err := c.repos.Actions.Delete(ctx, id); err != nil {
			return false, err
		}
		c.logger.InfoContext(ctx, "Flow action deleted", "action_id", id)
		return true, nil
	}
	_, err = c.DeactivateAction(ctx, id)
	return false, err
}

func (c *Control) GetAction(ctx context.Context, id int64) (*domain.FlowAction, error) {
	return c.repos.Actions.FindByID(ctx, id)
}

func (c *Control) ListActions(ctx context.Context, ownerType domain.OwnerType, ownerID string) ([]*domain.FlowAction, error) {
	return c.repos.Actions.FindByOwner(ctx, ownerType, ownerID, false)
}

// DeactivateAction pauses an action and skips its records that have not
// started. It returns the skipped record ids.
func (c *Control) DeactivateAction(ctx context.Context, id int64) ([]int64, error) {
	now := c.clock.Now()
	if _, err := c.repos.Actions.FindByID(ctx, id); err != nil {
		return nil, err
	}
	if _, err := c.repos.Actions.SetActive(ctx, id, false, now); err != nil {
		return nil, err
	}
	return c.stopAction(ctx, id, now)
}

func (c *Control) stopAction(ctx context.Context, id int64, now time.Time) ([]int64, error) {
	skipped, err := c.repos.Executions.SkipNonTerminalByAction(ctx, id, "flow action deactivated", now)
	if err != nil {
		return skipped, fmt.Errorf("skip records of action %d: %w", id, err)
	}
	auditAll(ctx, c.repos.Events, skipped, domain.EventSkipped, "Flow action deactivated", now)
	c.logger.InfoContext(ctx, "Flow action deactivated", "action_id", id, "records_skipped", len(skipped))
	return skipped, nil
}

// ActivateAction resumes an action. Records skipped while it was inactive
// stay skipped; subjects without a record get one.
func (c *Control) ActivateAction(ctx context.Context, id int64) error {
	if _, err := c.repos.Actions.FindByID(ctx, id); err != nil {
		return err
	}
	changed, err := c.repos.Actions.SetActive(ctx, id, true, c.clock.Now())
	if err != nil {
		return err
	}
	if changed {
		c.logger.InfoContext(ctx, "Flow action activated", "action_id", id)
	}
	return c.planner.PlanAction(ctx, id)
}

// PauseOrganization deactivates every action of the organization and returns
// the ids of the actions it changed.
func (c *Control) PauseOrganization(ctx context.Context, organizationID string) ([]int64, error) {
	now := c.clock.Now()
	changed, err := c.repos.Actions.SetActiveByOrganization(ctx, organizationID, false, now)
	if err != nil {
		return changed, err
	}
	for _, id := range changed {
		if _, err := c.stopAction(ctx, id, now); err != nil {
			return changed, err
		}
	}
	c.logger.InfoContext(ctx, "Organization paused", "organization_id", organizationID, "actions", len(changed))
	return changed, nil
}

func (c *Control) ResumeOrganization(ctx context.Context, organizationID string) ([]int64, error) {
	changed, err := c.repos.Actions.SetActiveByOrganization(ctx, organizationID, true, c.clock.Now())
	if err != nil {
		return changed, err
	}
	for _, id := range changed {
		if err := c.planner.PlanAction(ctx, id); err != nil {
			return changed, err
		}
	}
	c.logger.InfoContext(ctx, "Organization resumed", "organization_id", organizationID, "actions", len(changed))
	return changed, nil
}

// SetTimezone stores the organization's IANA zone and re-plans its active
// actions so scheduled records follow the new local calendar.
func (c *Control) SetTimezone(ctx context.Context, organizationID string, timezone string) error {
	if _, err := time.LoadLocation(timezone); err != nil || timezone == "" {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, timezone)
	}
	if err := c.repos.Organizations.SetTimezone(ctx, organizationID, timezone, c.clock.Now()); err != nil {
		return err
	}
	actions, err := c.repos.Actions.FindByOrganization(ctx, organizationID)
	if err != nil {
		return err
	}
	for _, a := range actions {
		if !a.IsActive {
			continue
		}
		if err := c.planner.PlanAction(ctx, a.ID); err != nil {
			return err
		}
	}
	return nil
}

func (c *Control) GetOrganization(ctx context.Context, organizationID string) (*domain.Organization, error) {
	return c.repos.Organizations.Find(ctx, organizationID)
}

// Summary counts an action's records per status.
func (c *Control) Summary(ctx context.Context, actionID int64) (map[domain.ExecutionStatus]int, error) {
	if _, err := c.repos.Actions.FindByID(ctx, actionID); err != nil {
		return nil, err
	}
	return c.repos.Executions.StatusSummary(ctx, actionID)
}

// Failures lists an action's failed records, most recent first.
func (c *Control) Failures(ctx context.Context, actionID int64, limit int) ([]*domain.ExecutionRecord, error) {
	if _, err := c.repos.Actions.FindByID(ctx, actionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	return c.repos.Executions.FindByAction(ctx, actionID, domain.StatusFailed, limit)
}

func (c *Control) GetExecution(ctx context.Context, id int64) (*domain.ExecutionRecord, error) {
	return c.repos.Executions.FindByID(ctx, id)
}

func (c *Control) SubjectExecutions(ctx context.Context, subject domain.Subject) ([]*domain.ExecutionRecord, error) {
	return c.repos.Executions.FindBySubject(ctx, subject)
}

func (c *Control) ExecutionEvents(ctx context.Context, recordID int64) ([]domain.ExecutionEvent, error) {
	if _, err := c.repos.Executions.FindByID(ctx, recordID); err != nil {
		return nil, err
	}
	return c.repos.Events.FindByRecordID(ctx, recordID)
}

func (c *Control) Workers(ctx context.Context, limit int) ([]*domain.Worker, error) {
	return c.repos.Workers.FindByLastActive(ctx, limit)
}
