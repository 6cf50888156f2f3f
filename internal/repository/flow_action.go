package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

const flowActionColumns = `id, organization_id, owner_type, owner_id, title, channel_type, recipient_role, destination,
	reference_event, direction, day_offset, time_of_day, custom_key, execution_order, is_active, max_attempts, created, modified`

// FlowActionRepository is the action catalog.
type FlowActionRepository struct {
	db *sql.DB
}

func NewFlowActionRepository(db *sql.DB) *FlowActionRepository {
	return &FlowActionRepository{db: db}
}

func scanFlowAction(s interface{ Scan(dest ...any) error }) (*domain.FlowAction, error) {
	var a domain.FlowAction
	var timeOfDay, customKey sql.NullString
	if err := s.Scan(
		&a.ID,
		&a.OrganizationID,
		&a.OwnerType,
		&a.OwnerID,
		&a.Title,
		&a.ChannelType,
		&a.RecipientRole,
		&a.Destination,
		&a.Trigger.ReferenceEvent,
		&a.Trigger.Direction,
		&a.Trigger.DayOffset,
		&timeOfDay,
		&customKey,
		&a.ExecutionOrder,
		&a.IsActive,
		&a.MaxAttempts,
		&a.Created,
		&a.Modified,
	); err != nil {
		return nil, err
	}
	if timeOfDay.Valid && timeOfDay.String != "" {
		tod, err := domain.ParseTimeOfDay(timeOfDay.String)
		if err != nil {
			return nil, fmt.Errorf("flow action %d: %w", a.ID, err)
		}
		a.Trigger.TimeOfDay = &tod
	}
	a.Trigger.CustomKey = customKey.String
	return &a, nil
}

func timeOfDayValue(t *domain.TimeOfDay) interface{} {
	if t == nil {
		return nil
	}
	return t.String()
}

// Save inserts a new action and sets its ID.
func (r *FlowActionRepository) Save(ctx context.Context, a *domain.FlowAction) (int64, error) {
	query := `
		INSERT INTO flow_actions (
			organization_id, owner_type, owner_id, title, channel_type, recipient_role, destination,
			reference_event, direction, day_offset, time_of_day, custom_key, execution_order, is_active, max_attempts, created, modified
		) VALUES (` + placeholders(1, 17) + `)`
	id, err := insertReturningID(ctx, r.db, query,
		a.OrganizationID,
		a.OwnerType,
		a.OwnerID,
		a.Title,
		a.ChannelType,
		a.RecipientRole,
		a.Destination,
		a.Trigger.ReferenceEvent,
		a.Trigger.Direction,
		a.Trigger.DayOffset,
		timeOfDayValue(a.Trigger.TimeOfDay),
		nullString(a.Trigger.CustomKey),
		a.ExecutionOrder,
		a.IsActive,
		a.MaxAttempts,
		formatDateInDatabase(a.Created),
		formatDateInDatabase(a.Modified),
	)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to save flow action", "owner_id", a.OwnerID, "error", err)
		return 0, err
	}
	a.ID = id
	return id, nil
}

// Update rewrites the editable definition fields. Ownership and the active flag
// are not touched here.
func (r *FlowActionRepository) Update(ctx context.Context, a *domain.FlowAction) error {
	query := `
		UPDATE flow_actions
		SET title = ` + placeholder(1) + `, channel_type = ` + placeholder(2) + `, recipient_role = ` + placeholder(3) + `,
			destination = ` + placeholder(4) + `, reference_event = ` + placeholder(5) + `, direction = ` + placeholder(6) + `,
			day_offset = ` + placeholder(7) + `, time_of_day = ` + placeholder(8) + `, custom_key = ` + placeholder(9) + `,
			execution_order = ` + placeholder(10) + `, max_attempts = ` + placeholder(11) + `, modified = ` + placeholder(12) + `
		WHERE id = ` + placeholder(13)
	n, err := rowsAffected(ctx, r.db, query,
		a.Title,
		a.ChannelType,
		a.RecipientRole,
		a.Destination,
		a.Trigger.ReferenceEvent,
		a.Trigger.Direction,
		a.Trigger.DayOffset,
		timeOfDayValue(a.Trigger.TimeOfDay),
		nullString(a.Trigger.CustomKey),
		a.ExecutionOrder,
		a.MaxAttempts,
		formatDateInDatabase(a.Modified),
		a.ID,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *FlowActionRepository) FindByID(ctx context.Context, id int64) (*domain.FlowAction, error) {
	query := `SELECT ` + flowActionColumns + ` FROM flow_actions WHERE id = ` + placeholder(1)
	a, err := scanFlowAction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// FindByOwner returns the owner's actions in execution order, ties broken by
// creation order.
func (r *FlowActionRepository) FindByOwner(ctx context.Context, ownerType domain.OwnerType, ownerID string, onlyActive bool) ([]*domain.FlowAction, error) {
	query := `SELECT ` + flowActionColumns + ` FROM flow_actions
		WHERE owner_type = ` + placeholder(1) + ` AND owner_id = ` + placeholder(2)
	args := []interface{}{ownerType, ownerID}
	if onlyActive {
		query += ` AND is_active = ` + placeholder(3)
		args = append(args, true)
	}
	query += ` ORDER BY execution_order, id`
	return r.query(ctx, query, args...)
}

func (r *FlowActionRepository) FindByOrganization(ctx context.Context, organizationID string) ([]*domain.FlowAction, error) {
	query := `SELECT ` + flowActionColumns + ` FROM flow_actions
		WHERE organization_id = ` + placeholder(1) + `
		ORDER BY owner_type, owner_id, execution_order, id`
	return r.query(ctx, query, organizationID)
}

func (r *FlowActionRepository) query(ctx context.Context, query string, args ...interface{}) ([]*domain.FlowAction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*domain.FlowAction
	for rows.Next() {
		a, err := scanFlowAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// SetActive flips is_active and reports whether the flag actually changed.
func (r *FlowActionRepository) SetActive(ctx context.Context, id int64, active bool, now time.Time) (bool, error) {
	query := `UPDATE flow_actions SET is_active = ` + placeholder(1) + `, modified = ` + placeholder(2) + `
		WHERE id = ` + placeholder(3) + ` AND is_active <> ` + placeholder(4)
	n, err := rowsAffected(ctx, r.db, query, active, formatDateInDatabase(now), id, active)
	return n == 1, err
}

// SetActiveByOrganization flips every action of an organization and returns
// the ids that changed.
func (r *FlowActionRepository) SetActiveByOrganization(ctx context.Context, organizationID string, active bool, now time.Time) ([]int64, error) {
	actions, err := r.FindByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return r.setActiveAll(ctx, actions, active, now)
}

func (r *FlowActionRepository) SetActiveByOwner(ctx context.Context, ownerType domain.OwnerType, ownerID string, active bool, now time.Time) ([]int64, error) {
	actions, err := r.FindByOwner(ctx, ownerType, ownerID, false)
	if err != nil {
		return nil, err
	}
	return r.setActiveAll(ctx, actions, active, now)
}

func (r *FlowActionRepository) setActiveAll(ctx context.Context, actions []*domain.FlowAction, active bool, now time.Time) ([]int64, error) {
	var changed []int64
	for _, a := range actions {
		if a.IsActive == active {
			continue
		}
		ok, err := r.SetActive(ctx, a.ID, active, now)
		if err != nil {
			return changed, err
		}
		if ok {
			changed = append(changed, a.ID)
		}
	}
	return changed, nil
}

// Delete hard deletes an action; its execution records go with it.
func (r *FlowActionRepository) Delete(ctx context.Context, id int64) error {
	n, err := rowsAffected(ctx, r.db, `DELETE FROM flow_actions WHERE id = `+placeholder(1), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
