package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

type OrganizationRepository struct {
	db *sql.DB
}

func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) Find(ctx context.Context, id string) (*domain.Organization, error) {
	query := `SELECT id, timezone, modified FROM organizations WHERE id = ` + placeholder(1)
	var o domain.Organization
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&o.ID, &o.Timezone, &o.Modified); err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

func (r *OrganizationRepository) SetTimezone(ctx context.Context, id string, timezone string, now time.Time) error {
	query := `INSERT INTO organizations (id, timezone, modified) VALUES (` + placeholders(1, 3) + `)` +
		onConflictUpdate("id", "timezone", "modified")
	_, err := r.db.ExecContext(ctx, query, id, timezone, formatDateInDatabase(now))
	return err
}
