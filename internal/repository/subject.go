package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

const subjectColumns = `subject_type, subject_id, organization_id, owner_type, owner_id, status,
	enrollment_date, completion_date, session_start, session_end, custom_dates, attributes, modified`

// SubjectRepository keeps the last known lifecycle facts per subject.
type SubjectRepository struct {
	db *sql.DB
}

func NewSubjectRepository(db *sql.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

func scanSubject(s interface{ Scan(dest ...any) error }) (*domain.SubjectSnapshot, error) {
	var snap domain.SubjectSnapshot
	var customDates, attributes sql.NullString
	if err := s.Scan(
		&snap.Subject.Type,
		&snap.Subject.ID,
		&snap.OrganizationID,
		&snap.OwnerType,
		&snap.OwnerID,
		&snap.Status,
		&snap.EnrollmentDate,
		&snap.CompletionDate,
		&snap.SessionStart,
		&snap.SessionEnd,
		&customDates,
		&attributes,
		&snap.Modified,
	); err != nil {
		return nil, err
	}
	if customDates.Valid && customDates.String != "" {
		if err := json.Unmarshal([]byte(customDates.String), &snap.CustomDates); err != nil {
			return nil, fmt.Errorf("subject %s custom dates: %w", snap.Subject, err)
		}
	}
	if attributes.Valid && attributes.String != "" {
		if err := json.Unmarshal([]byte(attributes.String), &snap.Attributes); err != nil {
			return nil, fmt.Errorf("subject %s attributes: %w", snap.Subject, err)
		}
	}
	return &snap, nil
}

func jsonColumn(v interface{}, empty bool) (interface{}, error) {
	if empty {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Upsert writes the whole snapshot, replacing any previous one.
func (r *SubjectRepository) Upsert(ctx context.Context, snap *domain.SubjectSnapshot) error {
	customDates, err := jsonColumn(snap.CustomDates, len(snap.CustomDates) == 0)
	if err != nil {
		return err
	}
	attributes, err := jsonColumn(snap.Attributes, len(snap.Attributes) == 0)
	if err != nil {
		return err
	}
	if snap.Status == "" {
		snap.Status = domain.SubjectActive
	}
	query := `INSERT INTO subjects (` + subjectColumns + `) VALUES (` + placeholders(1, 13) + `)` +
		onConflictUpdate("subject_type, subject_id",
			"organization_id", "owner_type", "owner_id", "status", "enrollment_date", "completion_date",
			"session_start", "session_end", "custom_dates", "attributes", "modified")
	_, err = r.db.ExecContext(ctx, query,
		snap.Subject.Type,
		snap.Subject.ID,
		snap.OrganizationID,
		snap.OwnerType,
		snap.OwnerID,
		snap.Status,
		formatDateInDatabaseNull(snap.EnrollmentDate),
		formatDateInDatabaseNull(snap.CompletionDate),
		formatDateInDatabaseNull(snap.SessionStart),
		formatDateInDatabaseNull(snap.SessionEnd),
		customDates,
		attributes,
		formatDateInDatabase(snap.Modified),
	)
	return err
}

func (r *SubjectRepository) Find(ctx context.Context, subject domain.Subject) (*domain.SubjectSnapshot, error) {
	query := `SELECT ` + subjectColumns + ` FROM subjects WHERE subject_type = ` + placeholder(1) + ` AND subject_id = ` + placeholder(2)
	snap, err := scanSubject(r.db.QueryRowContext(ctx, query, subject.Type, subject.ID))
	if err != nil {
		return nil, notFound(err)
	}
	return snap, nil
}

// FindActiveByOwner lists the owner's subjects that are not cancelled.
func (r *SubjectRepository) FindActiveByOwner(ctx context.Context, ownerType domain.OwnerType, ownerID string) ([]*domain.SubjectSnapshot, error) {
	query := `SELECT ` + subjectColumns + ` FROM subjects
		WHERE owner_type = ` + placeholder(1) + ` AND owner_id = ` + placeholder(2) + ` AND status = ` + placeholder(3) + `
		ORDER BY subject_type, subject_id`
	rows, err := r.db.QueryContext(ctx, query, ownerType, ownerID, domain.SubjectActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*domain.SubjectSnapshot
	for rows.Next() {
		snap, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// SetStatus updates only the status of a known subject.
func (r *SubjectRepository) SetStatus(ctx context.Context, subject domain.Subject, status domain.SubjectStatus, now time.Time) error {
	query := `UPDATE subjects SET status = ` + placeholder(1) + `, modified = ` + placeholder(2) + `
		WHERE subject_type = ` + placeholder(3) + ` AND subject_id = ` + placeholder(4)
	n, err := rowsAffected(ctx, r.db, query, status, formatDateInDatabase(now), subject.Type, subject.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
