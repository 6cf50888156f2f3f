package channels

import (
	"database/sql"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func testAction(channel domain.ChannelType, destination string) *domain.FlowAction {
	return &domain.FlowAction{
		ID:             7,
		OrganizationID: "org-1",
		OwnerType:      domain.OwnerCourse,
		OwnerID:        "course-1",
		Title:          "Welcome",
		ChannelType:    channel,
		RecipientRole:  domain.RoleLearner,
		Destination:    destination,
		Trigger:        domain.TriggerSpec{ReferenceEvent: domain.ReferenceEnrollment, Direction: domain.DirectionOn},
		ExecutionOrder: 1,
		IsActive:       true,
		MaxAttempts:    3,
	}
}

func testRecord(a *domain.FlowAction) *domain.ExecutionRecord {
	subject := domain.Subject{Type: domain.SubjectEnrollment, ID: "enr-1"}
	return &domain.ExecutionRecord{
		ID:             11,
		FlowActionID:   a.ID,
		OrganizationID: a.OrganizationID,
		OwnerType:      a.OwnerType,
		OwnerID:        a.OwnerID,
		Subject:        subject,
		Status:         domain.StatusRunning,
		ScheduledFor:   sql.NullTime{Time: t0, Valid: true},
		IdempotencyKey: domain.IdempotencyKey(a.ID, subject, 0),
	}
}

func testSubject() *domain.SubjectSnapshot {
	s := &domain.SubjectSnapshot{
		Subject:        domain.Subject{Type: domain.SubjectEnrollment, ID: "enr-1"},
		OrganizationID: "org-1",
		OwnerType:      domain.OwnerCourse,
		OwnerID:        "course-1",
		Status:         domain.SubjectActive,
		Attributes: map[string]string{
			"learner_email":        "ada@example.com",
			"client_company_id":    "acme",
			"learner_display_name": "Ada",
		},
	}
	s.EnrollmentDate = sql.NullTime{Time: t0, Valid: true}
	return s
}
