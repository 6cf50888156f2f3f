package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

const (
	TopicLifecycle = "courseflow.lifecycle"
	TopicAlerts    = "courseflow.alerts"

	MetadataKind    = "kind"
	MetadataSubject = "subject"
)

type Kind string

const (
	KindEnrolled         Kind = "enrolled"
	KindCompleted        Kind = "completed"
	KindSessionScheduled Kind = "session_scheduled"
	KindCustomDate       Kind = "custom_date"
	KindSubjectCancelled Kind = "subject_cancelled"
	KindOwnerDeleted     Kind = "owner_deleted"
)

var ErrInvalidEvent = errors.New("invalid lifecycle event")

// LifecycleEvent is a change in a subject's lifecycle reported by the
// course catalog. Subject is absent only for owner_deleted.
type LifecycleEvent struct {
	ID             string            `json:"id,omitempty"`
	Kind           Kind              `json:"kind" validate:"required,oneof=enrolled completed session_scheduled custom_date subject_cancelled owner_deleted"`
	OrganizationID string            `json:"organizationId" validate:"required,max=100"`
	OwnerType      domain.OwnerType  `json:"ownerType" validate:"required,oneof=course session"`
	OwnerID        string            `json:"ownerId" validate:"required,max=100"`
	Subject        *domain.Subject   `json:"subject,omitempty"`
	At             *time.Time        `json:"at,omitempty"`
	SessionStart   *time.Time        `json:"sessionStart,omitempty"`
	SessionEnd     *time.Time        `json:"sessionEnd,omitempty"`
	CustomKey      string            `json:"customKey,omitempty" validate:"max=100"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	OccurredAt     time.Time         `json:"occurredAt"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(lifecycleRules, LifecycleEvent{})
	return v
}

func lifecycleRules(sl validator.StructLevel) {
	ev := sl.Current().Interface().(LifecycleEvent)
	if ev.Kind != KindOwnerDeleted && ev.Subject == nil {
		sl.ReportError(ev.Subject, "Subject", "subject", "required", "")
	}
	switch ev.Kind {
	case KindEnrolled, KindCompleted:
		if ev.At == nil {
			sl.ReportError(ev.At, "At", "at", "required", "")
		}
	case KindCustomDate:
		if ev.At == nil {
			sl.ReportError(ev.At, "At", "at", "required", "")
		}
		if strings.TrimSpace(ev.CustomKey) == "" {
			sl.ReportError(ev.CustomKey, "CustomKey", "customKey", "required", "")
		}
	case KindSessionScheduled:
		if ev.SessionStart == nil {
			sl.ReportError(ev.SessionStart, "SessionStart", "sessionStart", "required", "")
		}
		if ev.SessionStart != nil && ev.SessionEnd != nil && ev.SessionEnd.Before(*ev.SessionStart) {
			sl.ReportError(ev.SessionEnd, "SessionEnd", "sessionEnd", "gtefield", "sessionStart")
		}
	}
}

// Validate returns an error wrapping ErrInvalidEvent.
func (e *LifecycleEvent) Validate() error {
	if err := validate.Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidEvent, strings.Join(msgs, "; "))
	}
	return nil
}

// Apply folds the event into snapshot. A nil snapshot starts a new one.
func (e *LifecycleEvent) Apply(snapshot *domain.SubjectSnapshot, now time.Time) *domain.SubjectSnapshot {
	if snapshot == nil {
		snapshot = &domain.SubjectSnapshot{Status: domain.SubjectActive}
	}
	if e.Subject != nil {
		snapshot.Subject = *e.Subject
	}
	snapshot.OrganizationID = e.OrganizationID
	snapshot.OwnerType = e.OwnerType
	snapshot.OwnerID = e.OwnerID
	if len(e.Attributes) > 0 && snapshot.Attributes == nil {
		snapshot.Attributes = make(map[string]string, len(e.Attributes))
	}
	for k, v := range e.Attributes {
		snapshot.Attributes[k] = v
	}

	switch e.Kind {
	case KindEnrolled:
		snapshot.EnrollmentDate.Time, snapshot.EnrollmentDate.Valid = e.At.UTC(), true
	case KindCompleted:
		snapshot.CompletionDate.Time, snapshot.CompletionDate.Valid = e.At.UTC(), true
	case KindSessionScheduled:
		snapshot.SessionStart.Time, snapshot.SessionStart.Valid = e.SessionStart.UTC(), true
		if e.SessionEnd != nil {
			snapshot.SessionEnd.Time, snapshot.SessionEnd.Valid = e.SessionEnd.UTC(), true
		}
	case KindCustomDate:
		if snapshot.CustomDates == nil {
			snapshot.CustomDates = make(map[string]time.Time)
		}
		snapshot.CustomDates[e.CustomKey] = e.At.UTC()
	case KindSubjectCancelled:
		snapshot.Status = domain.SubjectCancelled
	}
	snapshot.Modified = now
	return snapshot
}
