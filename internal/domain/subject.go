package domain

import (
	"database/sql"
	"time"
)

type SubjectStatus string

const (
	SubjectActive    SubjectStatus = "active"
	SubjectCancelled SubjectStatus = "cancelled"
)

// SubjectSnapshot is the engine's last known view of a subject's lifecycle,
// fed by the event source. A null timestamp means the event has not happened.
type SubjectSnapshot struct {
	Subject        Subject              `json:"subject"`
	OrganizationID string               `json:"organizationId"`
	OwnerType      OwnerType            `json:"ownerType"`
	OwnerID        string               `json:"ownerId"`
	Status         SubjectStatus        `json:"status"`
	EnrollmentDate sql.NullTime         `json:"enrollmentDate"`
	CompletionDate sql.NullTime         `json:"completionDate"`
	SessionStart   sql.NullTime         `json:"sessionStart"`
	SessionEnd     sql.NullTime         `json:"sessionEnd"`
	CustomDates    map[string]time.Time `json:"customDates,omitempty"`
	Attributes     map[string]string    `json:"attributes,omitempty"`
	Modified       time.Time            `json:"modified"`
}

// Reference returns the timestamp the trigger is measured from, or nil when
// that event has not occurred for this subject.
func (s *SubjectSnapshot) Reference(spec TriggerSpec) *time.Time {
	var nt sql.NullTime
	switch spec.ReferenceEvent {
	case ReferenceEnrollment:
		nt = s.EnrollmentDate
	case ReferenceCompletion:
		nt = s.CompletionDate
	case ReferenceStart:
		nt = s.SessionStart
	case ReferenceCustom:
		if t, ok := s.CustomDates[spec.CustomKey]; ok && !t.IsZero() {
			return &t
		}
		return nil
	}
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func (s *SubjectSnapshot) IsCancelled() bool {
	return s.Status == SubjectCancelled
}

// Variables is the template variable map handed to delivery collaborators.
func (s *SubjectSnapshot) Variables() map[string]string {
	vars := make(map[string]string, len(s.Attributes)+8)
	for k, v := range s.Attributes {
		vars[k] = v
	}
	vars["subject_type"] = string(s.Subject.Type)
	vars["subject_id"] = s.Subject.ID
	vars["owner_type"] = string(s.OwnerType)
	vars["owner_id"] = s.OwnerID
	putTime := func(key string, nt sql.NullTime) {
		if nt.Valid {
			vars[key] = nt.Time.UTC().Format(time.RFC3339)
		}
	}
	putTime("enrollment_date", s.EnrollmentDate)
	putTime("completion_date", s.CompletionDate)
	putTime("session_start", s.SessionStart)
	putTime("session_end", s.SessionEnd)
	return vars
}
