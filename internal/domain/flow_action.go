package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type OwnerType string

const (
	OwnerCourse  OwnerType = "course"
	OwnerSession OwnerType = "session"
)

type ChannelType string

const (
	ChannelEmail        ChannelType = "email"
	ChannelNotification ChannelType = "notification"
	ChannelWebhook      ChannelType = "webhook"
	ChannelDocument     ChannelType = "document"
	ChannelCertificate  ChannelType = "certificate"
	ChannelAssignment   ChannelType = "assignment"
	ChannelReminder     ChannelType = "reminder"
	ChannelPayment      ChannelType = "payment"
	ChannelEnrollment   ChannelType = "enrollment"
	ChannelCompletion   ChannelType = "completion"
	ChannelFeedback     ChannelType = "feedback"
	ChannelMeeting      ChannelType = "meeting"
	ChannelResource     ChannelType = "resource"
)

// AllChannels lists every channel the dispatcher knows about.
var AllChannels = []ChannelType{
	ChannelEmail, ChannelNotification, ChannelWebhook, ChannelDocument, ChannelCertificate,
	ChannelAssignment, ChannelReminder, ChannelPayment, ChannelEnrollment, ChannelCompletion,
	ChannelFeedback, ChannelMeeting, ChannelResource,
}

func (c ChannelType) Valid() bool {
	for _, known := range AllChannels {
		if c == known {
			return true
		}
	}
	return false
}

type RecipientRole string

const (
	RoleTrainer       RecipientRole = "trainer"
	RoleLearner       RecipientRole = "learner"
	RoleClientCompany RecipientRole = "client-company"
	RoleAdmin         RecipientRole = "admin"
)

type ReferenceEvent string

const (
	ReferenceEnrollment ReferenceEvent = "enrollment"
	ReferenceCompletion ReferenceEvent = "completion"
	ReferenceStart      ReferenceEvent = "start"
	ReferenceCustom     ReferenceEvent = "custom"
)

type Direction string

const (
	DirectionBefore Direction = "before"
	DirectionAfter  Direction = "after"
	DirectionOn     Direction = "on"
)

// TimeOfDay is a wall clock time without a date or zone, serialized as "HH:MM".
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("time of day %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: invalid hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: invalid minute", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TriggerSpec says when an action fires relative to a subject's lifecycle.
// DayOffset is an unsigned magnitude; Direction carries the sign.
type TriggerSpec struct {
	ReferenceEvent ReferenceEvent `json:"referenceEvent" validate:"required,oneof=enrollment completion start custom"`
	Direction      Direction      `json:"direction" validate:"required,oneof=before after on"`
	DayOffset      int            `json:"dayOffset" validate:"gte=0,lte=3650"`
	TimeOfDay      *TimeOfDay     `json:"timeOfDay,omitempty"`
	CustomKey      string         `json:"customKey,omitempty" validate:"max=100"`
}

const DefaultMaxAttempts = 3

type FlowAction struct {
	ID             int64         `json:"id"`
	OrganizationID string        `json:"organizationId" validate:"required,max=100"`
	OwnerType      OwnerType     `json:"ownerType" validate:"required,oneof=course session"`
	OwnerID        string        `json:"ownerId" validate:"required,max=100"`
	Title          string        `json:"title" validate:"required,max=255"`
	ChannelType    ChannelType   `json:"channelType" validate:"required,channel"`
	RecipientRole  RecipientRole `json:"recipientRole" validate:"required,oneof=trainer learner client-company admin"`
	Destination    string        `json:"destination" validate:"required,max=2000"`
	Trigger        TriggerSpec   `json:"trigger"`
	ExecutionOrder int           `json:"executionOrder" validate:"gte=0"`
	IsActive       bool          `json:"isActive"`
	MaxAttempts    int           `json:"maxAttempts" validate:"gte=1,lte=20"`
	Created        time.Time     `json:"created"`
	Modified       time.Time     `json:"modified"`
}

// Normalize fills the defaults a client may leave out.
func (a *FlowAction) Normalize() {
	if a.MaxAttempts == 0 {
		a.MaxAttempts = DefaultMaxAttempts
	}
	a.Destination = strings.TrimSpace(a.Destination)
}
