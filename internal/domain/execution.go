package domain

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusScheduled ExecutionStatus = "scheduled"
	StatusClaimed   ExecutionStatus = "claimed"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusSkipped   ExecutionStatus = "skipped"
	StatusCancelled ExecutionStatus = "cancelled"
)

var AllStatuses = []ExecutionStatus{
	StatusPending, StatusScheduled, StatusClaimed, StatusRunning,
	StatusCompleted, StatusFailed, StatusSkipped, StatusCancelled,
}

// NonTerminalStatuses are the states a cancellation or deactivation may still move.
var NonTerminalStatuses = []ExecutionStatus{StatusPending, StatusScheduled, StatusClaimed, StatusRunning}

func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}

var ErrInvalidTransition = errors.New("invalid status transition")

// transitions is the full state machine. failed -> scheduled is only legal
// while attempts remain, which CanTransition cannot know, so the ledger never
// takes that edge: a retry moves running -> scheduled directly.
var transitions = map[ExecutionStatus][]ExecutionStatus{
	StatusPending:   {StatusScheduled, StatusSkipped, StatusCancelled},
	StatusScheduled: {StatusScheduled, StatusClaimed, StatusSkipped, StatusCancelled},
	StatusClaimed:   {StatusRunning, StatusScheduled, StatusSkipped, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusScheduled, StatusSkipped},
}

func CanTransition(from, to ExecutionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition when from -> to is not allowed.
func CheckTransition(from, to ExecutionStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

type SubjectType string

const (
	SubjectEnrollment  SubjectType = "enrollment"
	SubjectSessionSlot SubjectType = "session_slot"
	SubjectSession     SubjectType = "session"
)

// Subject is the concrete thing an action runs for, for example one learner's
// enrollment.
type Subject struct {
	Type SubjectType `json:"type" validate:"required,oneof=enrollment session_slot session"`
	ID   string      `json:"id" validate:"required,max=100"`
}

func (s Subject) Key() string {
	return string(s.Type) + ":" + s.ID
}

func (s Subject) String() string { return s.Key() }

type ExecutionRecord struct {
	ID             int64           `json:"id"`
	FlowActionID   int64           `json:"flowActionId"`
	OrganizationID string          `json:"organizationId"`
	OwnerType      OwnerType       `json:"ownerType"`
	OwnerID        string          `json:"ownerId"`
	ExecutionOrder int             `json:"executionOrder"`
	Subject        Subject         `json:"subject"`
	Status         ExecutionStatus `json:"status"`
	ScheduledFor   sql.NullTime    `json:"scheduledFor"`
	ClaimedBy      sql.NullString  `json:"claimedBy"`
	ClaimedAt      sql.NullTime    `json:"claimedAt"`
	AttemptCount   int             `json:"attemptCount"`
	LastError      sql.NullString  `json:"lastError"`
	ExecutedAt     sql.NullTime    `json:"executedAt"`
	Epoch          int             `json:"epoch"`
	IdempotencyKey string          `json:"idempotencyKey"`
	ResultRef      sql.NullString  `json:"resultRef"`
	Created        time.Time       `json:"created"`
	Modified       time.Time       `json:"modified"`
}

var idempotencyNamespace = uuid.MustParse("5d1c7a4e-2f0b-4c55-9a0e-6f1c3b8e7d21")

// IdempotencyKey is deterministic in (action, subject, epoch). The epoch moves
// only when a scheduled occurrence is moved to a different instant, so every
// retry of one occurrence shares a key.
func IdempotencyKey(actionID int64, subject Subject, epoch int) string {
	name := fmt.Sprintf("%d|%s|%s|%d", actionID, subject.Type, subject.ID, epoch)
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}
