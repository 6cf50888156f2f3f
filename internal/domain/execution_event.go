package domain

import "time"

const (
	EventClaimed    = "CLAIMED"
	EventRunning    = "RUNNING"
	EventCompleted  = "COMPLETED"
	EventRetry      = "RETRY"
	EventFailed     = "FAILED"
	EventSkipped    = "SKIPPED"
	EventCancelled  = "CANCELLED"
	EventReleased   = "RELEASED"
	EventRepaired   = "REPAIRED"
	EventLockFailed = "LOCK_FAILED"
	EventScheduled  = "SCHEDULED"
	EventMoved      = "MOVED"
)

type ExecutionEvent struct {
	ID                int64     `json:"id"`
	ExecutionRecordID int64     `json:"executionRecordId"`
	WorkerID          int64     `json:"workerId"`
	AttemptCount      int       `json:"attemptCount"`
	Type              string    `json:"type"`
	Text              string    `json:"text"`
	DateTime          time.Time `json:"dateTime"`
}
