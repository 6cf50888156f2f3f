package domain

import "time"

type Worker struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Started    time.Time `json:"started"`
	LastActive time.Time `json:"lastActive"`
}

// FailureAlert is what the engine surfaces when a record ends in failed.
type FailureAlert struct {
	RecordID       int64     `json:"recordId"`
	FlowActionID   int64     `json:"flowActionId"`
	OrganizationID string    `json:"organizationId"`
	Subject        Subject   `json:"subject"`
	ChannelType    string    `json:"channelType"`
	AttemptCount   int       `json:"attemptCount"`
	Reason         string    `json:"reason"`
	Permanent      bool      `json:"permanent"`
	FailedAt       time.Time `json:"failedAt"`
}
