package models

import (
	"github.com/RealZimboGuy/courseflow/internal/domain"
)

// FlowActionRequest is the payload for creating or replacing a flow action.
// IsActive defaults to true when omitted.
type FlowActionRequest struct {
	OrganizationID string               `json:"organizationId"`
	OwnerType      domain.OwnerType     `json:"ownerType"`
	OwnerID        string               `json:"ownerId"`
	Title          string               `json:"title"`
	ChannelType    domain.ChannelType   `json:"channelType"`
	RecipientRole  domain.RecipientRole `json:"recipientRole"`
	Destination    string               `json:"destination"`
	Trigger        domain.TriggerSpec   `json:"trigger"`
	ExecutionOrder int                  `json:"executionOrder"`
	IsActive       *bool                `json:"isActive,omitempty"`
	MaxAttempts    int                  `json:"maxAttempts,omitempty"`
}

func (r FlowActionRequest) ToFlowAction() *domain.FlowAction {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return &domain.FlowAction{
		OrganizationID: r.OrganizationID,
		OwnerType:      r.OwnerType,
		OwnerID:        r.OwnerID,
		Title:          r.Title,
		ChannelType:    r.ChannelType,
		RecipientRole:  r.RecipientRole,
		Destination:    r.Destination,
		Trigger:        r.Trigger,
		ExecutionOrder: r.ExecutionOrder,
		IsActive:       active,
		MaxAttempts:    r.MaxAttempts,
	}
}

// DeleteActionResponse reports whether the action was removed or, because it
// already has history, only deactivated.
type DeleteActionResponse struct {
	ID          int64 `json:"id"`
	Deleted     bool  `json:"deleted"`
	Deactivated bool  `json:"deactivated"`
}

// DeactivateActionResponse lists the records skipped by the deactivation.
type DeactivateActionResponse struct {
	ID             int64   `json:"id"`
	SkippedRecords []int64 `json:"skippedRecords"`
}

type ActionSummaryResponse struct {
	ID     int64                          `json:"id"`
	Counts map[domain.ExecutionStatus]int `json:"counts"`
}
