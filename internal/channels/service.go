package channels

import (
	"context"
	"fmt"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

type ServiceRequest struct {
	Channel        domain.ChannelType   `json:"channel"`
	Operation      string               `json:"operation"`
	OrganizationID string               `json:"organizationId"`
	RecipientRole  domain.RecipientRole `json:"recipientRole"`
	Subject        domain.Subject       `json:"subject"`
	OwnerType      domain.OwnerType     `json:"ownerType"`
	OwnerID        string               `json:"ownerId"`
	Variables      map[string]string    `json:"variables"`
	IdempotencyKey string               `json:"idempotencyKey"`
}

// ServiceCaller is the gateway for payment, enrollment and completion calls.
type ServiceCaller interface {
	Call(ctx context.Context, req ServiceRequest) (string, error)
}

type ServiceAdapter struct {
	caller ServiceCaller
}

func NewServiceAdapter(caller ServiceCaller) *ServiceAdapter {
	return &ServiceAdapter{caller: caller}
}

func (s *ServiceAdapter) Deliver(ctx context.Context, req Request) (string, error) {
	cfg, ok := req.Config.(domain.ServiceConfig)
	if !ok {
		return "", PermanentError(fmt.Errorf("service adapter got %T", req.Config))
	}
	var vars map[string]string
	if req.Subject != nil {
		vars = req.Subject.Variables()
	}
	return s.caller.Call(ctx, ServiceRequest{
		Channel:        cfg.ChannelType,
		Operation:      cfg.Operation,
		OrganizationID: req.Action.OrganizationID,
		RecipientRole:  req.Action.RecipientRole,
		Subject:        req.Record.Subject,
		OwnerType:      req.Action.OwnerType,
		OwnerID:        req.Action.OwnerID,
		Variables:      vars,
		IdempotencyKey: req.IdempotencyKey(),
	})
}
