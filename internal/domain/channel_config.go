package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// ChannelConfig is the typed form of a FlowAction destination. Each channel
// family gets its own variant instead of an open JSON blob.
type ChannelConfig interface {
	Channel() ChannelType
}

// MessageConfig drives the notify pattern: a template handed to the delivery
// service for the action's recipient role.
type MessageConfig struct {
	ChannelType   ChannelType
	TemplateID    string
	RecipientRole RecipientRole
}

func (c MessageConfig) Channel() ChannelType { return c.ChannelType }

type WebhookConfig struct {
	URL *url.URL
}

func (c WebhookConfig) Channel() ChannelType { return ChannelWebhook }

type DocumentConfig struct {
	TemplateID  string
	Certificate bool
}

func (c DocumentConfig) Channel() ChannelType {
	if c.Certificate {
		return ChannelCertificate
	}
	return ChannelDocument
}

// ServiceConfig drives the call-service pattern (payment, enrollment, completion).
// Operation is the destination, typically a product or plan reference.
type ServiceConfig struct {
	ChannelType ChannelType
	Operation   string
}

func (c ServiceConfig) Channel() ChannelType { return c.ChannelType }

// ParseChannelConfig turns an action's free-form destination into the variant
// for its channel. An error here is a configuration error.
func ParseChannelConfig(a *FlowAction) (ChannelConfig, error) {
	dest := strings.TrimSpace(a.Destination)
	if dest == "" {
		return nil, fmt.Errorf("action %d: destination is empty", a.ID)
	}
	switch a.ChannelType {
	case ChannelEmail, ChannelNotification, ChannelAssignment, ChannelReminder,
		ChannelFeedback, ChannelMeeting, ChannelResource:
		return MessageConfig{ChannelType: a.ChannelType, TemplateID: dest, RecipientRole: a.RecipientRole}, nil
	case ChannelWebhook:
		u, err := url.Parse(dest)
		if err != nil {
			return nil, fmt.Errorf("action %d: webhook url: %w", a.ID, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("action %d: webhook url %q is not absolute http(s)", a.ID, dest)
		}
		return WebhookConfig{URL: u}, nil
	case ChannelDocument:
		return DocumentConfig{TemplateID: dest}, nil
	case ChannelCertificate:
		return DocumentConfig{TemplateID: dest, Certificate: true}, nil
	case ChannelPayment, ChannelEnrollment, ChannelCompletion:
		return ServiceConfig{ChannelType: a.ChannelType, Operation: dest}, nil
	}
	return nil, fmt.Errorf("action %d: unknown channel %q", a.ID, a.ChannelType)
}
