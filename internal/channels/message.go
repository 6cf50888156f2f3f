package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

// Message is handed to the template/delivery service.
type Message struct {
	Channel        domain.ChannelType   `json:"channel"`
	TemplateID     string               `json:"templateId"`
	RecipientRole  domain.RecipientRole `json:"recipientRole"`
	Recipient      string               `json:"recipient"`
	Variables      map[string]string    `json:"variables"`
	IdempotencyKey string               `json:"idempotencyKey"`
}

type TemplateSender interface {
	SendMessage(ctx context.Context, msg Message) (string, error)
}

// MessageAdapter implements the notify pattern shared by email, notification,
// assignment, reminder, feedback, meeting and resource.
type MessageAdapter struct {
	sender TemplateSender
}

func NewMessageAdapter(sender TemplateSender) *MessageAdapter {
	return &MessageAdapter{sender: sender}
}

func (m *MessageAdapter) Deliver(ctx context.Context, req Request) (string, error) {
	cfg, ok := req.Config.(domain.MessageConfig)
	if !ok {
		return "", PermanentError(fmt.Errorf("message adapter got %T", req.Config))
	}
	if req.Subject == nil {
		return "", PermanentError(fmt.Errorf("no subject data for %s", req.Record.Subject))
	}
	recipient := RecipientFor(req.Subject, cfg.RecipientRole)
	if recipient == "" {
		return "", PermanentError(fmt.Errorf("no recipient for role %s on %s", cfg.RecipientRole, req.Record.Subject))
	}
	vars := req.Subject.Variables()
	vars["action_title"] = req.Action.Title
	return m.sender.SendMessage(ctx, Message{
		Channel:        cfg.ChannelType,
		TemplateID:     cfg.TemplateID,
		RecipientRole:  cfg.RecipientRole,
		Recipient:      recipient,
		Variables:      vars,
		IdempotencyKey: req.IdempotencyKey(),
	})
}

// RecipientFor looks up "<role>_email", then "<role>_id", in the subject's
// attributes. Dashes in the role become underscores.
func RecipientFor(subject *domain.SubjectSnapshot, role domain.RecipientRole) string {
	prefix := strings.ReplaceAll(string(role), "-", "_")
	for _, key := range []string{prefix + "_email", prefix + "_id"} {
		if v := strings.TrimSpace(subject.Attributes[key]); v != "" {
			return v
		}
	}
	return ""
}
